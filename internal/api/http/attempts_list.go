package http

import (
	"net/http"
	"strings"

	"github.com/processdojo/kiosk/internal/attempt"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
)

// GET /attempts?status=in_progress|completed
// Always scoped to the caller.
func ListAttemptsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := attempt.Status(strings.TrimSpace(r.URL.Query().Get("status")))
		if status != "" && status != attempt.StatusInProgress && status != attempt.StatusCompleted {
			badRequest(w, "invalid status")
			return
		}
		list, err := svc.List(r.Context(), authmw.SubjectFromContext(r.Context()), status)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, list)
	}
}
