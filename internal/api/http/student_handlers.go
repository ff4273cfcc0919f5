package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/processdojo/kiosk/internal/attempt"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
)

// POST /tests/{testID}/attempts
func StartAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		a, resumed, err := svc.Start(r.Context(), userID, chi.URLParam(r, "testID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		status := http.StatusCreated
		if resumed {
			status = http.StatusOK
		}
		ok(w, status, map[string]any{"attempt": a, "resumed": resumed})
	}
}

// GET /attempts/{attemptID}
func AttemptSheetHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := svc.Sheet(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, sh)
	}
}

// POST /attempts/{attemptID}/answers  { "question_id": "...", "selected_option": "A" }
func AutosaveHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID     string `json:"question_id"`
			SelectedOption string `json:"selected_option"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.QuestionID == "" {
			badRequest(w, "question_id required")
			return
		}
		sa, err := svc.Autosave(r.Context(), authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "attemptID"), req.QuestionID, req.SelectedOption)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, sa)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		out, err := svc.Submit(r.Context(), authmw.SubjectFromContext(r.Context()), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		okRedirect(w, out, "/attempts/"+id+"/result")
	}
}

// GET /attempts/{attemptID}/result
func AttemptResultHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Result(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, res)
	}
}
