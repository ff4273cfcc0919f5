package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/processdojo/kiosk/internal/auth"
)

type updateUserRoleReq struct {
	Role string `json:"role"`
}

// PATCH /admin/users/{userID}/role
// userID may be an id or a username.
func AdminUpdateUserRoleHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRoleReq
		if !decode(w, r, &req) {
			return
		}
		u, err := users.SetRole(r.Context(), chi.URLParam(r, "userID"), req.Role)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, u)
	}
}
