package http

import (
	"net/http"

	"github.com/processdojo/kiosk/internal/auth"
)

// POST /admin/users with a JSON array of users. Existing users are matched
// by id or username; new ones need a password.
func BulkUpsertUsersHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []auth.UserInput
		if !decode(w, r, &rows) {
			return
		}
		ins, upd, err := users.Upsert(r.Context(), rows)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// GET /admin/users?role=
func ListUsersHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, list)
	}
}
