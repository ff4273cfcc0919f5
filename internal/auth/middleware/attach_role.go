package auth

import (
	"database/sql"
	"net/http"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the
// subject, so demoting or deleting a user takes effect before the token
// expires. Must run after JWTMiddleware.
func AttachRoleFromDB(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, SubjectFromContext(ctx)).Scan(&role)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "unknown user", http.StatusUnauthorized)
			default:
				glog.Errorf("auth: load role: %v", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		})
	}
}
