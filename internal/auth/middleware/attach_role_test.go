package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/db/dbtest"
	"github.com/processdojo/kiosk/internal/rbac"
)

func TestAttachRoleFromDB(t *testing.T) {
	dbh := dbtest.Open(t)
	user := dbtest.User(t, dbh, "ana")
	_, err := dbh.Exec(`UPDATE users SET role=$1 WHERE id=$2`, rbac.RoleAdmin, user)
	require.NoError(t, err)

	var role string
	h := AttachRoleFromDB(dbh)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := rbac.WithRole(WithSubject(req.Context(), user), rbac.RoleEmployee)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rbac.RoleAdmin, role, "stored role wins over token role")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithSubject(req.Context(), "deleted")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
