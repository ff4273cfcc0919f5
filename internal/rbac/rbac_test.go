package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerHas(t *testing.T) {
	c := NewChecker(map[string][]string{
		"employee": {"test:take", "video:*"},
		"admin":    {"*"},
	})
	assert.True(t, c.Has("employee", "test:take"))
	assert.True(t, c.Has("employee", "video:watch"))
	assert.False(t, c.Has("employee", "report:view"))
	assert.True(t, c.Has("admin", "report:view"))
	assert.False(t, c.Has("guest", "test:take"))
	assert.True(t, c.Any("employee", "report:view", "test:take"))
}

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleEmployee, "test:take"))
	assert.False(t, c.Has(RoleEmployee, "catalog:import"))
	assert.True(t, c.Has(RoleAdmin, "catalog:import"))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := Require("report:view")(ok)

	for role, want := range map[string]int{
		"":           http.StatusForbidden,
		RoleEmployee: http.StatusForbidden,
		RoleAdmin:    http.StatusTeapot,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}
