package http

import (
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/processdojo/kiosk/internal/auth"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
)

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	User        auth.User `json:"user"`
}

// issueSession records a login session for u and returns a token bound to it.
func issueSession(w http.ResponseWriter, r *http.Request, a *authmw.AuthService, users *auth.Users, u auth.User, method string) {
	sid, err := users.StartSession(r.Context(), u.ID, method)
	if err != nil {
		fail(w, r, err)
		return
	}
	tok, err := a.IssueJWT(u.ID, u.Role, sid)
	if err != nil {
		fail(w, r, err)
		return
	}
	glog.Infof("auth: %s login user=%s session=%s", method, u.Username, sid)
	ok(w, http.StatusOK, loginResponse{AccessToken: tok, User: u})
}

// POST /auth/login  { "username": "...", "password": "..." }
func LoginHandler(a *authmw.AuthService, users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			badRequest(w, "username and password required")
			return
		}
		u, err := users.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			fail(w, r, err)
			return
		}
		issueSession(w, r, a, users, u, auth.MethodPassword)
	}
}

// POST /auth/logout
func LogoutHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sid := authmw.SessionFromContext(ctx)
		if sid == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		ss, err := users.EndSession(ctx, authmw.SubjectFromContext(ctx), sid)
		if err != nil {
			fail(w, r, err)
			return
		}
		okRedirect(w, ss, "/login")
	}
}

// GET /me
func MeHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.Get(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, u)
	}
}
