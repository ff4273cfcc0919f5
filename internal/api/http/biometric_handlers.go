package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/processdojo/kiosk/internal/auth"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/biometric"
)

type templateReq struct {
	Template string `json:"template"` // base64
}

// POST /biometric/authenticate
func BiometricLoginHandler(a *authmw.AuthService, users *auth.Users, bio *biometric.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateReq
		if !decode(w, r, &req) {
			return
		}
		u, err := bio.Identify(r.Context(), req.Template)
		if err != nil {
			fail(w, r, err)
			return
		}
		issueSession(w, r, a, users, u, auth.MethodBiometric)
	}
}

// GET /biometric/device-status
// Always 200; an unreachable bridge reports connected=false.
func DeviceStatusHandler(bio *biometric.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := bio.DeviceStatus(r.Context())
		ok(w, http.StatusOK, st)
	}
}

// POST /admin/biometric/{userID}
func EnrollHandler(bio *biometric.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateReq
		if !decode(w, r, &req) {
			return
		}
		id, err := bio.Enroll(r.Context(), chi.URLParam(r, "userID"), req.Template)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusCreated, map[string]string{"biometric_id": id})
	}
}

// DELETE /admin/biometric/{userID}
func DeleteBiometricHandler(bio *biometric.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := bio.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
			fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /admin/biometric/{userID}/verify
func VerifyBiometricHandler(bio *biometric.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateReq
		if !decode(w, r, &req) {
			return
		}
		matched, err := bio.Verify(r.Context(), chi.URLParam(r, "userID"), req.Template)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, map[string]bool{"matched": matched})
	}
}
