package http

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/attempt"
	"github.com/processdojo/kiosk/internal/auth"
	"github.com/processdojo/kiosk/internal/biometric"
	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/reports"
	"github.com/processdojo/kiosk/internal/storage"
	"github.com/processdojo/kiosk/internal/videogate"
)

type successResponse struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

type errorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("api: encode response: %v", err)
	}
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func okRedirect(w http.ResponseWriter, data any, redirect string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: data, Redirect: redirect})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: msg})
}

// fail maps a service error onto a status code and the error envelope.
// Precondition and state failures carry a redirect to the page the kiosk
// should send the user back to.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pe *attempt.PreconditionError
		se *attempt.StateError
	)
	res := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &pe):
		status, res.Error = http.StatusPreconditionFailed, "precondition_failed"
		res.Redirect = "/videos/" + pe.VideoID
	case errors.As(err, &se):
		status, res.Error = http.StatusConflict, "invalid_state"
		if se.Status == attempt.StatusCompleted {
			res.Redirect = "/attempts/" + se.AttemptID + "/result"
		}
	case errors.Is(err, attempt.ErrValidation),
		errors.Is(err, content.ErrInvalid),
		errors.Is(err, auth.ErrInvalidUser),
		errors.Is(err, auth.ErrLastAdmin),
		errors.Is(err, biometric.ErrInvalidTemplate):
		status, res.Error = http.StatusBadRequest, "validation_error"
	case errors.Is(err, attempt.ErrNotFound),
		errors.Is(err, content.ErrNotFound),
		errors.Is(err, videogate.ErrNotFound),
		errors.Is(err, auth.ErrNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, reports.ErrNotFound),
		errors.Is(err, biometric.ErrNotEnrolled):
		status, res.Error = http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, biometric.ErrNoMatch):
		status, res.Error = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, biometric.ErrBridgeUnavailable):
		status, res.Error = http.StatusServiceUnavailable, "device_unavailable"
	default:
		glog.Errorf("api: %s %s: %v", r.Method, r.URL.Path, err)
		res.Error, res.Message = "internal", "internal error"
	}
	writeJSON(w, status, res)
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "bad json")
		return false
	}
	return true
}
