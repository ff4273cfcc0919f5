package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/attempt"
	"github.com/processdojo/kiosk/internal/auth"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/biometric"
	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/db/dbtest"
	"github.com/processdojo/kiosk/internal/rbac"
	"github.com/processdojo/kiosk/internal/reports"
	"github.com/processdojo/kiosk/internal/storage"
	syncx "github.com/processdojo/kiosk/internal/sync"
	"github.com/processdojo/kiosk/internal/videogate"
)

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Message  string          `json:"message"`
	Redirect string          `json:"redirect"`
}

type testServer struct {
	h     http.Handler
	d     Deps
	fx    dbtest.Fixture
	empID string
	emp   string // bearer token
	admin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dbh := dbtest.Open(t)
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	events := syncx.NewEventRepo(dbh, "test")
	d := Deps{
		DB:        dbh,
		Auth:      authmw.NewAuthService("test-secret", time.Hour),
		Users:     auth.NewUsers(dbh),
		Content:   content.NewSQLStore(dbh, events),
		Gate:      videogate.New(dbh),
		Attempts:  attempt.NewService(dbh, events),
		Biometric: biometric.NewService(dbh, blobs, biometric.NewBridge("http://127.0.0.1:1", 200*time.Millisecond), events),
		Reports:   reports.New(dbh),
		Events:    events,
		Blobs:     blobs,
	}
	s := &testServer{
		h: NewRouter(d, Options{CORSOrigins: []string{"http://localhost:3000"}, EnableLocalAuth: true}),
		d: d,
		fx: dbtest.Quiz(t, dbh, 50,
			dbtest.QuestionSpec{Correct: "A", Marks: 1},
			dbtest.QuestionSpec{Correct: "B", Marks: 1}),
	}
	s.empID = dbtest.User(t, dbh, "emp")
	adminID := dbtest.User(t, dbh, "boss")
	_, err = dbh.Exec(`UPDATE users SET role=$1 WHERE id=$2`, rbac.RoleAdmin, adminID)
	require.NoError(t, err)

	s.emp, err = d.Auth.IssueJWT(s.empID, rbac.RoleEmployee, "")
	require.NoError(t, err)
	s.admin, err = d.Auth.IssueJWT(adminID, rbac.RoleAdmin, "")
	require.NoError(t, err)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/catalog", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/catalog", s.emp, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.d.Users.Upsert(context.Background(), []auth.UserInput{
		{User: auth.User{Username: "carla", FullName: "Carla"}, Password: "pw"},
	})
	require.NoError(t, err)

	rec, env := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "carla", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", env.Error)

	rec, env = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "carla", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, "carla", login.User.Username)
	assert.Equal(t, rbac.RoleEmployee, login.User.Role)

	rec, _ = s.do(t, http.MethodGet, "/me", login.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/auth/logout", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ss auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &ss))
	assert.NotNil(t, ss.LogoutAt)
	assert.Equal(t, auth.MethodPassword, ss.Method)
}

func TestAttemptFlow(t *testing.T) {
	s := newTestServer(t)
	startPath := "/tests/" + s.fx.TestID + "/attempts"

	rec, env := s.do(t, http.MethodPost, startPath, s.emp, nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "/videos/"+s.fx.VideoID, env.Redirect)

	rec, _ = s.do(t, http.MethodPost, "/videos/"+s.fx.VideoID+"/progress", s.emp, map[string]float64{"percentage": 50})
	assert.Equal(t, http.StatusNotFound, rec.Code, "progress before the player was opened")

	rec, _ = s.do(t, http.MethodGet, "/videos/"+s.fx.VideoID, s.emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = s.do(t, http.MethodPost, "/videos/"+s.fx.VideoID+"/progress", s.emp, map[string]float64{"percentage": 100})
	require.Equal(t, http.StatusOK, rec.Code)
	var c videogate.Completion
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.True(t, c.IsCompleted)

	rec, env = s.do(t, http.MethodPost, startPath, s.emp, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started struct {
		Attempt attempt.Attempt `json:"attempt"`
		Resumed bool            `json:"resumed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.False(t, started.Resumed)
	id := started.Attempt.ID

	rec, env = s.do(t, http.MethodPost, startPath, s.emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.True(t, started.Resumed)
	assert.Equal(t, id, started.Attempt.ID)

	answers := "/attempts/" + id + "/answers"
	rec, env = s.do(t, http.MethodPost, answers, s.emp, map[string]string{"question_id": s.fx.QuestionIDs[0], "selected_option": "E"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "validation_error", env.Error)

	rec, _ = s.do(t, http.MethodPost, answers, s.emp, map[string]string{"question_id": s.fx.QuestionIDs[0], "selected_option": "a"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/attempts/"+id+"/submit", s.emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/attempts/"+id+"/result", env.Redirect)
	var out attempt.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.InDelta(t, 50.0, out.Attempt.Score, 0.001)
	assert.True(t, out.Attempt.Passed)

	rec, env = s.do(t, http.MethodPost, answers, s.emp, map[string]string{"question_id": s.fx.QuestionIDs[1], "selected_option": "B"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "/attempts/"+id+"/result", env.Redirect)

	rec, env = s.do(t, http.MethodGet, "/attempts/"+id+"/result", s.emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res attempt.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].IsCorrect)
	assert.Equal(t, content.NotAnswered, res.Items[1].UserAnswerText)

	rec, _ = s.do(t, http.MethodGet, "/attempts/"+id+"/result", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "results are owner scoped")

	rec, _ = s.do(t, http.MethodGet, "/attempts?status=bogus", s.emp, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, env = s.do(t, http.MethodGet, "/attempts?status=completed", s.emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []attempt.Attempt
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)

	for _, p := range []string{"/admin/reports/attempts", "/admin/users", "/admin/events"} {
		rec, _ := s.do(t, http.MethodGet, p, s.emp, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, p)
		rec, _ = s.do(t, http.MethodGet, p, s.admin, nil)
		assert.Equal(t, http.StatusOK, rec.Code, p)
	}

	rec, _ := s.do(t, http.MethodGet, "/admin/reports/logins?from=2024-13-01", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/admin/reports/logins?from=2024-01-01&to=2024-01-31&plant=P1", s.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminDemoteLastAdmin(t *testing.T) {
	s := newTestServer(t)
	rec, env := s.do(t, http.MethodPatch, "/admin/users/boss/role", s.admin, map[string]string{"role": "employee"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error)

	rec, _ = s.do(t, http.MethodPatch, "/admin/users/emp/role", s.admin, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceStatusWithoutBridge(t *testing.T) {
	s := newTestServer(t)
	rec, env := s.do(t, http.MethodGet, "/biometric/device-status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st biometric.DeviceStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Connected)

	rec, env = s.do(t, http.MethodPost, "/biometric/authenticate", "", map[string]string{"template": "bm90LWJhc2U2NA=="})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no enrolled users means no match")
	assert.Equal(t, "unauthorized", env.Error)
}

func TestParseDay(t *testing.T) {
	from, err := parseDay("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := parseDay("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC), to)

	z, err := parseDay("", true)
	require.NoError(t, err)
	assert.True(t, z.IsZero())

	_, err = parseDay("yesterday", false)
	assert.Error(t, err)
}

func TestResultRouteNeedsViewOwn(t *testing.T) {
	s := newTestServer(t)
	auditor := dbtest.User(t, s.d.DB, "auditor")
	_, err := s.d.DB.Exec(`UPDATE users SET role='auditor' WHERE id=$1`, auditor)
	require.NoError(t, err)
	tok, err := s.d.Auth.IssueJWT(auditor, "auditor", "")
	require.NoError(t, err)

	rec, _ := s.do(t, http.MethodGet, "/attempts/missing/result", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/attempts/missing/result", s.emp, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmployeeReportRoute(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/admin/reports/employees/E-emp", s.emp, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/admin/reports/employees/E-emp", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep reports.EmployeeReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, s.empID, rep.UserID)
	assert.Empty(t, rep.Attempts)

	rec, _ = s.do(t, http.MethodGet, "/admin/reports/employees/E-nobody", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/admin/reports/attempts?unit=Paint&test_id="+s.fx.TestID, s.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
