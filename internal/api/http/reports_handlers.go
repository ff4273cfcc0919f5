package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/reports"
	syncx "github.com/processdojo/kiosk/internal/sync"
)

// parseDay accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDay(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Errorf("bad date %q", s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func parseFilter(r *http.Request) (reports.Filter, error) {
	q := r.URL.Query()
	from, err := parseDay(q.Get("from"), false)
	if err != nil {
		return reports.Filter{}, err
	}
	to, err := parseDay(q.Get("to"), true)
	if err != nil {
		return reports.Filter{}, err
	}
	return reports.Filter{
		From:   from,
		To:     to,
		Plant:  strings.TrimSpace(q.Get("plant")),
		Unit:   strings.TrimSpace(q.Get("unit")),
		TestID: strings.TrimSpace(q.Get("test_id")),
	}, nil
}

// reportHandler adapts one report query to an HTTP handler.
func reportHandler[T any](run func(*http.Request, reports.Filter) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		out, err := run(r, f)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, out)
	}
}

// GET /admin/reports/attempts
func AttemptsReportHandler(rep *reports.Reports) http.HandlerFunc {
	return reportHandler(func(r *http.Request, f reports.Filter) ([]reports.AttemptRow, error) {
		return rep.Attempts(r.Context(), f)
	})
}

// GET /admin/reports/employees/{employeeID}
func EmployeeReportHandler(rep *reports.Reports) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := rep.Employee(r.Context(), chi.URLParam(r, "employeeID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, out)
	}
}

// GET /admin/reports/attempt-groups
func AttemptGroupsReportHandler(rep *reports.Reports) http.HandlerFunc {
	return reportHandler(func(r *http.Request, f reports.Filter) ([]reports.AttemptGroup, error) {
		return rep.AttemptGroups(r.Context(), f)
	})
}

// GET /admin/reports/videos
func VideoReportHandler(rep *reports.Reports) http.HandlerFunc {
	return reportHandler(func(r *http.Request, f reports.Filter) ([]reports.CompletionRow, error) {
		return rep.VideoCompletions(r.Context(), f)
	})
}

// GET /admin/reports/logins
func LoginReportHandler(rep *reports.Reports) http.HandlerFunc {
	return reportHandler(func(r *http.Request, f reports.Filter) ([]reports.SessionRow, error) {
		return rep.LoginSessions(r.Context(), f)
	})
}

// GET /me/dashboard
func DashboardHandler(rep *reports.Reports) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := rep.Dashboard(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, d)
	}
}

// GET /admin/events?after=&limit=
func EventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var (
			after int64
			limit int
			err   error
		)
		if v := q.Get("after"); v != "" {
			if after, err = strconv.ParseInt(v, 10, 64); err != nil {
				badRequest(w, "bad after")
				return
			}
		}
		if v := q.Get("limit"); v != "" {
			if limit, err = strconv.Atoi(v); err != nil {
				badRequest(w, "bad limit")
				return
			}
		}
		list, err := events.Since(r.Context(), after, limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, list)
	}
}

// GET /admin/sync
func SyncStatusHandler(p *syncx.Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			ok(w, http.StatusOK, map[string]bool{"enabled": false})
			return
		}
		st, err := p.State(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, http.StatusOK, st)
	}
}
