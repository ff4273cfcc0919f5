// Package reports builds the admin training reports and the per-employee
// dashboard figures.
package reports

import (
	"context"
	"database/sql"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when an employee report names an unknown employee.
var ErrNotFound = errors.New("employee not found")

// Filter narrows a report. Zero times are unbounded and empty strings match
// everything. Unit is the employee's unit; TestID only narrows attempt reports.
type Filter struct {
	From   time.Time
	To     time.Time
	Plant  string
	Unit   string
	TestID string

	user string
}

// where renders the filter against a time column and the users alias u.
func (f Filter) where(timeCol string, args []any) (string, []any) {
	var conds []string
	if !f.From.IsZero() {
		args = append(args, f.From.Unix())
		conds = append(conds, timeCol+" >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.Unix())
		conds = append(conds, timeCol+" <= $"+strconv.Itoa(len(args)))
	}
	if f.Plant != "" {
		args = append(args, f.Plant)
		conds = append(conds, "u.plant = $"+strconv.Itoa(len(args)))
	}
	if f.Unit != "" {
		args = append(args, f.Unit)
		conds = append(conds, "u.unit = $"+strconv.Itoa(len(args)))
	}
	if f.user != "" {
		args = append(args, f.user)
		conds = append(conds, "u.id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conds, " AND "), args
}

type Employee struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	EmployeeID string `json:"employee_id"`
	Plant      string `json:"plant"`
	Unit       string `json:"unit"`
}

type AttemptRow struct {
	Employee
	AttemptID       string    `json:"attempt_id"`
	TestID          string    `json:"test_id"`
	TestTitle       string    `json:"test_title"`
	UnitName        string    `json:"unit_name"`
	LineName        string    `json:"line_name"`
	OperationName   string    `json:"operation_name"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	AttemptNumber   int       `json:"attempt_number"`
	TotalAttempts   int       `json:"total_attempts"`
	Score           float64   `json:"score"`
	CorrectAnswers  int       `json:"correct_answers"`
	TotalQuestions  int       `json:"total_questions"`
	Passed          bool      `json:"passed"`
	DurationMinutes int       `json:"duration_minutes"`
}

type AttemptGroup struct {
	Employee
	TestID         string       `json:"test_id"`
	TestTitle      string       `json:"test_title"`
	TotalAttempts  int          `json:"total_attempts"`
	BestScore      float64      `json:"best_score"`
	LatestScore    float64      `json:"latest_score"`
	AverageScore   float64      `json:"average_score"`
	PassRate       float64      `json:"pass_rate"` // percent of attempts passed
	FirstAttemptAt time.Time    `json:"first_attempt_at"`
	LastAttemptAt  time.Time    `json:"last_attempt_at"`
	Attempts       []AttemptRow `json:"attempts"`
}

// EmployeeReport is one employee's full training history.
type EmployeeReport struct {
	Employee
	Completions []CompletionRow `json:"completions"`
	Attempts    []AttemptRow    `json:"attempts"`
	Tests       []AttemptGroup  `json:"tests"`
}

type CompletionRow struct {
	Employee
	VideoID       string    `json:"video_id"`
	VideoTitle    string    `json:"video_title"`
	OperationName string    `json:"operation_name"`
	Percentage    float64   `json:"completion_percentage"`
	IsCompleted   bool      `json:"is_completed"`
	AccessCount   int       `json:"access_count"`
	LastWatchedAt time.Time `json:"last_watched_at"`
}

type SessionRow struct {
	Employee
	SessionID       string     `json:"session_id"`
	Method          string     `json:"method"`
	LoginAt         time.Time  `json:"login_at"`
	LogoutAt        *time.Time `json:"logout_at"` // nil while active
	DurationMinutes int        `json:"duration_minutes"`
}

type Dashboard struct {
	VideosCompleted    int             `json:"total_videos_completed"`
	TestsPassed        int             `json:"total_tests_passed"`
	AttemptsInProgress int             `json:"in_progress_attempts"`
	RecentCompletions  []CompletionRow `json:"recent_completions"`
}

type Reports struct {
	db *sql.DB
}

func New(dbh *sql.DB) *Reports {
	return &Reports{db: dbh}
}

const employeeCols = `u.id,u.username,u.full_name,COALESCE(u.employee_id,''),u.plant,u.unit`

// Attempts lists completed attempts ordered by employee, test and start time,
// numbering each employee's attempts at a test from 1.
func (r *Reports) Attempts(ctx context.Context, f Filter) ([]AttemptRow, error) {
	cond, args := f.where("a.started_at", []any{"completed"})
	if f.TestID != "" {
		args = append(args, f.TestID)
		cond += " AND a.test_id = $" + strconv.Itoa(len(args))
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+employeeCols+`,
			a.id, t.id, t.title, un.name, l.name, o.name,
			a.started_at, COALESCE(a.completed_at, a.started_at),
			a.score, a.correct_answers, a.total_questions, a.passed
		FROM test_attempts a
		JOIN users u ON u.id = a.user_id
		JOIN tests t ON t.id = a.test_id
		JOIN videos v ON v.id = t.video_id
		JOIN operations o ON o.id = v.operation_id
		JOIN lines l ON l.id = o.line_id
		JOIN units un ON un.id = l.unit_id
		WHERE a.status = $1`+cond+`
		ORDER BY u.username, u.id, t.title, t.id, a.started_at, a.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "attempt report")
	}
	defer rows.Close()

	out := []AttemptRow{}
	for rows.Next() {
		var (
			row                AttemptRow
			started, completed int64
		)
		if err := rows.Scan(&row.UserID, &row.Username, &row.FullName, &row.EmployeeID, &row.Plant, &row.Unit,
			&row.AttemptID, &row.TestID, &row.TestTitle, &row.UnitName, &row.LineName, &row.OperationName,
			&started, &completed, &row.Score, &row.CorrectAnswers, &row.TotalQuestions, &row.Passed); err != nil {
			return nil, err
		}
		row.StartedAt = time.Unix(started, 0).UTC()
		row.CompletedAt = time.Unix(completed, 0).UTC()
		row.DurationMinutes = int((completed - started) / 60)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	numberAttempts(out)
	return out, nil
}

// numberAttempts fills AttemptNumber and TotalAttempts. rows must be sorted
// so each (user, test) run is contiguous.
func numberAttempts(rows []AttemptRow) {
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].UserID == rows[i].UserID && rows[j].TestID == rows[i].TestID {
			j++
		}
		for k := i; k < j; k++ {
			rows[k].AttemptNumber = k - i + 1
			rows[k].TotalAttempts = j - i
		}
		i = j
	}
}

// AttemptGroups folds the attempt report per employee and test.
func (r *Reports) AttemptGroups(ctx context.Context, f Filter) ([]AttemptGroup, error) {
	rows, err := r.Attempts(ctx, f)
	if err != nil {
		return nil, err
	}
	return groupAttempts(rows), nil
}

func groupAttempts(rows []AttemptRow) []AttemptGroup {
	out := []AttemptGroup{}
	for _, row := range rows {
		if n := len(out); n == 0 || out[n-1].UserID != row.UserID || out[n-1].TestID != row.TestID {
			out = append(out, AttemptGroup{Employee: row.Employee, TestID: row.TestID, TestTitle: row.TestTitle})
		}
		g := &out[len(out)-1]
		g.Attempts = append(g.Attempts, row)
		g.TotalAttempts++
		g.BestScore = math.Max(g.BestScore, row.Score)
		g.LatestScore = row.Score
		g.LastAttemptAt = row.StartedAt
		if g.TotalAttempts == 1 {
			g.FirstAttemptAt = row.StartedAt
		}
	}
	for i := range out {
		var (
			passed int
			sum    float64
		)
		for _, a := range out[i].Attempts {
			sum += a.Score
			if a.Passed {
				passed++
			}
		}
		n := float64(out[i].TotalAttempts)
		out[i].AverageScore = sum / n
		out[i].PassRate = float64(passed) / n * 100
	}
	return out
}

// Employee reports the history of the user holding employeeID: every video
// they opened, their numbered completed attempts and a summary per test.
func (r *Reports) Employee(ctx context.Context, employeeID string) (EmployeeReport, error) {
	var rep EmployeeReport
	err := r.db.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM users u WHERE u.employee_id = $1`, employeeID).
		Scan(&rep.UserID, &rep.Username, &rep.FullName, &rep.EmployeeID, &rep.Plant, &rep.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return EmployeeReport{}, ErrNotFound
	}
	if err != nil {
		return EmployeeReport{}, errors.Wrap(err, "employee lookup")
	}

	rows, err := r.db.QueryContext(ctx, completionSelect+` WHERE vc.user_id=$1
		ORDER BY vc.last_watched_at DESC, v.title`, rep.UserID)
	if err != nil {
		return EmployeeReport{}, errors.Wrap(err, "employee completions")
	}
	if rep.Completions, err = scanCompletions(rows); err != nil {
		return EmployeeReport{}, err
	}

	if rep.Attempts, err = r.Attempts(ctx, Filter{user: rep.UserID}); err != nil {
		return EmployeeReport{}, err
	}
	rep.Tests = groupAttempts(rep.Attempts)
	return rep, nil
}

const completionSelect = `SELECT ` + employeeCols + `,
		v.id, v.title, o.name, vc.percentage, vc.is_completed, vc.access_count, vc.last_watched_at
	FROM video_completions vc
	JOIN users u ON u.id = vc.user_id
	JOIN videos v ON v.id = vc.video_id
	JOIN operations o ON o.id = v.operation_id`

func scanCompletions(rows *sql.Rows) ([]CompletionRow, error) {
	defer rows.Close()
	out := []CompletionRow{}
	for rows.Next() {
		var (
			c       CompletionRow
			watched int64
		)
		if err := rows.Scan(&c.UserID, &c.Username, &c.FullName, &c.EmployeeID, &c.Plant, &c.Unit,
			&c.VideoID, &c.VideoTitle, &c.OperationName, &c.Percentage, &c.IsCompleted, &c.AccessCount, &watched); err != nil {
			return nil, err
		}
		c.LastWatchedAt = time.Unix(watched, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// VideoCompletions lists watch progress, most recently watched first.
func (r *Reports) VideoCompletions(ctx context.Context, f Filter) ([]CompletionRow, error) {
	cond, args := f.where("vc.last_watched_at", nil)
	rows, err := r.db.QueryContext(ctx, completionSelect+` WHERE 1=1`+cond+`
		ORDER BY vc.last_watched_at DESC, u.username, v.title`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "completion report")
	}
	return scanCompletions(rows)
}

// LoginSessions lists logins, newest first.
func (r *Reports) LoginSessions(ctx context.Context, f Filter) ([]SessionRow, error) {
	cond, args := f.where("s.login_at", nil)
	rows, err := r.db.QueryContext(ctx, `SELECT `+employeeCols+`,
			s.id, s.method, s.login_at, s.logout_at, s.duration_minutes
		FROM login_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE 1=1`+cond+`
		ORDER BY s.login_at DESC, s.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "login report")
	}
	defer rows.Close()
	out := []SessionRow{}
	for rows.Next() {
		var (
			s      SessionRow
			login  int64
			logout sql.NullInt64
		)
		if err := rows.Scan(&s.UserID, &s.Username, &s.FullName, &s.EmployeeID, &s.Plant, &s.Unit,
			&s.SessionID, &s.Method, &login, &logout, &s.DurationMinutes); err != nil {
			return nil, err
		}
		s.LoginAt = time.Unix(login, 0).UTC()
		if logout.Valid {
			t := time.Unix(logout.Int64, 0).UTC()
			s.LogoutAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Dashboard returns userID's progress counters and five latest videos.
func (r *Reports) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	var d Dashboard
	err := r.db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM video_completions WHERE user_id=$1 AND is_completed=$2),
			(SELECT COUNT(*) FROM test_attempts WHERE user_id=$1 AND status='completed' AND passed=$2),
			(SELECT COUNT(*) FROM test_attempts WHERE user_id=$1 AND status='in_progress')`,
		userID, true).Scan(&d.VideosCompleted, &d.TestsPassed, &d.AttemptsInProgress)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "dashboard counts")
	}
	rows, err := r.db.QueryContext(ctx, completionSelect+` WHERE vc.user_id=$1
		ORDER BY vc.last_watched_at DESC, v.title LIMIT 5`, userID)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "recent completions")
	}
	if d.RecentCompletions, err = scanCompletions(rows); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
