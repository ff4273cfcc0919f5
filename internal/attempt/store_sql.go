package attempt

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/db"
)

const attemptCols = `a.id,a.user_id,a.test_id,t.title,a.status,a.score,a.correct_answers,a.total_questions,
	a.passed,a.started_at,a.completed_at,a.last_saved_at`

const attemptFrom = ` FROM test_attempts a JOIN tests t ON t.id = a.test_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(sc scanner) (Attempt, error) {
	var (
		a                  Attempt
		started, lastSaved int64
		completed          sql.NullInt64
	)
	err := sc.Scan(&a.ID, &a.UserID, &a.TestID, &a.TestTitle, &a.Status, &a.Score, &a.CorrectAnswers,
		&a.TotalQuestions, &a.Passed, &started, &completed, &lastSaved)
	if err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.LastSavedAt = time.Unix(lastSaved, 0).UTC()
	if completed.Valid {
		c := time.Unix(completed.Int64, 0).UTC()
		a.CompletedAt = &c
	}
	return a, nil
}

func getAttempt(ctx context.Context, q db.Querier, id string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+attemptFrom+` WHERE a.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errors.Wrapf(ErrNotFound, "attempt %s", id)
	}
	return a, errors.Wrap(err, "get attempt")
}

// ownedAttempt loads id and hides attempts that belong to someone else behind
// ErrNotFound.
func ownedAttempt(ctx context.Context, q db.Querier, userID, id string) (Attempt, error) {
	a, err := getAttempt(ctx, q, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, errors.Wrapf(ErrNotFound, "attempt %s", id)
	}
	return a, nil
}

func inProgressAttempt(ctx context.Context, q db.Querier, userID, testID string) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptCols+attemptFrom+`
		WHERE a.user_id=$1 AND a.test_id=$2 AND a.status=$3`, userID, testID, StatusInProgress))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errors.Wrap(ErrNotFound, "no attempt in progress")
	}
	return a, errors.Wrap(err, "get attempt in progress")
}

// insertAttempt creates an in-progress attempt unless one already exists for
// (userID, testID). It reports whether a row was written.
func insertAttempt(ctx context.Context, q db.Querier, id, userID, testID string, totalQuestions int, now int64) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO test_attempts
		(id,user_id,test_id,status,score,correct_answers,total_questions,passed,started_at,last_saved_at)
		VALUES ($1,$2,$3,$4,0,0,$5,$6,$7,$7)
		ON CONFLICT (user_id, test_id) WHERE status = 'in_progress' DO NOTHING`,
		id, userID, testID, StatusInProgress, totalQuestions, false, now)
	if err != nil {
		return false, errors.Wrap(err, "insert attempt")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "insert attempt")
}

func upsertAnswer(ctx context.Context, q db.Querier, sa SavedAnswer) error {
	_, err := q.ExecContext(ctx, `INSERT INTO saved_answers (attempt_id,question_id,selected_option,is_correct,saved_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			selected_option = excluded.selected_option,
			is_correct = excluded.is_correct,
			saved_at = excluded.saved_at`,
		sa.AttemptID, sa.QuestionID, sa.SelectedOption, sa.IsCorrect, sa.SavedAt.Unix())
	return errors.Wrap(err, "upsert saved answer")
}

func touchAttempt(ctx context.Context, q db.Querier, id string, now int64) error {
	_, err := q.ExecContext(ctx, `UPDATE test_attempts SET last_saved_at=$1 WHERE id=$2`, now, id)
	return errors.Wrap(err, "touch attempt")
}

// savedAnswers returns the attempt's answers keyed by question ID.
func savedAnswers(ctx context.Context, q db.Querier, attemptID string) (map[string]SavedAnswer, error) {
	rows, err := q.QueryContext(ctx, `SELECT attempt_id,question_id,selected_option,is_correct,saved_at
		FROM saved_answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "list saved answers")
	}
	defer rows.Close()
	out := map[string]SavedAnswer{}
	for rows.Next() {
		var (
			sa    SavedAnswer
			saved int64
		)
		if err := rows.Scan(&sa.AttemptID, &sa.QuestionID, &sa.SelectedOption, &sa.IsCorrect, &saved); err != nil {
			return nil, err
		}
		sa.SavedAt = time.Unix(saved, 0).UTC()
		out[sa.QuestionID] = sa
	}
	return out, rows.Err()
}

// completeAttempt writes the final score. It only touches attempts still in
// progress and reports whether it did.
func completeAttempt(ctx context.Context, q db.Querier, a Attempt, now int64) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE test_attempts SET
			status=$1, score=$2, correct_answers=$3, total_questions=$4, passed=$5, completed_at=$6
		WHERE id=$7 AND status=$8`,
		StatusCompleted, a.Score, a.CorrectAnswers, a.TotalQuestions, a.Passed, now, a.ID, StatusInProgress)
	if err != nil {
		return false, errors.Wrap(err, "complete attempt")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "complete attempt")
}

func listAttempts(ctx context.Context, q db.Querier, userID string, status Status) ([]Attempt, error) {
	query := `SELECT ` + attemptCols + attemptFrom + ` WHERE a.user_id=$1`
	args := []any{userID}
	if status != "" {
		query += ` AND a.status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY a.started_at DESC, a.id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
