// Package videogate tracks how far each user has watched each training video
// and answers whether a test may be started.
package videogate

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/db"
)

var ErrNotFound = errors.New("completion not found")

type Completion struct {
	UserID        string    `json:"user_id"`
	VideoID       string    `json:"video_id"`
	Percentage    float64   `json:"completion_percentage"`
	IsCompleted   bool      `json:"is_completed"`
	AccessCount   int       `json:"access_count"`
	LastWatchedAt time.Time `json:"last_watched_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type Gate struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbh *sql.DB) *Gate {
	return &Gate{db: dbh, now: time.Now}
}

// MarkAccess records that userID opened videoID, creating the completion row
// on first access.
func (g *Gate) MarkAccess(ctx context.Context, userID, videoID string) (Completion, error) {
	now := g.now().Unix()
	var c Completion
	err := db.InTx(ctx, g.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO video_completions
			(user_id,video_id,percentage,is_completed,access_count,last_watched_at,created_at)
			VALUES ($1,$2,0,$3,1,$4,$4)
			ON CONFLICT (user_id, video_id) DO UPDATE SET
				access_count = video_completions.access_count + 1,
				last_watched_at = excluded.last_watched_at`,
			userID, videoID, false, now)
		if err != nil {
			return errors.Wrap(err, "mark access")
		}
		c, err = get(ctx, tx, userID, videoID)
		return err
	})
	return c, err
}

// UpdateProgress stores the latest watched percentage, clamped to 0-100. Once
// a video is completed it stays completed even if a lower percentage arrives.
func (g *Gate) UpdateProgress(ctx context.Context, userID, videoID string, pct float64) (Completion, error) {
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	now := g.now().Unix()
	var c Completion
	err := db.InTx(ctx, g.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE video_completions SET
				percentage = $3,
				is_completed = (is_completed OR $4),
				last_watched_at = $5
			WHERE user_id=$1 AND video_id=$2`,
			userID, videoID, pct, pct >= 100, now)
		if err != nil {
			return errors.Wrap(err, "update progress")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(ErrNotFound, "user %s video %s", userID, videoID)
		}
		c, err = get(ctx, tx, userID, videoID)
		return err
	})
	if err == nil && c.IsCompleted {
		glog.V(2).Infof("videogate: user %s completed video %s", userID, videoID)
	}
	return c, err
}

func (g *Gate) Get(ctx context.Context, userID, videoID string) (Completion, error) {
	return get(ctx, g.db, userID, videoID)
}

// IsEligible reports whether userID has fully watched videoID. A missing
// completion row is not an error.
func (g *Gate) IsEligible(ctx context.Context, userID, videoID string) (bool, error) {
	return IsEligible(ctx, g.db, userID, videoID)
}

// IsEligible is the querier-level form of Gate.IsEligible for callers that
// already hold a transaction.
func IsEligible(ctx context.Context, q db.Querier, userID, videoID string) (bool, error) {
	var done bool
	err := q.QueryRowContext(ctx, `SELECT is_completed FROM video_completions
		WHERE user_id=$1 AND video_id=$2`, userID, videoID).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "check eligibility")
	}
	return done, nil
}

func get(ctx context.Context, q db.Querier, userID, videoID string) (Completion, error) {
	var (
		c                Completion
		watched, created int64
	)
	err := q.QueryRowContext(ctx, `SELECT user_id,video_id,percentage,is_completed,access_count,last_watched_at,created_at
		FROM video_completions WHERE user_id=$1 AND video_id=$2`, userID, videoID).
		Scan(&c.UserID, &c.VideoID, &c.Percentage, &c.IsCompleted, &c.AccessCount, &watched, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Completion{}, errors.Wrapf(ErrNotFound, "user %s video %s", userID, videoID)
	}
	if err != nil {
		return Completion{}, errors.Wrap(err, "get completion")
	}
	c.LastWatchedAt = time.Unix(watched, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}
