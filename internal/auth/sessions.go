package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Method          string     `json:"method"`
	LoginAt         time.Time  `json:"login_at"`
	LogoutAt        *time.Time `json:"logout_at"`
	DurationMinutes int        `json:"duration_minutes"`
}

// StartSession records a login and returns the new session ID.
func (s *Users) StartSession(ctx context.Context, userID, method string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO login_sessions (id,user_id,method,login_at)
		VALUES ($1,$2,$3,$4)`, id, userID, method, s.now().Unix())
	return id, errors.Wrap(err, "start session")
}

// EndSession closes an open session owned by userID and stores its length in
// whole minutes. Closing an already closed session is a no-op.
func (s *Users) EndSession(ctx context.Context, userID, sessionID string) (Session, error) {
	var (
		ss     Session
		login  int64
		logout sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id,user_id,method,login_at,logout_at,duration_minutes
		FROM login_sessions WHERE id=$1 AND user_id=$2`, sessionID, userID).
		Scan(&ss.ID, &ss.UserID, &ss.Method, &login, &logout, &ss.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errors.Wrapf(ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "get session")
	}
	ss.LoginAt = time.Unix(login, 0).UTC()
	if logout.Valid {
		t := time.Unix(logout.Int64, 0).UTC()
		ss.LogoutAt = &t
		return ss, nil
	}

	now := s.now().UTC().Truncate(time.Second)
	ss.DurationMinutes = int(now.Sub(ss.LoginAt).Minutes())
	ss.LogoutAt = &now
	_, err = s.db.ExecContext(ctx, `UPDATE login_sessions SET logout_at=$1, duration_minutes=$2
		WHERE id=$3 AND logout_at IS NULL`, now.Unix(), ss.DurationMinutes, ss.ID)
	return ss, errors.Wrap(err, "end session")
}
