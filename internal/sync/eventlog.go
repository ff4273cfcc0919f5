// Package syncx keeps the append-only event log a kiosk replays to the
// central server when it comes back online.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/db"
)

// Event types written by the kiosk.
const (
	TypeAttemptStarted    = "AttemptStarted"
	TypeAttemptSubmitted  = "AttemptSubmitted"
	TypeCatalogImported   = "CatalogImported"
	TypeBiometricEnrolled = "BiometricEnrolled"
)

type Event struct {
	Offset    int64           `json:"offset"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	// serial is set on postgres, where BIGSERIAL offsets are handed out at
	// insert time and could otherwise commit out of order.
	serial bool
}

func NewEventRepo(dbh *sql.DB, siteID string) *EventRepo {
	return &EventRepo{db: dbh, siteID: siteID, serial: db.IsPostgres(dbh)}
}

// appendLockKey is the advisory lock that orders event_log commits.
const appendLockKey int64 = 0x6b696f736b

// Append writes one event through q so it commits or rolls back with the
// caller's transaction. data is marshalled to JSON.
//
// On postgres every append first takes a transaction-scoped advisory lock, so
// offsets become visible in increasing order and a reader's cursor never
// passes an event that has not committed yet. The lock is held until the
// caller's transaction ends, so Append should be the last write in it.
func (r *EventRepo) Append(ctx context.Context, q db.Querier, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", typ)
	}
	if !r.serial {
		return r.insert(ctx, q, typ, key, buf)
	}
	if tx, ok := q.(*sql.Tx); ok {
		return r.lockedInsert(ctx, tx, typ, key, buf)
	}
	return db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.lockedInsert(ctx, tx, typ, key, buf)
	})
}

func (r *EventRepo) lockedInsert(ctx context.Context, tx *sql.Tx, typ, key string, buf []byte) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return errors.Wrap(err, "lock event log")
	}
	return r.insert(ctx, tx, typ, key, buf)
}

func (r *EventRepo) insert(ctx context.Context, q db.Querier, typ, key string, buf []byte) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(buf), time.Now().Unix())
	return errors.Wrapf(err, "append %s event", typ)
}

// Since returns up to limit events with an offset greater than after, oldest
// first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", site_id, typ, key, data, created_at FROM event_log
		 WHERE "offset" > $1 ORDER BY "offset" LIMIT $2`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Offset, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
