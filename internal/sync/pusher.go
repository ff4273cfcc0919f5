package syncx

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Sync status values kept in sync_state.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// State is the replication cursor for one upstream target.
type State struct {
	Target     string    `json:"target"`
	LastOffset int64     `json:"last_offset"`
	Status     string    `json:"status"`
	Retries    int       `json:"retries"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Batch is the body posted upstream.
type Batch struct {
	SiteID string  `json:"site_id"`
	Events []Event `json:"events"`
}

// Pusher replays the local event log to a central server. The cursor only
// advances after the server acknowledges a batch, so a failed push is resent.
type Pusher struct {
	events    *EventRepo
	client    *http.Client
	target    string
	batchSize int
	now       func() time.Time
}

func NewPusher(events *EventRepo, target string, timeout time.Duration) *Pusher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pusher{
		events:    events,
		client:    &http.Client{Timeout: timeout},
		target:    target,
		batchSize: 200,
		now:       time.Now,
	}
}

func (p *Pusher) State(ctx context.Context) (State, error) {
	st := State{Target: p.target, Status: StatusPending}
	var updated int64
	err := p.events.db.QueryRowContext(ctx, `SELECT last_offset, status, retries, last_error, updated_at
		FROM sync_state WHERE target=$1`, p.target).
		Scan(&st.LastOffset, &st.Status, &st.Retries, &st.LastError, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return State{}, errors.Wrap(err, "load sync state")
	}
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return st, nil
}

func (p *Pusher) markOK(ctx context.Context, offset int64) error {
	_, err := p.events.db.ExecContext(ctx, `INSERT INTO sync_state (target, last_offset, status, retries, last_error, updated_at)
		VALUES ($1,$2,$3,0,'',$4)
		ON CONFLICT (target) DO UPDATE SET last_offset=excluded.last_offset, status=excluded.status,
			retries=0, last_error='', updated_at=excluded.updated_at`,
		p.target, offset, StatusOK, p.now().Unix())
	return errors.Wrap(err, "mark sync ok")
}

func (p *Pusher) markFailed(ctx context.Context, cause error) error {
	_, err := p.events.db.ExecContext(ctx, `INSERT INTO sync_state (target, last_offset, status, retries, last_error, updated_at)
		VALUES ($1,0,$2,1,$3,$4)
		ON CONFLICT (target) DO UPDATE SET status=excluded.status,
			retries=sync_state.retries+1, last_error=excluded.last_error, updated_at=excluded.updated_at`,
		p.target, StatusFailed, cause.Error(), p.now().Unix())
	return errors.Wrap(err, "mark sync failed")
}

// PushOnce sends the next batch after the cursor and returns how many events
// the server accepted.
func (p *Pusher) PushOnce(ctx context.Context) (int, error) {
	st, err := p.State(ctx)
	if err != nil {
		return 0, err
	}
	evs, err := p.events.Since(ctx, st.LastOffset, p.batchSize)
	if err != nil || len(evs) == 0 {
		return 0, err
	}
	if err := p.post(ctx, Batch{SiteID: p.events.siteID, Events: evs}); err != nil {
		if merr := p.markFailed(ctx, err); merr != nil {
			glog.Errorf("sync: %v", merr)
		}
		return 0, err
	}
	if err := p.markOK(ctx, evs[len(evs)-1].Offset); err != nil {
		return 0, err
	}
	return len(evs), nil
}

func (p *Pusher) post(ctx context.Context, b Batch) error {
	body, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshal batch")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.target, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post events")
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return errors.Errorf("post events: %s", res.Status)
	}
	return nil
}

// Run pushes every interval until ctx is done, draining the backlog a batch
// at a time.
func (p *Pusher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for {
			n, err := p.PushOnce(ctx)
			if err != nil {
				glog.Warningf("sync: push to %s: %v", p.target, err)
				break
			}
			if n < p.batchSize {
				break
			}
			glog.V(2).Infof("sync: pushed %d events", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
