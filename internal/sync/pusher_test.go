package syncx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/db/dbtest"
)

type upstream struct {
	mu      sync.Mutex
	fail    bool
	batches []Batch
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	var b Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u.batches = append(u.batches, b)
	w.WriteHeader(http.StatusAccepted)
}

func TestPushOnceAdvancesCursorOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	r := NewEventRepo(dbh, "plant-7")
	for _, k := range []string{"a1", "a2", "a3"} {
		require.NoError(t, r.Append(ctx, dbh, TypeAttemptSubmitted, k, map[string]string{"id": k}))
	}

	up := &upstream{fail: true}
	srv := httptest.NewServer(up)
	defer srv.Close()
	p := NewPusher(r, srv.URL, time.Second)
	p.batchSize = 2

	n, err := p.PushOnce(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)
	st, err := p.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, 1, st.Retries)
	assert.Zero(t, st.LastOffset)

	up.mu.Lock()
	up.fail = false
	up.mu.Unlock()
	n, err = p.PushOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = p.PushOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = p.PushOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to push")

	st, err = p.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, st.Status)
	assert.Zero(t, st.Retries)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.batches, 2)
	assert.Equal(t, "plant-7", up.batches[0].SiteID)
	assert.Equal(t, "a1", up.batches[0].Events[0].Key)
	assert.Equal(t, "a3", up.batches[1].Events[0].Key)
	assert.Equal(t, up.batches[1].Events[0].Offset, st.LastOffset)
}

func TestStateBeforeFirstPush(t *testing.T) {
	p := NewPusher(NewEventRepo(dbtest.Open(t), "local"), "http://central.invalid/events", 0)
	st, err := p.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, "http://central.invalid/events", st.Target)
}
