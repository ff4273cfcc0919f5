package syncx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/db"
	"github.com/processdojo/kiosk/internal/db/dbtest"
)

func TestAppendAndSince(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	r := NewEventRepo(dbh, "plant-7")

	require.NoError(t, r.Append(ctx, dbh, TypeAttemptStarted, "a1", map[string]string{"user_id": "u1"}))
	require.NoError(t, r.Append(ctx, dbh, TypeAttemptSubmitted, "a1", map[string]any{"score": 50.0}))

	evs, err := r.Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, TypeAttemptStarted, evs[0].Type)
	assert.Equal(t, "plant-7", evs[0].SiteID)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(evs[0].Data))

	evs, err = r.Since(ctx, evs[0].Offset, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeAttemptSubmitted, evs[0].Type)
}

func TestAppendRollsBackWithTx(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	r := NewEventRepo(dbh, "local")

	_ = db.InTx(ctx, dbh, func(tx *sql.Tx) error {
		require.NoError(t, r.Append(ctx, tx, TypeAttemptStarted, "a1", nil))
		return assert.AnError
	})

	evs, err := r.Since(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestAppendSerialisedOnlyOnPostgres(t *testing.T) {
	assert.False(t, NewEventRepo(dbtest.Open(t), "local").serial)

	pg, err := sql.Open("pgx", "postgres://localhost:1/none")
	require.NoError(t, err)
	defer pg.Close()
	assert.True(t, NewEventRepo(pg, "local").serial)
}

func TestAppendOutsideTxOnSQLite(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	r := NewEventRepo(dbh, "local")
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, r.Append(ctx, dbh, TypeAttemptStarted, k, nil))
	}
	evs, err := r.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i := 1; i < len(evs); i++ {
		assert.Greater(t, evs[i].Offset, evs[i-1].Offset)
	}
}
