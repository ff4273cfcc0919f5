package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	dbh, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return dbh
}

func TestOpenSQLiteSchemaIsIdempotent(t *testing.T) {
	dbh := openMem(t)
	require.NoError(t, ensureSchema(context.Background(), dbh, DriverSQLite))

	var n int
	err := dbh.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN
		('users','tests','questions','test_attempts','saved_answers','video_completions','event_log','sync_state')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("mysql"), "")
	assert.Error(t, err)
}

func TestInTxRollsBackOnError(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := InTx(ctx, dbh, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, created_at) VALUES ($1,$2,$3)`, "u1", "alice", 1); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	var n int
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestInTxCommits(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()

	err := InTx(ctx, dbh, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, created_at) VALUES ($1,$2,$3)`, "u1", "alice", 1)
		return err
	})
	require.NoError(t, err)

	var name string
	require.NoError(t, dbh.QueryRow(`SELECT username FROM users WHERE id=$1`, "u1").Scan(&name))
	assert.Equal(t, "alice", name)
}

func TestAttemptsCascadeWithUser(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO users (id, username, created_at) VALUES ('u1','alice',1)`,
		`INSERT INTO units (id, name, created_at) VALUES ('un','Unit',1)`,
		`INSERT INTO lines (id, unit_id, name, created_at) VALUES ('l','un','Line',1)`,
		`INSERT INTO operations (id, line_id, name, created_at) VALUES ('o','l','Op',1)`,
		`INSERT INTO videos (id, operation_id, title, created_at) VALUES ('v','o','Video',1)`,
		`INSERT INTO tests (id, video_id, title, created_at) VALUES ('t','v','Test',1)`,
		`INSERT INTO questions (id, test_id, text, option_a, option_b, option_c, option_d, correct_answer, created_at)
		 VALUES ('q','t','?','a','b','c','d','A',1)`,
		`INSERT INTO test_attempts (id, user_id, test_id, status, started_at, last_saved_at) VALUES ('a','u1','t','in_progress',1,1)`,
		`INSERT INTO saved_answers (attempt_id, question_id, selected_option, is_correct, saved_at) VALUES ('a','q','A',1,1)`,
		`DELETE FROM test_attempts WHERE id='a'`,
	}
	for _, s := range stmts {
		_, err := dbh.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
	var n int
	require.NoError(t, dbh.QueryRow(`SELECT COUNT(*) FROM saved_answers`).Scan(&n))
	assert.Zero(t, n)
}

func TestOnlyOneInProgressAttemptPerUserAndTest(t *testing.T) {
	dbh := openMem(t)
	ctx := context.Background()
	for _, s := range []string{
		`INSERT INTO users (id, username, created_at) VALUES ('u1','alice',1)`,
		`INSERT INTO units (id, name, created_at) VALUES ('un','Unit',1)`,
		`INSERT INTO lines (id, unit_id, name, created_at) VALUES ('l','un','Line',1)`,
		`INSERT INTO operations (id, line_id, name, created_at) VALUES ('o','l','Op',1)`,
		`INSERT INTO videos (id, operation_id, title, created_at) VALUES ('v','o','Video',1)`,
		`INSERT INTO tests (id, video_id, title, created_at) VALUES ('t','v','Test',1)`,
		`INSERT INTO test_attempts (id, user_id, test_id, status, started_at, last_saved_at) VALUES ('a1','u1','t','completed',1,1)`,
		`INSERT INTO test_attempts (id, user_id, test_id, status, started_at, last_saved_at) VALUES ('a2','u1','t','in_progress',1,1)`,
	} {
		_, err := dbh.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
	_, err := dbh.ExecContext(ctx,
		`INSERT INTO test_attempts (id, user_id, test_id, status, started_at, last_saved_at) VALUES ('a3','u1','t','in_progress',1,1)`)
	assert.Error(t, err)
}

func TestIsPostgres(t *testing.T) {
	assert.False(t, IsPostgres(openMem(t)))

	// sql.Open does not dial, so no server is needed.
	pg, err := sql.Open("pgx", "postgres://localhost:1/none")
	require.NoError(t, err)
	defer pg.Close()
	assert.True(t, IsPostgres(pg))
}
