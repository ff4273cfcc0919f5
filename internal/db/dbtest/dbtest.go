// Package dbtest opens throwaway in-memory databases and seeds fixture rows
// for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/db"
)

// Open returns a fresh schema-initialised sqlite database closed at test end.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return dbh
}

// User inserts an employee and returns its ID.
func User(t testing.TB, dbh *sql.DB, username string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := dbh.Exec(`INSERT INTO users (id,username,role,full_name,employee_id,created_at)
		VALUES ($1,$2,'employee',$3,$4,$5)`, id, username, "Full "+username, "E-"+username, time.Now().Unix())
	require.NoError(t, err)
	return id
}

// Fixture is a seeded unit/line/operation/video/test chain.
type Fixture struct {
	VideoID     string
	TestID      string
	QuestionIDs []string
}

// QuestionSpec describes one seeded question.
type QuestionSpec struct {
	Correct string
	Marks   int
}

// Quiz seeds a video with a test of the given questions. Question texts and
// option texts are derived from their position.
func Quiz(t testing.TB, dbh *sql.DB, passingScore int, qs ...QuestionSpec) Fixture {
	t.Helper()
	now := time.Now().Unix()
	unitID, lineID, opID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	f := Fixture{VideoID: uuid.NewString(), TestID: uuid.NewString()}
	stmts := []struct {
		q    string
		args []any
	}{
		{`INSERT INTO units (id,name,created_at) VALUES ($1,$2,$3)`, []any{unitID, "Unit " + unitID[:8], now}},
		{`INSERT INTO lines (id,unit_id,name,created_at) VALUES ($1,$2,'Line 1',$3)`, []any{lineID, unitID, now}},
		{`INSERT INTO operations (id,line_id,name,created_at) VALUES ($1,$2,'Op 1',$3)`, []any{opID, lineID, now}},
		{`INSERT INTO videos (id,operation_id,title,file_key,created_at) VALUES ($1,$2,'Safety',$3,$4)`,
			[]any{f.VideoID, opID, "videos/" + f.VideoID + ".mp4", now}},
		{`INSERT INTO tests (id,video_id,title,passing_score,created_at) VALUES ($1,$2,'Safety quiz',$3,$4)`,
			[]any{f.TestID, f.VideoID, passingScore, now}},
	}
	for _, s := range stmts {
		_, err := dbh.Exec(s.q, s.args...)
		require.NoError(t, err)
	}
	for i, q := range qs {
		id := uuid.NewString()
		n := i + 1
		_, err := dbh.Exec(`INSERT INTO questions
			(id,test_id,text,option_a,option_b,option_c,option_d,correct_answer,marks,ordering,explanation,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			id, f.TestID, fmt.Sprintf("Question %d", n),
			fmt.Sprintf("q%d-a", n), fmt.Sprintf("q%d-b", n), fmt.Sprintf("q%d-c", n), fmt.Sprintf("q%d-d", n),
			q.Correct, q.Marks, n, fmt.Sprintf("because %d", n), now)
		require.NoError(t, err)
		f.QuestionIDs = append(f.QuestionIDs, id)
	}
	return f
}

// CompleteVideo marks videoID watched by userID.
func CompleteVideo(t testing.TB, dbh *sql.DB, userID, videoID string) {
	t.Helper()
	now := time.Now().Unix()
	_, err := dbh.Exec(`INSERT INTO video_completions
		(user_id,video_id,percentage,is_completed,access_count,last_watched_at,created_at)
		VALUES ($1,$2,100,$3,1,$4,$4)`, userID, videoID, true, now)
	require.NoError(t, err)
}
