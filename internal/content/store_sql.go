package content

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/db"
	syncx "github.com/processdojo/kiosk/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo // optional
}

func NewSQLStore(dbh *sql.DB, events *syncx.EventRepo) *SQLStore {
	return &SQLStore{db: dbh, events: events}
}

// Import upserts the whole catalog in one transaction. Rows without an ID are
// matched by their natural key (unit name, line name within unit, ...) and
// get a fresh ID when nothing matches.
func (s *SQLStore) Import(ctx context.Context, c Catalog) (Catalog, error) {
	c.NumberQuestions()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	now := time.Now().Unix()
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for ui := range c.Units {
			u := &c.Units[ui]
			if err := upsertUnit(ctx, tx, u, now); err != nil {
				return err
			}
			for li := range u.Lines {
				l := &u.Lines[li]
				l.UnitID = u.ID
				if err := upsertLine(ctx, tx, l, now); err != nil {
					return err
				}
				for oi := range l.Operations {
					op := &l.Operations[oi]
					op.LineID = l.ID
					if err := upsertOperation(ctx, tx, op, now); err != nil {
						return err
					}
					for vi := range op.Videos {
						v := &op.Videos[vi]
						v.OperationID = op.ID
						if err := upsertVideo(ctx, tx, v, now); err != nil {
							return err
						}
						if v.Test == nil {
							continue
						}
						v.Test.VideoID = v.ID
						if err := upsertTest(ctx, tx, v.Test, now); err != nil {
							return err
						}
						for qi := range v.Test.Questions {
							q := &v.Test.Questions[qi]
							q.TestID = v.Test.ID
							if err := upsertQuestion(ctx, tx, q, now); err != nil {
								return err
							}
						}
					}
				}
			}
		}
		if s.events == nil {
			return nil
		}
		return s.events.Append(ctx, tx, syncx.TypeCatalogImported, "catalog", map[string]int{"units": len(c.Units)})
	})
	if err != nil {
		return Catalog{}, err
	}
	glog.V(2).Infof("content: imported %d units", len(c.Units))
	return c, nil
}

func lookupID(ctx context.Context, q db.Querier, query string, args ...any) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.NewString(), nil
	}
	return id, err
}

func upsertUnit(ctx context.Context, tx *sql.Tx, u *Unit, now int64) error {
	if u.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM units WHERE name=$1`, u.Name)
		if err != nil {
			return errors.Wrap(err, "lookup unit")
		}
		u.ID = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO units (id,name,description,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, description=excluded.description, is_active=excluded.is_active`,
		u.ID, u.Name, u.Description, u.IsActive, now)
	return errors.Wrapf(err, "upsert unit %q", u.Name)
}

func upsertLine(ctx context.Context, tx *sql.Tx, l *Line, now int64) error {
	if l.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM lines WHERE unit_id=$1 AND name=$2`, l.UnitID, l.Name)
		if err != nil {
			return errors.Wrap(err, "lookup line")
		}
		l.ID = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO lines (id,unit_id,name,description,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET unit_id=excluded.unit_id, name=excluded.name,
			description=excluded.description, is_active=excluded.is_active`,
		l.ID, l.UnitID, l.Name, l.Description, l.IsActive, now)
	return errors.Wrapf(err, "upsert line %q", l.Name)
}

func upsertOperation(ctx context.Context, tx *sql.Tx, op *Operation, now int64) error {
	if op.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM operations WHERE line_id=$1 AND name=$2`, op.LineID, op.Name)
		if err != nil {
			return errors.Wrap(err, "lookup operation")
		}
		op.ID = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO operations
		(id,line_id,name,code,description,is_ctq_station,is_active,ordering,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET line_id=excluded.line_id, name=excluded.name, code=excluded.code,
			description=excluded.description, is_ctq_station=excluded.is_ctq_station,
			is_active=excluded.is_active, ordering=excluded.ordering`,
		op.ID, op.LineID, op.Name, op.Code, op.Description, op.IsCTQStation, op.IsActive, op.Ordering, now)
	return errors.Wrapf(err, "upsert operation %q", op.Name)
}

func upsertVideo(ctx context.Context, tx *sql.Tx, v *Video, now int64) error {
	if v.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM videos WHERE operation_id=$1 AND title=$2`, v.OperationID, v.Title)
		if err != nil {
			return errors.Wrap(err, "lookup video")
		}
		v.ID = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO videos
		(id,operation_id,title,description,file_key,duration_seconds,has_voice,has_callouts,is_active,ordering,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET operation_id=excluded.operation_id, title=excluded.title,
			description=excluded.description,
			file_key=CASE WHEN excluded.file_key = '' THEN videos.file_key ELSE excluded.file_key END,
			duration_seconds=excluded.duration_seconds,
			has_voice=excluded.has_voice, has_callouts=excluded.has_callouts,
			is_active=excluded.is_active, ordering=excluded.ordering`,
		v.ID, v.OperationID, v.Title, v.Description, v.FileKey, v.DurationSeconds,
		v.HasVoice, v.HasCallouts, v.IsActive, v.Ordering, now)
	return errors.Wrapf(err, "upsert video %q", v.Title)
}

func upsertTest(ctx context.Context, tx *sql.Tx, t *Test, now int64) error {
	if t.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM tests WHERE video_id=$1`, t.VideoID)
		if err != nil {
			return errors.Wrap(err, "lookup test")
		}
		t.ID = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO tests
		(id,video_id,title,description,passing_score,time_limit_minutes,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET video_id=excluded.video_id, title=excluded.title,
			description=excluded.description, passing_score=excluded.passing_score,
			time_limit_minutes=excluded.time_limit_minutes, is_active=excluded.is_active`,
		t.ID, t.VideoID, t.Title, t.Description, t.PassingScore, t.TimeLimitMinutes, t.IsActive, now)
	return errors.Wrapf(err, "upsert test %q", t.Title)
}

func upsertQuestion(ctx context.Context, tx *sql.Tx, q *Question, now int64) error {
	if q.ID == "" {
		id, err := lookupID(ctx, tx, `SELECT id FROM questions WHERE test_id=$1 AND ordering=$2`, q.TestID, q.Ordering)
		if err != nil {
			return errors.Wrap(err, "lookup question")
		}
		q.ID = id
	}
	q.CorrectAnswer, _ = NormalizeOption(q.CorrectAnswer)
	_, err := tx.ExecContext(ctx, `INSERT INTO questions
		(id,test_id,text,option_a,option_b,option_c,option_d,correct_answer,marks,ordering,explanation,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET test_id=excluded.test_id, text=excluded.text,
			option_a=excluded.option_a, option_b=excluded.option_b, option_c=excluded.option_c, option_d=excluded.option_d,
			correct_answer=excluded.correct_answer, marks=excluded.marks, ordering=excluded.ordering,
			explanation=excluded.explanation`,
		q.ID, q.TestID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectAnswer, q.Marks, q.Ordering, q.Explanation, now)
	return errors.Wrapf(err, "upsert question %d", q.Ordering)
}

// Tree returns active units with their active lines, operations and videos,
// in display order. Tests and questions are not included.
func (s *SQLStore) Tree(ctx context.Context) ([]Unit, error) {
	units := []Unit{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,description,is_active FROM units WHERE is_active=$1 ORDER BY name`, true)
	if err != nil {
		return nil, errors.Wrap(err, "list units")
	}
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Description, &u.IsActive); err != nil {
			rows.Close()
			return nil, err
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.activeLines(ctx)
	if err != nil {
		return nil, err
	}
	ops, err := s.activeOperations(ctx)
	if err != nil {
		return nil, err
	}
	videos, err := s.activeVideos(ctx)
	if err != nil {
		return nil, err
	}
	for oi := range ops {
		ops[oi].Videos = videos[ops[oi].ID]
	}
	opsByLine := map[string][]Operation{}
	for _, op := range ops {
		opsByLine[op.LineID] = append(opsByLine[op.LineID], op)
	}
	for li := range lines {
		lines[li].Operations = opsByLine[lines[li].ID]
	}
	linesByUnit := map[string][]Line{}
	for _, l := range lines {
		linesByUnit[l.UnitID] = append(linesByUnit[l.UnitID], l)
	}
	for ui := range units {
		units[ui].Lines = linesByUnit[units[ui].ID]
	}
	return units, nil
}

func (s *SQLStore) activeLines(ctx context.Context) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,unit_id,name,description,is_active FROM lines WHERE is_active=$1 ORDER BY unit_id, name`, true)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.UnitID, &l.Name, &l.Description, &l.IsActive); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) activeOperations(ctx context.Context) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,line_id,name,code,description,is_ctq_station,is_active,ordering
		FROM operations WHERE is_active=$1 ORDER BY line_id, ordering, name`, true)
	if err != nil {
		return nil, errors.Wrap(err, "list operations")
	}
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.LineID, &op.Name, &op.Code, &op.Description,
			&op.IsCTQStation, &op.IsActive, &op.Ordering); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// activeVideos returns active videos keyed by operation ID.
func (s *SQLStore) activeVideos(ctx context.Context) (map[string][]Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoCols+`
		FROM videos WHERE is_active=$1 ORDER BY operation_id, ordering, title`, true)
	if err != nil {
		return nil, errors.Wrap(err, "list videos")
	}
	defer rows.Close()
	out := map[string][]Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out[v.OperationID] = append(out[v.OperationID], v)
	}
	return out, rows.Err()
}

const videoCols = `id,operation_id,title,description,file_key,duration_seconds,has_voice,has_callouts,is_active,ordering`

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(sc scanner) (Video, error) {
	var v Video
	err := sc.Scan(&v.ID, &v.OperationID, &v.Title, &v.Description, &v.FileKey,
		&v.DurationSeconds, &v.HasVoice, &v.HasCallouts, &v.IsActive, &v.Ordering)
	return v, err
}

func (s *SQLStore) GetVideo(ctx context.Context, id string) (Video, error) {
	v, err := scanVideo(s.db.QueryRowContext(ctx, `SELECT `+videoCols+` FROM videos WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, errors.Wrapf(ErrNotFound, "video %s", id)
	}
	if err != nil {
		return Video{}, errors.Wrap(err, "get video")
	}
	t, err := s.GetTestByVideo(ctx, id)
	switch {
	case err == nil:
		v.Test = &t
	case !errors.Is(err, ErrNotFound):
		return Video{}, err
	}
	return v, nil
}

// GetTest loads a test's configuration without its questions.
func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	return GetTest(ctx, s.db, id)
}

func (s *SQLStore) GetTestByVideo(ctx context.Context, videoID string) (Test, error) {
	t, err := scanTest(s.db.QueryRowContext(ctx, `SELECT `+testCols+` FROM tests WHERE video_id=$1`, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, errors.Wrapf(ErrNotFound, "test for video %s", videoID)
	}
	return t, errors.Wrap(err, "get test by video")
}

// Questions returns a test's questions including answer keys, ordered for display.
func (s *SQLStore) Questions(ctx context.Context, testID string) ([]Question, error) {
	return Questions(ctx, s.db, testID)
}

const testCols = `id,video_id,title,description,passing_score,time_limit_minutes,is_active`

func scanTest(sc scanner) (Test, error) {
	var t Test
	err := sc.Scan(&t.ID, &t.VideoID, &t.Title, &t.Description, &t.PassingScore, &t.TimeLimitMinutes, &t.IsActive)
	return t, err
}

// GetTest is the querier-level form of SQLStore.GetTest, usable inside a
// caller's transaction.
func GetTest(ctx context.Context, q db.Querier, id string) (Test, error) {
	t, err := scanTest(q.QueryRowContext(ctx, `SELECT `+testCols+` FROM tests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, errors.Wrapf(ErrNotFound, "test %s", id)
	}
	return t, errors.Wrap(err, "get test")
}

func Questions(ctx context.Context, q db.Querier, testID string) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,test_id,text,option_a,option_b,option_c,option_d,
		correct_answer,marks,ordering,explanation
		FROM questions WHERE test_id=$1 ORDER BY ordering, id`, testID)
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var qu Question
		if err := rows.Scan(&qu.ID, &qu.TestID, &qu.Text, &qu.OptionA, &qu.OptionB, &qu.OptionC, &qu.OptionD,
			&qu.CorrectAnswer, &qu.Marks, &qu.Ordering, &qu.Explanation); err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

// GetQuestion loads a question only if it belongs to testID.
func GetQuestion(ctx context.Context, q db.Querier, testID, questionID string) (Question, error) {
	var qu Question
	err := q.QueryRowContext(ctx, `SELECT id,test_id,text,option_a,option_b,option_c,option_d,
		correct_answer,marks,ordering,explanation
		FROM questions WHERE id=$1 AND test_id=$2`, questionID, testID).
		Scan(&qu.ID, &qu.TestID, &qu.Text, &qu.OptionA, &qu.OptionB, &qu.OptionC, &qu.OptionD,
			&qu.CorrectAnswer, &qu.Marks, &qu.Ordering, &qu.Explanation)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, errors.Wrapf(ErrNotFound, "question %s in test %s", questionID, testID)
	}
	return qu, errors.Wrap(err, "get question")
}

func CountQuestions(ctx context.Context, q db.Querier, testID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE test_id=$1`, testID).Scan(&n)
	return n, errors.Wrap(err, "count questions")
}

// SetVideoFile points videoID at a stored blob.
func (s *SQLStore) SetVideoFile(ctx context.Context, videoID, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET file_key=$1 WHERE id=$2`, key, videoID)
	if err != nil {
		return errors.Wrap(err, "set video file")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "video %s", videoID)
	}
	return nil
}
