package content

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/processdojo/kiosk/internal/db/dbtest"
)

const catalogJSON = `{
  "units": [{
    "name": "Assembly",
    "lines": [{
      "name": "Line A",
      "operations": [{
        "name": "Torque check",
        "is_ctq_station": true,
        "videos": [{
          "title": "Torque wrench basics",
          "file_key": "videos/torque.mp4",
          "duration_seconds": 120,
          "test": {
            "title": "Torque quiz",
            "passing_score": 60,
            "questions": [
              {"text": "Q2", "option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d", "correct_answer": "b", "ordering": 2},
              {"text": "Q1", "option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d", "correct_answer": "A", "ordering": 1, "marks": 3}
            ]
          }
        }, {
          "title": "Retired clip",
          "is_active": false
        }]
      }]
    }]
  }]
}`

func decodeCatalog(t *testing.T) Catalog {
	t.Helper()
	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(catalogJSON), &c))
	return c
}

func TestCatalogDecodeDefaults(t *testing.T) {
	c := decodeCatalog(t)
	v := c.Units[0].Lines[0].Operations[0].Videos[0]
	assert.True(t, v.IsActive)
	assert.True(t, v.HasVoice)
	assert.Equal(t, 30, v.Test.TimeLimitMinutes)
	assert.Equal(t, 60, v.Test.PassingScore)
	assert.Equal(t, 1, v.Test.Questions[0].Marks)
	assert.Equal(t, 3, v.Test.Questions[1].Marks)
	assert.False(t, c.Units[0].Lines[0].Operations[0].Videos[1].IsActive)
}

func TestCatalogValidate(t *testing.T) {
	c := decodeCatalog(t)
	require.NoError(t, c.Validate())

	c.Units[0].Lines[0].Operations[0].Videos[0].Test.Questions[0].CorrectAnswer = "E"
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))

	c = decodeCatalog(t)
	c.Units[0].Lines[0].Operations[0].Videos[0].Test.PassingScore = 101
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))

	c = decodeCatalog(t)
	c.Units[0].Name = " "
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))
}

func TestImportAndRead(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t), nil)

	out, err := s.Import(ctx, decodeCatalog(t))
	require.NoError(t, err)
	video := out.Units[0].Lines[0].Operations[0].Videos[0]
	require.NotEmpty(t, video.ID)
	require.NotEmpty(t, video.Test.ID)

	tree, err := s.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	ops := tree[0].Lines[0].Operations
	require.Len(t, ops, 1)
	assert.True(t, ops[0].IsCTQStation)
	require.Len(t, ops[0].Videos, 1, "inactive video hidden")
	assert.Equal(t, "Torque wrench basics", ops[0].Videos[0].Title)

	got, err := s.GetVideo(ctx, video.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Test)
	assert.Equal(t, video.Test.ID, got.Test.ID)
	assert.Equal(t, 60, got.Test.PassingScore)

	qs, err := s.Questions(ctx, video.Test.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Q1", qs[0].Text, "ordered by ordering")
	assert.Equal(t, "B", qs[1].CorrectAnswer, "answer key normalised")

	n, err := CountQuestions(ctx, s.db, video.Test.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportIsIdempotentByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t), nil)

	first, err := s.Import(ctx, decodeCatalog(t))
	require.NoError(t, err)

	c := decodeCatalog(t)
	c.Units[0].Lines[0].Operations[0].Videos[0].Test.PassingScore = 80
	c.Units[0].Lines[0].Operations[0].Videos[0].Test.Questions = nil
	second, err := s.Import(ctx, c)
	require.NoError(t, err)

	v1 := first.Units[0].Lines[0].Operations[0].Videos[0]
	v2 := second.Units[0].Lines[0].Operations[0].Videos[0]
	assert.Equal(t, v1.ID, v2.ID)
	assert.Equal(t, v1.Test.ID, v2.Test.ID)

	tst, err := s.GetTest(ctx, v1.Test.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, tst.PassingScore)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	dbh := dbtest.Open(t)
	s := NewSQLStore(dbh, nil)

	_, err := s.GetVideo(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetTest(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	f := dbtest.Quiz(t, dbh, 70, dbtest.QuestionSpec{Correct: "A", Marks: 1})
	other := dbtest.Quiz(t, dbh, 70, dbtest.QuestionSpec{Correct: "A", Marks: 1})
	_, err = GetQuestion(ctx, dbh, f.TestID, other.QuestionIDs[0])
	assert.True(t, errors.Is(err, ErrNotFound), "question from another test")
	q, err := GetQuestion(ctx, dbh, f.TestID, f.QuestionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "q1-a", q.OptionText("A"))
	assert.Equal(t, NotAnswered, q.OptionText(""))
	assert.Empty(t, q.Public().CorrectAnswer)
}

func TestNormalizeOption(t *testing.T) {
	for in, want := range map[string]struct {
		tag string
		ok  bool
	}{
		"a":   {"A", true},
		" D ": {"D", true},
		"":    {"", true},
		"E":   {"E", false},
		"AB":  {"AB", false},
	} {
		tag, ok := NormalizeOption(in)
		assert.Equal(t, want.tag, tag, in)
		assert.Equal(t, want.ok, ok, in)
	}
}

func TestImportNumbersUnorderedQuestions(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t), nil)

	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(`{"units": [{"name": "Paint", "lines": [{"name": "L1",
		"operations": [{"name": "Spray", "videos": [{"title": "Booth", "test": {"title": "Booth quiz",
		"questions": [
			{"text": "q1", "option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d", "correct_answer": "A"},
			{"text": "q2", "option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d", "correct_answer": "B"},
			{"text": "q3", "option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d", "correct_answer": "C"}
		]}}]}]}]}]}`), &c))

	out, err := s.Import(ctx, c)
	require.NoError(t, err)
	tid := out.Units[0].Lines[0].Operations[0].Videos[0].Test.ID

	qs, err := s.Questions(ctx, tid)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for i, q := range qs {
		assert.Equal(t, i+1, q.Ordering)
		assert.Equal(t, "q"+string(rune('1'+i)), q.Text)
	}

	// Re-importing the same document updates in place.
	_, err = s.Import(ctx, c)
	require.NoError(t, err)
	n, err := CountQuestions(ctx, s.db, tid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	c := decodeCatalog(t)
	qs := c.Units[0].Lines[0].Operations[0].Videos[0].Test.Questions
	qs[1].Ordering = qs[0].Ordering
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))

	c = decodeCatalog(t)
	op := &c.Units[0].Lines[0].Operations[0]
	op.Videos[1].Title = op.Videos[0].Title
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))

	c = decodeCatalog(t)
	c.Units = append(c.Units, Unit{Name: c.Units[0].Name})
	assert.True(t, errors.Is(c.Validate(), ErrInvalid))
}

func TestReimportKeepsUploadedFile(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(dbtest.Open(t), nil)

	c := decodeCatalog(t)
	c.Units[0].Lines[0].Operations[0].Videos[0].FileKey = ""
	out, err := s.Import(ctx, c)
	require.NoError(t, err)
	vid := out.Units[0].Lines[0].Operations[0].Videos[0].ID
	require.NoError(t, s.SetVideoFile(ctx, vid, "videos/"+vid+".mp4"))

	c = decodeCatalog(t)
	c.Units[0].Lines[0].Operations[0].Videos[0].FileKey = ""
	_, err = s.Import(ctx, c)
	require.NoError(t, err)
	v, err := s.GetVideo(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, "videos/"+vid+".mp4", v.FileKey)

	c = decodeCatalog(t)
	_, err = s.Import(ctx, c)
	require.NoError(t, err)
	v, err = s.GetVideo(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, "videos/torque.mp4", v.FileKey, "an explicit key still wins")
}
