// Package attempt runs the test attempt lifecycle: start or resume, answer
// autosave, submit and scoring, and the result view.
package attempt

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/db"
	"github.com/processdojo/kiosk/internal/grading"
	syncx "github.com/processdojo/kiosk/internal/sync"
	"github.com/processdojo/kiosk/internal/videogate"
)

type Service struct {
	db     *sql.DB
	events *syncx.EventRepo
	now    func() time.Time
}

func NewService(dbh *sql.DB, events *syncx.EventRepo) *Service {
	return &Service{db: dbh, events: events, now: time.Now}
}

// Start opens an attempt for userID on testID, or returns the attempt already
// in progress. The bool reports whether an existing attempt was resumed.
func (s *Service) Start(ctx context.Context, userID, testID string) (Attempt, bool, error) {
	var (
		out     Attempt
		resumed bool
	)
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		test, err := content.GetTest(ctx, tx, testID)
		if errors.Is(err, content.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "test %s", testID)
		}
		if err != nil {
			return err
		}
		if !test.IsActive {
			return &PreconditionError{Reason: "test is not active", VideoID: test.VideoID}
		}
		ok, err := videogate.IsEligible(ctx, tx, userID, test.VideoID)
		if err != nil {
			return err
		}
		if !ok {
			return &PreconditionError{Reason: "video not completed", VideoID: test.VideoID}
		}

		out, err = inProgressAttempt(ctx, tx, userID, testID)
		if err == nil {
			resumed = true
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		n, err := content.CountQuestions(ctx, tx, testID)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		inserted, err := insertAttempt(ctx, tx, id, userID, testID, n, s.now().Unix())
		if err != nil {
			return err
		}
		if out, err = inProgressAttempt(ctx, tx, userID, testID); err != nil {
			return err
		}
		if !inserted {
			resumed = true
			return nil
		}
		return s.events.Append(ctx, tx, syncx.TypeAttemptStarted, id, map[string]any{
			"user_id":         userID,
			"test_id":         testID,
			"total_questions": n,
			"started_at":      out.StartedAt.Unix(),
		})
	})
	if err != nil {
		return Attempt{}, false, err
	}
	if resumed {
		glog.V(2).Infof("attempt: user %s resumed %s", userID, out.ID)
	} else {
		glog.Infof("attempt: user %s started %s on test %s", userID, out.ID, testID)
	}
	return out, resumed, nil
}

// Autosave records the selection for one question. An empty selection stores
// the question as unanswered.
func (s *Service) Autosave(ctx context.Context, userID, attemptID, questionID, selected string) (SavedAnswer, error) {
	tag, ok := content.NormalizeOption(selected)
	if !ok {
		return SavedAnswer{}, errors.Wrapf(ErrValidation, "option %q not in A-D", selected)
	}
	var sa SavedAnswer
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := ownedAttempt(ctx, tx, userID, attemptID)
		if err != nil {
			return err
		}
		if a.Status != StatusInProgress {
			return &StateError{AttemptID: a.ID, Status: a.Status}
		}
		q, err := content.GetQuestion(ctx, tx, a.TestID, questionID)
		if errors.Is(err, content.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "question %s", questionID)
		}
		if err != nil {
			return err
		}
		now := s.now().UTC().Truncate(time.Second)
		sa = SavedAnswer{
			AttemptID:      a.ID,
			QuestionID:     q.ID,
			SelectedOption: tag,
			IsCorrect:      grading.IsCorrect(tag, q.CorrectAnswer),
			SavedAt:        now,
		}
		if err := upsertAnswer(ctx, tx, sa); err != nil {
			return err
		}
		return touchAttempt(ctx, tx, a.ID, now.Unix())
	})
	if err != nil {
		return SavedAnswer{}, err
	}
	return sa, nil
}

// Submit scores the attempt against every question of its test and closes
// it. Reads and the final write share one transaction.
func (s *Service) Submit(ctx context.Context, userID, attemptID string) (Outcome, error) {
	var out Outcome
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := ownedAttempt(ctx, tx, userID, attemptID)
		if err != nil {
			return err
		}
		if a.Status != StatusInProgress {
			return &StateError{AttemptID: a.ID, Status: a.Status}
		}
		test, err := content.GetTest(ctx, tx, a.TestID)
		if err != nil {
			return err
		}
		qs, err := content.Questions(ctx, tx, a.TestID)
		if err != nil {
			return err
		}
		saved, err := savedAnswers(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		items := make([]grading.Item, 0, len(qs))
		for _, q := range qs {
			items = append(items, grading.Item{Marks: q.Marks, Correct: saved[q.ID].IsCorrect})
		}
		res := grading.Score(items, test.PassingScore)

		now := s.now().UTC().Truncate(time.Second)
		a.Status = StatusCompleted
		a.Score = res.Score
		a.CorrectAnswers = res.CorrectCount
		a.TotalQuestions = res.TotalQuestions
		a.Passed = res.Passed
		a.CompletedAt = &now
		ok, err := completeAttempt(ctx, tx, a, now.Unix())
		if err != nil {
			return err
		}
		if !ok {
			return &StateError{AttemptID: a.ID, Status: StatusCompleted}
		}
		out = Outcome{Attempt: a, EarnedMarks: res.EarnedMarks, TotalMarks: res.TotalMarks}
		return s.events.Append(ctx, tx, syncx.TypeAttemptSubmitted, a.ID, map[string]any{
			"user_id":         a.UserID,
			"test_id":         a.TestID,
			"score":           a.Score,
			"passed":          a.Passed,
			"correct_answers": a.CorrectAnswers,
			"total_questions": a.TotalQuestions,
			"completed_at":    now.Unix(),
		})
	})
	if err != nil {
		return Outcome{}, err
	}
	glog.Infof("attempt: %s submitted by %s score=%.1f passed=%t", attemptID, userID, out.Attempt.Score, out.Attempt.Passed)
	return out, nil
}

// Result returns the per-question review of a completed attempt. Attempts
// still in progress have no result and report ErrNotFound.
func (s *Service) Result(ctx context.Context, userID, attemptID string) (Result, error) {
	a, err := ownedAttempt(ctx, s.db, userID, attemptID)
	if err != nil {
		return Result{}, err
	}
	if a.Status != StatusCompleted {
		return Result{}, errors.Wrapf(ErrNotFound, "result for attempt %s", attemptID)
	}
	test, err := content.GetTest(ctx, s.db, a.TestID)
	if err != nil {
		return Result{}, err
	}
	qs, err := content.Questions(ctx, s.db, a.TestID)
	if err != nil {
		return Result{}, err
	}
	saved, err := savedAnswers(ctx, s.db, a.ID)
	if err != nil {
		return Result{}, err
	}
	res := Result{Attempt: a, TestTitle: test.Title, PassingScore: test.PassingScore, Items: make([]ResultItem, 0, len(qs))}
	for _, q := range qs {
		sa := saved[q.ID]
		res.Items = append(res.Items, ResultItem{
			QuestionID:        q.ID,
			Text:              q.Text,
			Marks:             q.Marks,
			UserAnswer:        sa.SelectedOption,
			UserAnswerText:    q.OptionText(sa.SelectedOption),
			CorrectAnswer:     q.CorrectAnswer,
			CorrectAnswerText: q.OptionText(q.CorrectAnswer),
			IsCorrect:         sa.IsCorrect,
			Explanation:       q.Explanation,
		})
	}
	return res, nil
}

// Sheet returns the test page for an attempt in progress: questions without
// their answer keys plus the selections saved so far.
func (s *Service) Sheet(ctx context.Context, userID, attemptID string) (Sheet, error) {
	a, err := ownedAttempt(ctx, s.db, userID, attemptID)
	if err != nil {
		return Sheet{}, err
	}
	if a.Status != StatusInProgress {
		return Sheet{}, &StateError{AttemptID: a.ID, Status: a.Status}
	}
	test, err := content.GetTest(ctx, s.db, a.TestID)
	if err != nil {
		return Sheet{}, err
	}
	qs, err := content.Questions(ctx, s.db, a.TestID)
	if err != nil {
		return Sheet{}, err
	}
	saved, err := savedAnswers(ctx, s.db, a.ID)
	if err != nil {
		return Sheet{}, err
	}

	sh := Sheet{
		Attempt:          a,
		TestTitle:        test.Title,
		TimeLimitMinutes: test.TimeLimitMinutes,
		Questions:        make([]SheetQuestion, 0, len(qs)),
	}
	limit := time.Duration(test.TimeLimitMinutes) * time.Minute
	remaining := limit - s.now().Sub(a.StartedAt)
	if remaining <= 0 {
		sh.TimeExpired = true
		remaining = 0
	}
	sh.TimeRemainingSeconds = int64(remaining / time.Second)

	for _, q := range qs {
		pub := q.Public()
		sel := saved[q.ID].SelectedOption
		if sel != "" {
			sh.Answered++
		}
		sh.Questions = append(sh.Questions, SheetQuestion{
			ID:       pub.ID,
			Text:     pub.Text,
			Options:  pub.Options(),
			Marks:    pub.Marks,
			Ordering: pub.Ordering,
			Selected: sel,
		})
	}
	return sh, nil
}

// List returns userID's attempts, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, userID string, status Status) ([]Attempt, error) {
	return listAttempts(ctx, s.db, userID, status)
}
