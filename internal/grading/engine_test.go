package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCorrect(t *testing.T) {
	assert.True(t, IsCorrect("A", "A"))
	assert.True(t, IsCorrect(" b", "B"))
	assert.False(t, IsCorrect("C", "B"))
	assert.False(t, IsCorrect("", ""))
	assert.False(t, IsCorrect("", "A"))
}

func TestScore(t *testing.T) {
	cases := []struct {
		name    string
		items   []Item
		passing int
		want    Result
	}{
		{
			name:    "one right one wrong",
			items:   []Item{{Marks: 2, Correct: true}, {Marks: 2}},
			passing: 70,
			want:    Result{EarnedMarks: 2, TotalMarks: 4, CorrectCount: 1, TotalQuestions: 2, Score: 50},
		},
		{
			name:    "all right",
			items:   []Item{{Marks: 2, Correct: true}, {Marks: 2, Correct: true}},
			passing: 70,
			want:    Result{EarnedMarks: 4, TotalMarks: 4, CorrectCount: 2, TotalQuestions: 2, Score: 100, Passed: true},
		},
		{
			name:    "unanswered counts toward total",
			items:   []Item{{Marks: 2, Correct: true}, {Marks: 2, Correct: false}},
			passing: 50,
			want:    Result{EarnedMarks: 2, TotalMarks: 4, CorrectCount: 1, TotalQuestions: 2, Score: 50, Passed: true},
		},
		{
			name:    "no questions",
			items:   nil,
			passing: 0,
			want:    Result{},
		},
		{
			name:    "weighted marks",
			items:   []Item{{Marks: 3, Correct: true}, {Marks: 1}},
			passing: 75,
			want:    Result{EarnedMarks: 3, TotalMarks: 4, CorrectCount: 1, TotalQuestions: 2, Score: 75, Passed: true},
		},
		{
			name:    "just below boundary",
			items:   []Item{{Marks: 1, Correct: true}, {Marks: 1, Correct: true}, {Marks: 1}},
			passing: 67,
			want:    Result{EarnedMarks: 2, TotalMarks: 3, CorrectCount: 2, TotalQuestions: 3, Score: 200.0 / 3, Passed: false},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.items, tc.passing)
			assert.InDelta(t, tc.want.Score, got.Score, 1e-9)
			got.Score, tc.want.Score = 0, 0
			assert.Equal(t, tc.want, got)
		})
	}
}
