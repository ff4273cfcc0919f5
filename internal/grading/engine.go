package grading

import "strings"

// IsCorrect reports whether a selected option tag matches the answer key.
// An empty selection is never correct.
func IsCorrect(selected, correct string) bool {
	selected = strings.ToUpper(strings.TrimSpace(selected))
	if selected == "" {
		return false
	}
	return selected == strings.ToUpper(strings.TrimSpace(correct))
}

// Item is one question of a test as seen at submit time.
type Item struct {
	Marks   int
	Correct bool // saved answer exists and is correct
}

// Result is the outcome of scoring a whole attempt.
type Result struct {
	EarnedMarks    int
	TotalMarks     int
	CorrectCount   int
	TotalQuestions int
	Score          float64 // percent, 0-100
	Passed         bool
}

// Score grades items against passingScore. Every question counts toward the
// total; unanswered ones simply earn nothing. A test without marks scores 0
// and fails regardless of passingScore.
func Score(items []Item, passingScore int) Result {
	res := Result{TotalQuestions: len(items)}
	for _, it := range items {
		res.TotalMarks += it.Marks
		if it.Correct {
			res.EarnedMarks += it.Marks
			res.CorrectCount++
		}
	}
	if res.TotalMarks == 0 {
		return res
	}
	res.Score = float64(res.EarnedMarks) / float64(res.TotalMarks) * 100
	res.Passed = res.Score >= float64(passingScore)
	return res
}
