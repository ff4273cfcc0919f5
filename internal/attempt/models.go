package attempt

import "time"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Attempt struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TestID         string     `json:"test_id"`
	TestTitle      string     `json:"test_title,omitempty"`
	Status         Status     `json:"status"`
	Score          float64    `json:"score"`
	CorrectAnswers int        `json:"correct_answers"`
	TotalQuestions int        `json:"total_questions"`
	Passed         bool       `json:"passed"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	LastSavedAt    time.Time  `json:"last_saved_at"`
}

type SavedAnswer struct {
	AttemptID      string    `json:"attempt_id"`
	QuestionID     string    `json:"question_id"`
	SelectedOption string    `json:"selected_option"` // "" means unanswered
	IsCorrect      bool      `json:"is_correct"`
	SavedAt        time.Time `json:"saved_at"`
}

// Outcome is what Submit reports back.
type Outcome struct {
	Attempt     Attempt `json:"attempt"`
	EarnedMarks int     `json:"earned_marks"`
	TotalMarks  int     `json:"total_marks"`
}

// SheetQuestion is a question as shown while the attempt is open.
type SheetQuestion struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Options  map[string]string `json:"options"`
	Marks    int               `json:"marks"`
	Ordering int               `json:"ordering"`
	Selected string            `json:"selected_option"`
}

// Sheet is the in-progress test page. The time fields are informational:
// nothing server-side stops an attempt after its time limit.
type Sheet struct {
	Attempt              Attempt         `json:"attempt"`
	TestTitle            string          `json:"test_title"`
	TimeLimitMinutes     int             `json:"time_limit_minutes"`
	TimeRemainingSeconds int64           `json:"time_remaining_seconds"`
	TimeExpired          bool            `json:"time_expired"`
	Answered             int             `json:"answered"`
	Questions            []SheetQuestion `json:"questions"`
}

type ResultItem struct {
	QuestionID        string `json:"question_id"`
	Text              string `json:"text"`
	Marks             int    `json:"marks"`
	UserAnswer        string `json:"user_answer"`
	UserAnswerText    string `json:"user_answer_text"`
	CorrectAnswer     string `json:"correct_answer"`
	CorrectAnswerText string `json:"correct_answer_text"`
	IsCorrect         bool   `json:"is_correct"`
	Explanation       string `json:"explanation,omitempty"`
}

type Result struct {
	Attempt      Attempt      `json:"attempt"`
	TestTitle    string       `json:"test_title"`
	PassingScore int          `json:"passing_score"`
	Items        []ResultItem `json:"items"`
}
