package content

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid catalog")
)

// Option tags of a four-choice question.
const (
	OptionA = "A"
	OptionB = "B"
	OptionC = "C"
	OptionD = "D"
)

var optionTags = []string{OptionA, OptionB, OptionC, OptionD}

// NotAnswered is the display text for an empty selection.
const NotAnswered = "Not answered"

// NormalizeOption upper-cases and trims a submitted option tag. The second
// return is false for anything other than A-D or the empty "unanswered" value.
func NormalizeOption(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", true
	}
	for _, t := range optionTags {
		if s == t {
			return s, true
		}
	}
	return s, false
}

type Unit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	Lines       []Line `json:"lines,omitempty"`
}

type Line struct {
	ID          string      `json:"id"`
	UnitID      string      `json:"unit_id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	IsActive    bool        `json:"is_active"`
	Operations  []Operation `json:"operations,omitempty"`
}

type Operation struct {
	ID           string  `json:"id"`
	LineID       string  `json:"line_id,omitempty"`
	Name         string  `json:"name"`
	Code         string  `json:"code,omitempty"`
	Description  string  `json:"description,omitempty"`
	IsCTQStation bool    `json:"is_ctq_station"` // critical-to-quality
	IsActive     bool    `json:"is_active"`
	Ordering     int     `json:"ordering"`
	Videos       []Video `json:"videos,omitempty"`
}

type Video struct {
	ID              string `json:"id"`
	OperationID     string `json:"operation_id,omitempty"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	FileKey         string `json:"file_key,omitempty"` // blob store key
	DurationSeconds int    `json:"duration_seconds"`
	HasVoice        bool   `json:"has_voice"`
	HasCallouts     bool   `json:"has_callouts"`
	IsActive        bool   `json:"is_active"`
	Ordering        int    `json:"ordering"`
	Test            *Test  `json:"test,omitempty"`
}

type Test struct {
	ID               string     `json:"id"`
	VideoID          string     `json:"video_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	PassingScore     int        `json:"passing_score"`      // percent, 0-100
	TimeLimitMinutes int        `json:"time_limit_minutes"` // display only
	IsActive         bool       `json:"is_active"`
	Questions        []Question `json:"questions,omitempty"`
}

type Question struct {
	ID            string `json:"id"`
	TestID        string `json:"test_id,omitempty"`
	Text          string `json:"text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	Marks         int    `json:"marks"`
	Ordering      int    `json:"ordering"`
	Explanation   string `json:"explanation,omitempty"`
}

func (q Question) Options() map[string]string {
	return map[string]string{
		OptionA: q.OptionA,
		OptionB: q.OptionB,
		OptionC: q.OptionC,
		OptionD: q.OptionD,
	}
}

// OptionText returns the text behind tag, or NotAnswered for an empty tag.
func (q Question) OptionText(tag string) string {
	if tag == "" {
		return NotAnswered
	}
	if s, ok := q.Options()[tag]; ok {
		return s
	}
	return NotAnswered
}

// Public strips the answer key and explanation before questions are sent to a
// test taker.
func (q Question) Public() Question {
	q.CorrectAnswer = ""
	q.Explanation = ""
	return q
}

// Catalog is the import document: the full unit → line → operation → video →
// test → question tree.
type Catalog struct {
	Units []Unit `json:"units"`
}

// NumberQuestions gives every question without an ordering its 1-based
// position in the test, so questions left unnumbered keep distinct keys.
func (c *Catalog) NumberQuestions() {
	for ui := range c.Units {
		for li := range c.Units[ui].Lines {
			for oi := range c.Units[ui].Lines[li].Operations {
				for _, v := range c.Units[ui].Lines[li].Operations[oi].Videos {
					if v.Test == nil {
						continue
					}
					for qi := range v.Test.Questions {
						if v.Test.Questions[qi].Ordering == 0 {
							v.Test.Questions[qi].Ordering = qi + 1
						}
					}
				}
			}
		}
	}
}

// Validate checks required fields and that no two siblings share the natural
// key Import matches them by.
func (c Catalog) Validate() error {
	units := map[string]bool{}
	for _, u := range c.Units {
		if strings.TrimSpace(u.Name) == "" {
			return errors.Wrap(ErrInvalid, "unit name required")
		}
		if units[u.Name] {
			return errors.Wrapf(ErrInvalid, "duplicate unit %q", u.Name)
		}
		units[u.Name] = true
		lines := map[string]bool{}
		for _, l := range u.Lines {
			if strings.TrimSpace(l.Name) == "" {
				return errors.Wrapf(ErrInvalid, "unit %q: line name required", u.Name)
			}
			if lines[l.Name] {
				return errors.Wrapf(ErrInvalid, "unit %q: duplicate line %q", u.Name, l.Name)
			}
			lines[l.Name] = true
			ops := map[string]bool{}
			for _, op := range l.Operations {
				if strings.TrimSpace(op.Name) == "" {
					return errors.Wrapf(ErrInvalid, "line %q: operation name required", l.Name)
				}
				if ops[op.Name] {
					return errors.Wrapf(ErrInvalid, "line %q: duplicate operation %q", l.Name, op.Name)
				}
				ops[op.Name] = true
				videos := map[string]bool{}
				for _, v := range op.Videos {
					if strings.TrimSpace(v.Title) == "" {
						return errors.Wrapf(ErrInvalid, "operation %q: video title required", op.Name)
					}
					if videos[v.Title] {
						return errors.Wrapf(ErrInvalid, "operation %q: duplicate video %q", op.Name, v.Title)
					}
					videos[v.Title] = true
					if v.Test != nil {
						if err := v.Test.validate(); err != nil {
							return errors.Wrapf(err, "video %q", v.Title)
						}
					}
				}
			}
		}
	}
	return nil
}

func (t Test) validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.Wrap(ErrInvalid, "test title required")
	}
	if t.PassingScore < 0 || t.PassingScore > 100 {
		return errors.Wrapf(ErrInvalid, "passing score %d outside 0-100", t.PassingScore)
	}
	if t.TimeLimitMinutes < 1 {
		return errors.Wrapf(ErrInvalid, "time limit %d below 1 minute", t.TimeLimitMinutes)
	}
	seen := map[int]bool{}
	for i, q := range t.Questions {
		if seen[q.Ordering] {
			return errors.Wrapf(ErrInvalid, "question %d: ordering %d used twice", i+1, q.Ordering)
		}
		seen[q.Ordering] = true
		if q.Marks < 1 {
			return errors.Wrapf(ErrInvalid, "question %d: marks must be >= 1", i+1)
		}
		tag, ok := NormalizeOption(q.CorrectAnswer)
		if !ok || tag == "" {
			return errors.Wrapf(ErrInvalid, "question %d: correct answer %q not in A-D", i+1, q.CorrectAnswer)
		}
	}
	return nil
}

// UnmarshalJSON defaults catalog rows to active unless the document says
// otherwise. The other catalog types follow the same rule.
func (u *Unit) UnmarshalJSON(b []byte) error {
	type alias Unit
	a := alias{IsActive: true}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*u = Unit(a)
	return nil
}

func (l *Line) UnmarshalJSON(b []byte) error {
	type alias Line
	a := alias{IsActive: true}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = Line(a)
	return nil
}

func (o *Operation) UnmarshalJSON(b []byte) error {
	type alias Operation
	a := alias{IsActive: true}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*o = Operation(a)
	return nil
}

func (v *Video) UnmarshalJSON(b []byte) error {
	type alias Video
	a := alias{IsActive: true, HasVoice: true}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*v = Video(a)
	return nil
}

func (t *Test) UnmarshalJSON(b []byte) error {
	type alias Test
	a := alias{IsActive: true, PassingScore: 70, TimeLimitMinutes: 30}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = Test(a)
	return nil
}

func (q *Question) UnmarshalJSON(b []byte) error {
	type alias Question
	a := alias{Marks: 1}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*q = Question(a)
	return nil
}

// TotalMarks sums marks over qs.
func TotalMarks(qs []Question) int {
	n := 0
	for _, q := range qs {
		n += q.Marks
	}
	return n
}
