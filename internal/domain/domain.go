package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Module is a unit of course content. Modules are ordered within a course by
// Position; a module optionally carries a single quiz gating the next module.
type Module struct {
	ModuleID string
	CourseID string
	Title    string
	Position int
	QuizID   string // empty when the module has no quiz
}

// HasQuiz reports whether the module carries a quiz.
func (m Module) HasQuiz() bool { return m.QuizID != "" }

// Quiz belongs to exactly one module. The passing threshold is platform-wide
// configuration, not a quiz field.
type Quiz struct {
	QuizID    string
	ModuleID  string
	Title     string
	Questions []Question
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleSelect QuestionType = "multiple_select"
	ShortAnswer    QuestionType = "short_answer"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, MultipleSelect, ShortAnswer:
		return true
	}
	return false
}

// Question stores its options by convention: for MultipleChoice and
// ShortAnswer the first option is the correct answer; for MultipleSelect the
// stored list is exactly the correct set.
type Question struct {
	QuestionID string
	QuizID     string
	Text       string
	Type       QuestionType
	Options    []string
}

// Attempt is one learner's try at a quiz, spanning start, submit and grade.
type Attempt struct {
	AttemptID   string
	QuizID      string
	UserID      string
	Score       decimal.Decimal
	StartedAt   time.Time
	CompletedAt *time.Time
	Answers     []Answer
	IsGraded    bool
	GradedAt    *time.Time
	Feedback    []Feedback
}

// Answer is a learner's response to a single question. FreeText is used for
// short-answer questions, SelectedOptions for the choice types.
type Answer struct {
	QuestionID      string   `json:"question_id"`
	FreeText        string   `json:"free_text,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

// Feedback carries the per-question outcome of grading.
type Feedback struct {
	QuestionID     string          `json:"question_id"`
	EarnedPoints   decimal.Decimal `json:"earned_points"`
	PossiblePoints decimal.Decimal `json:"possible_points"`
	Message        string          `json:"message"`
}

// GradeResult is the outcome of grading an attempt.
type GradeResult struct {
	AttemptID     string
	QuizID        string
	UserID        string
	Score         decimal.Decimal
	Passed        bool
	Feedback      []Feedback
	UnlocksModule *NextModule
}

// NextModule identifies the module unlocked by passing a quiz.
type NextModule struct {
	ModuleID string
	Title    string
}

// Progress represents per-course standings, one entry per user holding the
// user's best graded score in the course. Entries are sorted by score in
// descending order.
type Progress struct {
	CourseID string
	Entries  []ProgressEntry
}

type ProgressEntry struct {
	UserID string
	Score  float64
}
