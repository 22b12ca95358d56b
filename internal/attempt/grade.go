package attempt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openlearn/coursehub/internal/domain"
)

// Per-question feedback messages. The wording is part of the API surface;
// clients display these verbatim.
const (
	msgCorrect       = "Correct!"
	msgIncorrect     = "Incorrect."
	msgNotAnswered   = "Not answered."
	msgFullyCorrect  = "Fully correct!"
	msgNotAnsweredMS = "Incorrect or not answered properly."
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// selectPenalty is deducted per selected option outside the correct set.
	selectPenalty = decimal.RequireFromString("0.1")
)

// Score grades submitted answers against a quiz's questions and returns the
// aggregate score (0-100, two decimals) with per-question feedback.
//
// Questions are graded in ascending question-ID order, never submission
// order, so the outcome is independent of how the answers slice is arranged.
// A missing or malformed answer degrades to "not answered" for that question;
// it never fails the whole grade. An empty submission short-circuits to a
// zero score with no feedback.
func Score(questions []domain.Question, answers []domain.Answer) (decimal.Decimal, []domain.Feedback) {
	if len(answers) == 0 {
		return decimal.Zero, []domain.Feedback{}
	}

	ordered := make([]domain.Question, len(questions))
	copy(ordered, questions)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].QuestionID < ordered[j].QuestionID
	})

	byQuestion := make(map[string]*domain.Answer, len(answers))
	for i := range answers {
		a := &answers[i]
		if _, ok := byQuestion[a.QuestionID]; !ok {
			byQuestion[a.QuestionID] = a
		}
	}

	var (
		earnedSum   = decimal.Zero
		possibleSum = decimal.Zero
		feedback    = make([]domain.Feedback, 0, len(ordered))
	)

	for _, q := range ordered {
		earned, msg := scoreQuestion(q, byQuestion[q.QuestionID])

		earnedSum = earnedSum.Add(earned)
		possibleSum = possibleSum.Add(one)

		feedback = append(feedback, domain.Feedback{
			QuestionID:     q.QuestionID,
			EarnedPoints:   earned,
			PossiblePoints: one,
			Message:        msg,
		})
	}

	if possibleSum.IsZero() {
		return decimal.Zero, feedback
	}

	total := earnedSum.Div(possibleSum).Mul(hundred).Round(2)
	return total, feedback
}

// scoreQuestion grades one question. Every question is worth exactly one
// point; multiple-select questions can earn a fraction of it.
func scoreQuestion(q domain.Question, a *domain.Answer) (decimal.Decimal, string) {
	switch q.Type {
	case domain.MultipleChoice:
		if a == nil {
			return decimal.Zero, msgNotAnswered
		}
		// Correct only when exactly one option was selected.
		if len(a.SelectedOptions) == 1 && matchesKey(q, a.SelectedOptions[0]) {
			return one, msgCorrect
		}
		return decimal.Zero, msgIncorrect

	case domain.ShortAnswer:
		if a == nil {
			return decimal.Zero, msgNotAnswered
		}
		if strings.TrimSpace(a.FreeText) != "" && matchesKey(q, a.FreeText) {
			return one, msgCorrect
		}
		return decimal.Zero, msgIncorrect

	case domain.MultipleSelect:
		return scoreMultipleSelect(q, a)
	}

	// Unknown question type: lenient, same as an unanswerable question.
	return decimal.Zero, msgNotAnsweredMS
}

// matchesKey compares a submitted value against the question's answer key,
// the first stored option, ignoring case and surrounding whitespace.
func matchesKey(q domain.Question, submitted string) bool {
	if len(q.Options) == 0 {
		return false
	}
	return normalize(submitted) == normalize(q.Options[0])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// scoreMultipleSelect awards partial credit: the fraction of the correct set
// that was selected, minus a 0.1 penalty per incorrect selection, floored at
// zero and rounded to two decimals. Duplicate selections count once.
func scoreMultipleSelect(q domain.Question, a *domain.Answer) (decimal.Decimal, string) {
	if a == nil || len(a.SelectedOptions) == 0 || len(q.Options) == 0 {
		return decimal.Zero, msgNotAnsweredMS
	}

	correct := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		correct[normalize(opt)] = true
	}

	var hits, misses int
	seen := make(map[string]bool, len(a.SelectedOptions))
	for _, sel := range a.SelectedOptions {
		key := normalize(sel)
		if seen[key] {
			continue
		}
		seen[key] = true

		if correct[key] {
			hits++
		} else {
			misses++
		}
	}

	ratio := decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(len(q.Options))))
	penalty := decimal.NewFromInt(int64(misses)).Mul(selectPenalty)

	earned := ratio.Sub(penalty).Round(2)
	if earned.IsNegative() {
		earned = decimal.Zero
	}

	switch {
	case earned.GreaterThanOrEqual(one):
		return earned, msgFullyCorrect
	case earned.IsPositive():
		percent := earned.Mul(hundred).StringFixed(0)
		return earned, fmt.Sprintf("Partially correct. Earned %s%% of points.", percent)
	default:
		return earned, msgIncorrect
	}
}
