package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/coursehub/internal/domain"
	"github.com/openlearn/coursehub/internal/gate"
)

// course builds an ordered module list. A non-empty quiz name attaches a quiz
// to the module.
func course(quizzes ...string) []domain.Module {
	mods := make([]domain.Module, 0, len(quizzes))
	for i, q := range quizzes {
		mods = append(mods, domain.Module{
			ModuleID: moduleID(i),
			CourseID: "course-1",
			Position: i + 1,
			QuizID:   q,
		})
	}
	return mods
}

func moduleID(i int) string {
	return []string{"m1", "m2", "m3", "m4", "m5"}[i]
}

func passedQuizzes(quizzes ...string) gate.PassFunc {
	set := make(map[string]bool, len(quizzes))
	for _, q := range quizzes {
		set[q] = true
	}
	return func(m domain.Module) bool {
		return !m.HasQuiz() || set[m.QuizID]
	}
}

func TestAccessibleIDs(t *testing.T) {
	type inputs struct {
		modules []domain.Module
		passed  gate.PassFunc
	}

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, ids []string)
	}{
		"should stop after the first unpassed quiz": {
			arrange: func() inputs {
				// M1 has no quiz, M2 and M3 do; nothing passed yet.
				return inputs{
					modules: course("", "q2", "q3"),
					passed:  passedQuizzes(),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Equal(t, []string{"m1", "m2"}, ids)
			},
		},

		"should open the next module once its gate quiz is passed": {
			arrange: func() inputs {
				return inputs{
					modules: course("", "q2", "q3"),
					passed:  passedQuizzes("q2"),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
			},
		},

		"should open everything when all modules are quiz-less": {
			arrange: func() inputs {
				return inputs{
					modules: course("", "", "", ""),
					passed:  passedQuizzes(),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
			},
		},

		"should always open the first module even when it has a quiz": {
			arrange: func() inputs {
				return inputs{
					modules: course("q1", "q2"),
					passed:  passedQuizzes(),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Equal(t, []string{"m1"}, ids)
			},
		},

		"should let a quiz-less module reopen the sequence after a failed gate": {
			arrange: func() inputs {
				// m2's quiz unpassed blocks m3, but m3 itself has no quiz, so
				// m4's gate is satisfied.
				return inputs{
					modules: course("", "q2", "", "q4"),
					passed:  passedQuizzes(),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Equal(t, []string{"m1", "m2", "m4"}, ids)
			},
		},

		"should return nothing for an empty course": {
			arrange: func() inputs {
				return inputs{
					modules: nil,
					passed:  passedQuizzes(),
				}
			},
			assert: func(t *testing.T, ids []string) {
				assert.Empty(t, ids)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			ids := gate.AccessibleIDs(in.modules, in.passed)

			tt.assert(t, ids)
		})
	}
}

func TestCanAccess_AgreesWithAccessibleIDs(t *testing.T) {
	// The walk and the point check must yield exactly the same answer set for
	// every course layout and pass state.
	layouts := [][]string{
		{},
		{""},
		{"q1"},
		{"", "q2", "q3"},
		{"q1", "", "q3", "q4"},
		{"", "", "q3", "", "q5"},
		{"q1", "q2", "q3", "q4", "q5"},
	}

	passStates := [][]string{
		{},
		{"q1"},
		{"q2"},
		{"q1", "q2"},
		{"q3", "q5"},
		{"q1", "q2", "q3", "q4", "q5"},
	}

	for _, layout := range layouts {
		for _, state := range passStates {
			modules := course(layout...)
			passed := passedQuizzes(state...)

			walked := gate.AccessibleIDs(modules, passed)

			var pointChecked []string
			for _, m := range modules {
				if gate.CanAccess(modules, m.ModuleID, passed) {
					pointChecked = append(pointChecked, m.ModuleID)
				}
			}

			require.Equalf(t, append([]string{}, walked...), append([]string{}, pointChecked...),
				"layout=%v passed=%v", layout, state)
		}
	}
}

func TestCanAccess_UnknownModule(t *testing.T) {
	modules := course("", "q2")

	ok := gate.CanAccess(modules, "missing", passedQuizzes("q2"))

	require.False(t, ok)
}
