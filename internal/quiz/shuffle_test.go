package quiz_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/coursehub/internal/quiz"
)

func TestShuffle(t *testing.T) {
	tests := map[string]struct {
		arrange func() []string
		assert  func(t *testing.T, in, out []string)
	}{
		"should return an empty slice unchanged": {
			arrange: func() []string {
				return []string{}
			},
			assert: func(t *testing.T, in, out []string) {
				assert.Empty(t, out)
			},
		},

		"should return a single option unchanged": {
			arrange: func() []string {
				return []string{"Paris"}
			},
			assert: func(t *testing.T, in, out []string) {
				assert.Equal(t, in, out)
			},
		},

		"should keep the same options after shuffling": {
			arrange: func() []string {
				return []string{"Paris", "London", "Berlin", "Madrid"}
			},
			assert: func(t *testing.T, in, out []string) {
				assert.ElementsMatch(t, in, out)
				assert.Len(t, out, len(in))
			},
		},

		"should preserve duplicated options": {
			arrange: func() []string {
				return []string{"true", "false", "true"}
			},
			assert: func(t *testing.T, in, out []string) {
				assert.ElementsMatch(t, in, out)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			rng := rand.New(rand.NewSource(1))

			out := quiz.Shuffle(rng, in)

			tt.assert(t, in, out)
		})
	}
}

func TestShuffle_DoesNotMutateInput(t *testing.T) {
	in := []string{"A", "B", "C", "D", "E"}
	orig := make([]string, len(in))
	copy(orig, in)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		quiz.Shuffle(rng, in)
	}

	require.Equal(t, orig, in, "stored option order must never change")
}

func TestShuffle_ReachesEveryPosition(t *testing.T) {
	// With enough draws every option should show up at every index,
	// otherwise the permutation is biased.
	in := []string{"A", "B", "C"}
	rng := rand.New(rand.NewSource(7))

	seen := make(map[string]map[int]bool)
	for _, opt := range in {
		seen[opt] = make(map[int]bool)
	}

	for i := 0; i < 1000; i++ {
		out := quiz.Shuffle(rng, in)
		for idx, opt := range out {
			seen[opt][idx] = true
		}
	}

	for opt, positions := range seen {
		require.Lenf(t, positions, len(in), "option %q never reached some positions", opt)
	}
}
