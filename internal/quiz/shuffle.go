package quiz

import "math/rand"

// Shuffle returns a uniformly random permutation of options, produced by a
// Fisher-Yates walk over a copy of the input. The stored order is never
// mutated. Inputs of length 0 or 1 are returned as a plain copy without
// consuming the rng.
//
// rng is owned by the caller; services construct a fresh one per request so
// concurrent shuffles cannot interfere with each other.
func Shuffle(rng *rand.Rand, options []string) []string {
	out := make([]string, len(options))
	copy(out, options)

	if len(out) <= 1 {
		return out
	}

	for i := len(out) - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}
