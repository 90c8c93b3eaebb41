// Package selectors provides pair-selection policies that implement the
// ports.PairSelector interface for the ACJ engine.
package selectors

import (
	"math/rand/v2"

	"github.com/ahrav/go-acj/internal/domain"
)

// Policy names accepted by the selector registry and session configuration.
const (
	// PolicyAdaptive seeds with random pairs and then compares the two items
	// whose quality estimates are closest.
	PolicyAdaptive = "adaptive"

	// PolicyExclusion compares the closest pair not yet used and stops once
	// every distinct pair has been compared.
	PolicyExclusion = "exclusion"
)

// newRand returns a deterministic PCG source for seed. The second PCG word
// is derived from the seed so that seed 0 still yields a usable stream.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// candidate is a scored pair considered during closest-pair search.
type candidate struct {
	pair domain.Pair
	key  domain.PairKey
	diff float64
}

// better reports whether c should replace best: a smaller quality gap wins,
// and equal gaps fall back to the lexicographic order of the pair key.
func (c candidate) better(best *candidate) bool {
	if best == nil {
		return true
	}
	if c.diff != best.diff {
		return c.diff < best.diff
	}
	if c.key.Lo != best.key.Lo {
		return c.key.Lo < best.key.Lo
	}
	return c.key.Hi < best.key.Hi
}

func newCandidate(a, b domain.ItemScore) candidate {
	diff := b.Quality - a.Quality
	if diff < 0 {
		diff = -diff
	}
	return candidate{
		pair: domain.NewPair(a.Item, b.Item),
		key:  domain.MakePairKey(a.Item, b.Item),
		diff: diff,
	}
}
