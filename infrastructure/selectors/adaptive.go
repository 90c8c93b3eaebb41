package selectors

import (
	"math/rand/v2"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

var _ ports.PairSelector = (*SeededAdaptiveSelector)(nil)

// SeededAdaptiveSelector implements the two-phase ACJ pairing policy.
//
// Seeding phase: while fewer comparisons have been recorded than there are
// items, or while some item has not yet appeared in any comparison, it
// returns two distinct items drawn at random without replacement. Items that
// have never been compared are drawn first, so every item takes part in at
// least one comparison before adaptive pairing starts.
//
// Adaptive phase: items are sorted by ascending quality and the adjacent
// pair with the smallest quality gap is returned. Equal gaps are broken by
// the lexicographic order of the pair's identifiers, so selection is
// deterministic once seeding is over.
//
// Comparisons between items of near-identical estimated quality carry the
// most information about their relative order under the Bradley-Terry model.
type SeededAdaptiveSelector struct {
	rng *rand.Rand
}

// NewSeededAdaptiveSelector creates a selector whose seeding draws are
// reproducible for a given seed.
func NewSeededAdaptiveSelector(seed uint64) *SeededAdaptiveSelector {
	return &SeededAdaptiveSelector{rng: newRand(seed)}
}

// Name returns the policy identifier.
func (s *SeededAdaptiveSelector) Name() string { return PolicyAdaptive }

// Select returns the next pair to compare.
func (s *SeededAdaptiveSelector) Select(state ports.SelectionState) (domain.Pair, error) {
	reg := state.Registry()
	if reg.Len() < 2 {
		return domain.Pair{}, domain.ErrInsufficientItems
	}
	if s.Seeding(state) {
		return s.seedPair(state), nil
	}
	return closestAdjacent(reg.Ascending()), nil
}

// Seeding reports whether the selector is still in its random seeding phase.
func (s *SeededAdaptiveSelector) Seeding(state ports.SelectionState) bool {
	reg, log := state.Registry(), state.Log()
	if log.Count() < reg.Len() {
		return true
	}
	for _, id := range reg.Items() {
		if log.Appearances(id) == 0 {
			return true
		}
	}
	return false
}

func (s *SeededAdaptiveSelector) seedPair(state ports.SelectionState) domain.Pair {
	items := state.Registry().Items()
	log := state.Log()

	var fresh []domain.ItemID
	for _, id := range items {
		if log.Appearances(id) == 0 {
			fresh = append(fresh, id)
		}
	}

	switch len(fresh) {
	case 0:
		return s.drawTwo(items)
	case 1:
		partner := s.drawOne(items, fresh[0])
		return s.orient(fresh[0], partner)
	default:
		return s.drawTwo(fresh)
	}
}

// drawTwo picks two distinct entries of pool uniformly without replacement.
func (s *SeededAdaptiveSelector) drawTwo(pool []domain.ItemID) domain.Pair {
	i := s.rng.IntN(len(pool))
	j := s.rng.IntN(len(pool) - 1)
	if j >= i {
		j++
	}
	return domain.NewPair(pool[i], pool[j])
}

// drawOne picks an entry of pool other than exclude.
func (s *SeededAdaptiveSelector) drawOne(pool []domain.ItemID, exclude domain.ItemID) domain.ItemID {
	others := make([]domain.ItemID, 0, len(pool)-1)
	for _, id := range pool {
		if id != exclude {
			others = append(others, id)
		}
	}
	return others[s.rng.IntN(len(others))]
}

// orient places the two items on random sides.
func (s *SeededAdaptiveSelector) orient(a, b domain.ItemID) domain.Pair {
	if s.rng.IntN(2) == 0 {
		return domain.NewPair(a, b)
	}
	return domain.NewPair(b, a)
}

// closestAdjacent scans an ascending quality ordering for the adjacent pair
// with the smallest gap. The globally closest pair is always adjacent in
// sorted order, so a single pass suffices.
func closestAdjacent(asc []domain.ItemScore) domain.Pair {
	var best *candidate
	for i := 0; i+1 < len(asc); i++ {
		c := newCandidate(asc[i], asc[i+1])
		if c.better(best) {
			best = &c
		}
	}
	return best.pair
}
