package selectors

import (
	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

var _ ports.PairSelector = (*ExclusionSelector)(nil)

// ExclusionSelector restricts candidates to unordered pairs not yet present
// in the comparison log and returns the one whose quality values are
// closest. Ties are broken lexicographically on the pair's identifiers.
// Once every distinct pair has been used it returns domain.ErrPairsExhausted,
// which happens after exactly n(n-1)/2 resolved comparisons for n items.
//
// The selector holds no state of its own; the log is the source of truth
// for which pairs are spent.
type ExclusionSelector struct{}

// NewExclusionSelector creates an exclusion selector.
func NewExclusionSelector() *ExclusionSelector { return &ExclusionSelector{} }

// Name returns the policy identifier.
func (s *ExclusionSelector) Name() string { return PolicyExclusion }

// Select returns the closest unused pair.
func (s *ExclusionSelector) Select(state ports.SelectionState) (domain.Pair, error) {
	reg, log := state.Registry(), state.Log()
	n := reg.Len()
	if n < 2 {
		return domain.Pair{}, domain.ErrInsufficientItems
	}
	if log.DistinctPairs() >= n*(n-1)/2 {
		return domain.Pair{}, domain.ErrPairsExhausted
	}

	// In ascending order the gap to asc[i] grows with j, so the inner scan
	// can stop as soon as it exceeds the best gap found.
	asc := reg.Ascending()
	var best *candidate
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := newCandidate(asc[i], asc[j])
			if best != nil && c.diff > best.diff {
				break
			}
			if log.HasPair(asc[i].Item, asc[j].Item) {
				continue
			}
			if c.better(best) {
				best = &c
			}
		}
	}
	if best == nil {
		return domain.Pair{}, domain.ErrPairsExhausted
	}
	return best.pair, nil
}
