package domain

import "slices"

// ComparisonLog is the append-only record of resolved trials. Entries are
// never overwritten or removed, so the log is an audit trail independent of
// the mutable quality scores.
type ComparisonLog struct {
	entries     []Comparison
	pairs       map[PairKey]int
	appearances map[ItemID]int
}

// NewComparisonLog creates an empty log.
func NewComparisonLog() *ComparisonLog {
	return &ComparisonLog{
		pairs:       make(map[PairKey]int),
		appearances: make(map[ItemID]int),
	}
}

// Record appends a comparison between a and b won by winner and returns the
// stored entry. The winner must be a or b, and a and b must differ.
// Membership in an item set is not checked here; that is the registry's job.
func (l *ComparisonLog) Record(a, b, winner ItemID) (Comparison, error) {
	if a == b {
		return Comparison{}, NewItemError(a, "Record", ErrInvalidPair)
	}
	if winner != a && winner != b {
		return Comparison{}, NewItemError(winner, "Record", ErrInvalidWinner)
	}

	c := Comparison{Seq: len(l.entries), A: a, B: b, Winner: winner}
	l.entries = append(l.entries, c)
	l.pairs[MakePairKey(a, b)]++
	l.appearances[a]++
	l.appearances[b]++
	return c, nil
}

// HasPair reports whether the unordered pair {a, b} has been recorded.
func (l *ComparisonLog) HasPair(a, b ItemID) bool {
	return l.pairs[MakePairKey(a, b)] > 0
}

// PairCount returns how many times the unordered pair {a, b} was recorded.
func (l *ComparisonLog) PairCount(a, b ItemID) int { return l.pairs[MakePairKey(a, b)] }

// DistinctPairs returns the number of distinct unordered pairs recorded.
func (l *ComparisonLog) DistinctPairs() int { return len(l.pairs) }

// Appearances returns how many recorded comparisons included id.
func (l *ComparisonLog) Appearances(id ItemID) int { return l.appearances[id] }

// Count returns the number of recorded comparisons.
func (l *ComparisonLog) Count() int { return len(l.entries) }

// All returns a copy of every recorded comparison in order.
func (l *ComparisonLog) All() []Comparison { return slices.Clone(l.entries) }
