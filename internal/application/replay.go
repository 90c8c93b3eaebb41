package application

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-acj/internal/domain"
)

// foldCaser folds case for suggestion matching; safe for concurrent use.
var foldCaser = cases.Fold()

// maxSuggestionRatio bounds how different a suggestion may be from the
// unknown identifier, as a fraction of the longer name.
const maxSuggestionRatio = 0.5

// ReplayReport summarises a replay.
type ReplayReport struct {
	// Applied is the number of comparisons fed to the engine.
	Applied int
	// Missed is the number of records skipped because they had no winner.
	Missed int
}

// UnknownItemError reports a trial record naming an item outside the item
// set. Suggestion holds the closest known identifier, if any is close.
type UnknownItemError struct {
	TrialNum   int
	Item       domain.ItemID
	Suggestion domain.ItemID
}

// Error implements the error interface.
func (e *UnknownItemError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("trial %d: unknown item %q (did you mean %q?)", e.TrialNum, e.Item, e.Suggestion)
	}
	return fmt.Sprintf("trial %d: unknown item %q", e.TrialNum, e.Item)
}

// Unwrap returns domain.ErrUnknownItem.
func (e *UnknownItemError) Unwrap() error { return domain.ErrUnknownItem }

// Replay rebuilds an engine from recorded trials. Records are applied in
// order; missed trials are skipped. Item identifiers in both items and
// records are NFC-normalised before matching, so data recorded on one
// platform replays on another.
//
// Because the update is deterministic, replaying the records of a session
// reproduces its final qualities exactly.
func Replay(items []domain.ItemID, records []domain.TrialRecord, opts ...EngineOption) (*Engine, ReplayReport, error) {
	normalized := make([]domain.ItemID, len(items))
	for i, id := range items {
		normalized[i] = domain.ItemID(NormalizeItemID(string(id)))
	}
	engine, err := NewEngine(normalized, opts...)
	if err != nil {
		return nil, ReplayReport{}, err
	}

	var report ReplayReport
	for _, rec := range records {
		if rec.Missed() {
			report.Missed++
			continue
		}
		left := domain.ItemID(NormalizeItemID(string(rec.Left)))
		right := domain.ItemID(NormalizeItemID(string(rec.Right)))
		winner := domain.ItemID(NormalizeItemID(string(rec.Winner)))

		for _, id := range []domain.ItemID{left, right} {
			if !slices.Contains(normalized, id) {
				return nil, report, &UnknownItemError{
					TrialNum:   rec.TrialNum,
					Item:       id,
					Suggestion: Suggest(id, normalized),
				}
			}
		}
		if err := engine.Resolve(left, right, winner); err != nil {
			return nil, report, fmt.Errorf("trial %d: %w", rec.TrialNum, err)
		}
		report.Applied++
	}
	return engine, report, nil
}

// Suggest returns the known identifier closest to id by case-insensitive
// edit distance, or "" when nothing is reasonably close.
func Suggest(id domain.ItemID, known []domain.ItemID) domain.ItemID {
	target := foldCaser.String(string(id))
	var (
		best     domain.ItemID
		bestDist = -1
	)
	for _, k := range known {
		candidate := foldCaser.String(string(k))
		d := levenshtein.ComputeDistance(target, candidate)
		limit := int(maxSuggestionRatio * float64(max(utf8.RuneCountInString(target), utf8.RuneCountInString(candidate))))
		if d > limit {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && k < best) {
			best, bestDist = k, d
		}
	}
	return best
}

// IsUnknownItem reports whether err is an *UnknownItemError and returns it.
func IsUnknownItem(err error) (*UnknownItemError, bool) {
	var uerr *UnknownItemError
	ok := errors.As(err, &uerr)
	return uerr, ok
}
