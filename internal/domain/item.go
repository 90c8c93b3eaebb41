package domain

import (
	"fmt"
	"time"
)

// ItemID identifies a stimulus being judged, typically an image filename.
// Identifiers are opaque to the engine; only equality and ordering matter.
type ItemID string

// NoWinner is the designated outcome for a trial that received no response.
// Resolving a pair with NoWinner leaves every quality score unchanged.
const NoWinner ItemID = ""

// Pair is a transient candidate comparison produced by a pair selector.
// Left and Right describe presentation order only; two pairs with the same
// members in either order denote the same unordered pair.
type Pair struct {
	// Left is the item shown on the left-hand side.
	Left ItemID `json:"left"`

	// Right is the item shown on the right-hand side.
	Right ItemID `json:"right"`
}

// NewPair returns a pair in the given presentation order.
func NewPair(left, right ItemID) Pair { return Pair{Left: left, Right: right} }

// Key returns an order-independent identifier for the unordered pair.
func (p Pair) Key() PairKey { return MakePairKey(p.Left, p.Right) }

// Swap returns the same pair with presentation sides exchanged.
func (p Pair) Swap() Pair { return Pair{Left: p.Right, Right: p.Left} }

// Contains reports whether id is one of the pair's members.
func (p Pair) Contains(id ItemID) bool { return id == p.Left || id == p.Right }

// String renders the pair as "left_vs_right".
func (p Pair) String() string { return fmt.Sprintf("%s_vs_%s", p.Left, p.Right) }

// PairKey is the canonical form of an unordered pair: the lexicographically
// smaller identifier first.
type PairKey struct {
	Lo ItemID
	Hi ItemID
}

// MakePairKey builds the canonical key for a and b regardless of order.
func MakePairKey(a, b ItemID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// String renders the key as "lo|hi".
func (k PairKey) String() string { return string(k.Lo) + "|" + string(k.Hi) }

// Comparison is an immutable record of one resolved trial.
// Winner is always either A or B.
type Comparison struct {
	// Seq is the zero-based position of this comparison in the log.
	Seq int `json:"seq"`

	// A is the first item of the compared pair.
	A ItemID `json:"item_a"`

	// B is the second item of the compared pair.
	B ItemID `json:"item_b"`

	// Winner is the item the participant chose.
	Winner ItemID `json:"winner"`
}

// Loser returns the member of the comparison that did not win.
func (c Comparison) Loser() ItemID {
	if c.Winner == c.A {
		return c.B
	}
	return c.A
}

// ItemScore pairs an item with its current quality estimate.
type ItemScore struct {
	Item    ItemID  `json:"item"`
	Quality float64 `json:"quality"`
}

// RoundType names the block of trials a record belongs to.
type RoundType string

// Round types used by the experiment scripts.
const (
	RoundPractice   RoundType = "practice"
	RoundSimilarity RoundType = "similarity"
	RoundLiking     RoundType = "liking"
)

// Response is the raw participant response for a trial.
type Response string

// Responses recognised by the data manager.
const (
	ResponseLeft   Response = "left"
	ResponseRight  Response = "right"
	ResponseMissed Response = "missed"
)

// TrialRecord is the flat, per-trial row handed to a trial recorder.
// It carries everything needed to reconstruct the session offline. Order is
// the PresentationOrder of the pair as shown.
type TrialRecord struct {
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	TrialNum      int           `json:"trial_num"`
	RoundType     RoundType     `json:"round_type"`
	Left          ItemID        `json:"left_stimulus"`
	Right         ItemID        `json:"right_stimulus"`
	Response      Response      `json:"response"`
	Winner        ItemID        `json:"winner,omitempty"`
	ReactionTime  time.Duration `json:"reaction_time_ns,omitempty"`
	PairKey       string        `json:"comparison_key"`
	Order         int           `json:"comparison_order"`
}

// PresentationOrder returns 0 when p shows its lexicographically smaller
// member on the left and 1 otherwise.
func PresentationOrder(p Pair) int {
	if p.Left <= p.Right {
		return 0
	}
	return 1
}

// Missed reports whether the trial ended without a choice.
func (r TrialRecord) Missed() bool { return r.Winner == NoWinner }
