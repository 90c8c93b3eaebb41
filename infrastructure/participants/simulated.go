// Package participants provides ports.Responder implementations that stand
// in for a human participant, plus middleware that wraps any responder.
package participants

import (
	"context"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Default reaction-time model: easy choices take about Base, the hardest
// about Base+Spread.
const (
	DefaultReactionBase   = 600 * time.Millisecond
	DefaultReactionSpread = 900 * time.Millisecond
)

var _ ports.Responder = (*Simulated)(nil)

// Simulated answers trials from hidden true qualities with Bradley-Terry
// noise: it picks the left item with probability
// domain.WinProbability(true(left), true(right)).
//
// All randomness comes from a seeded PCG source, so a Simulated participant
// with the same seed, qualities and pair sequence gives the same answers.
type Simulated struct {
	mu         sync.Mutex
	truth      map[domain.ItemID]float64
	rng        *rand.Rand
	missRate   float64
	rtBase     time.Duration
	rtSpread   time.Duration
	abortAfter int
	realTime   bool
}

// SimulatedOption configures a Simulated participant.
type SimulatedOption func(*Simulated)

// WithSeed seeds the participant's random source.
func WithSeed(seed uint64) SimulatedOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)) }
}

// WithMissRate sets the probability that a trial receives no response.
func WithMissRate(p float64) SimulatedOption { return func(s *Simulated) { s.missRate = p } }

// WithReactionTime configures the reaction-time model.
func WithReactionTime(base, spread time.Duration) SimulatedOption {
	return func(s *Simulated) { s.rtBase, s.rtSpread = base, spread }
}

// WithAbortAfter makes the participant abort once n trials have been
// answered. Zero never aborts.
func WithAbortAfter(n int) SimulatedOption { return func(s *Simulated) { s.abortAfter = n } }

// WithRealTime makes Respond block for the simulated reaction time.
func WithRealTime() SimulatedOption { return func(s *Simulated) { s.realTime = true } }

// NewSimulated creates a participant whose preferences follow truth.
func NewSimulated(truth map[domain.ItemID]float64, opts ...SimulatedOption) (*Simulated, error) {
	s := &Simulated{
		truth:    make(map[domain.ItemID]float64, len(truth)),
		rtBase:   DefaultReactionBase,
		rtSpread: DefaultReactionSpread,
	}
	for id, q := range truth {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return nil, domain.NewItemError(id, "NewSimulated", fmt.Errorf("%w: quality must be finite", domain.ErrInvalidConfiguration))
		}
		s.truth[id] = q
	}
	WithSeed(0)(s)
	for _, opt := range opts {
		opt(s)
	}

	if s.missRate < 0 || s.missRate >= 1 || math.IsNaN(s.missRate) {
		return nil, fmt.Errorf("%w: miss rate must be in [0, 1), got %v", domain.ErrInvalidConfiguration, s.missRate)
	}
	if s.rtBase < 0 || s.rtSpread < 0 {
		return nil, fmt.Errorf("%w: reaction times must not be negative", domain.ErrInvalidConfiguration)
	}
	if s.abortAfter < 0 {
		return nil, fmt.Errorf("%w: abort threshold must not be negative", domain.ErrInvalidConfiguration)
	}
	return s, nil
}

// Respond implements ports.Responder.
func (s *Simulated) Respond(ctx context.Context, trialNum int, pair domain.Pair) (ports.Choice, error) {
	if err := ctx.Err(); err != nil {
		return ports.Choice{}, err
	}
	if s.abortAfter > 0 && trialNum > s.abortAfter {
		return ports.Choice{}, ports.ErrAbort
	}

	choice, err := s.decide(pair)
	if err != nil {
		return ports.Choice{}, err
	}

	if s.realTime && choice.ReactionTime > 0 {
		timer := time.NewTimer(choice.ReactionTime)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ports.Choice{}, ctx.Err()
		case <-timer.C:
		}
	}
	return choice, nil
}

func (s *Simulated) decide(pair domain.Pair) (ports.Choice, error) {
	ql, ok := s.truth[pair.Left]
	if !ok {
		return ports.Choice{}, domain.NewItemError(pair.Left, "Respond", domain.ErrUnknownItem)
	}
	qr, ok := s.truth[pair.Right]
	if !ok {
		return ports.Choice{}, domain.NewItemError(pair.Right, "Respond", domain.ErrUnknownItem)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.missRate > 0 && s.rng.Float64() < s.missRate {
		return ports.Choice{Winner: domain.NoWinner}, nil
	}

	p := domain.WinProbability(ql, qr)
	winner := pair.Right
	if s.rng.Float64() < p {
		winner = pair.Left
	}

	// Close calls take longer: difficulty is 1 for a coin flip and 0 for a
	// certain choice.
	difficulty := 1 - math.Abs(2*p-1)
	jitter := 0.5 + s.rng.Float64()
	rt := s.rtBase + time.Duration(float64(s.rtSpread)*difficulty*jitter)
	return ports.Choice{Winner: winner, ReactionTime: rt}, nil
}

// Truth returns a copy of the hidden qualities.
func (s *Simulated) Truth() map[domain.ItemID]float64 {
	return maps.Clone(s.truth)
}

// GenerateQualities draws a true quality for each item from a normal
// distribution with mean zero and standard deviation sd.
func GenerateQualities(items []domain.ItemID, seed uint64, sd float64) map[domain.ItemID]float64 {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	out := make(map[domain.ItemID]float64, len(items))
	for _, id := range items {
		out[id] = rng.NormFloat64() * sd
	}
	return out
}

// RankCorrelation returns Spearman's rank correlation between the true
// qualities and an estimated ranking. Items missing from either side are
// ignored; it returns 0 when fewer than two items are shared. Ties share
// the mean of their ranks.
func RankCorrelation(truth map[domain.ItemID]float64, estimate []domain.ItemScore) float64 {
	var shared []domain.ItemID
	est := make(map[domain.ItemID]float64, len(estimate))
	for _, sc := range estimate {
		if _, ok := truth[sc.Item]; ok {
			est[sc.Item] = sc.Quality
			shared = append(shared, sc.Item)
		}
	}
	if len(shared) < 2 {
		return 0
	}

	rt := ranks(shared, truth)
	re := ranks(shared, est)
	return pearson(rt, re)
}

func ranks(ids []domain.ItemID, score map[domain.ItemID]float64) []float64 {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[ids[idx[a]]] < score[ids[idx[b]]] })

	out := make([]float64, len(ids))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && score[ids[idx[j+1]]] == score[ids[idx[i]]] {
			j++
		}
		mean := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = mean
		}
		i = j + 1
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
