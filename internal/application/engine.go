// Package application wires the domain model, pair selectors and quality
// updater into the adaptive comparative judgement engine, and provides the
// session runner, configuration loading and replay built on top of it.
package application

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-acj/infrastructure/selectors"
	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Metric names reported by the engine through ports.MetricsCollector.
const (
	MetricSelections   = "acj_selections_total"
	MetricExhausted    = "acj_pairs_exhausted_total"
	MetricComparisons  = "acj_comparisons_total"
	MetricMissed       = "acj_missed_trials_total"
	MetricRejected     = "acj_rejected_resolutions_total"
	MetricExpected     = "acj_expected_winner_probability"
	MetricItemQuality  = "acj_item_quality"
	OperationSelect    = "select_pair"
	OperationResolve   = "resolve"
	labelPolicy        = "policy"
	labelItem          = "item"
	labelErrorCategory = "reason"
)

// Engine is the adaptive comparative judgement engine for one trial block.
//
// It owns the item registry and the comparison log, asks its pair selector
// for the next comparison and applies the Bradley-Terry update once a
// winner is reported. All methods are safe for concurrent use, but quality
// updates are order dependent: concurrent callers for one session get
// whatever order the lock imposes.
type Engine struct {
	mu       sync.Mutex
	registry *domain.Registry
	log      *domain.ComparisonLog
	selector ports.PairSelector
	updater  *QualityUpdater
	missed   int

	logger  *slog.Logger
	metrics ports.MetricsCollector
	labels  map[string]string
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	step     float64
	selector ports.PairSelector
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	labels   map[string]string
}

// WithStep sets the update learning rate. It must be positive.
func WithStep(step float64) EngineOption {
	return func(o *engineOptions) { o.step = step }
}

// WithSelector sets the pair-selection policy. The default is the seeded
// adaptive policy with seed 0.
func WithSelector(s ports.PairSelector) EngineOption {
	return func(o *engineOptions) { o.selector = s }
}

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// WithMetrics sets the metrics collector and the constant labels attached
// to every metric the engine reports.
func WithMetrics(m ports.MetricsCollector, labels map[string]string) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
		o.labels = labels
	}
}

// NewEngine initialises an engine for the given item set with every quality
// at 0.0. Items must be distinct and non-empty. An engine with fewer than
// two items can be constructed, but SelectPair reports
// domain.ErrInsufficientItems.
func NewEngine(items []domain.ItemID, opts ...EngineOption) (*Engine, error) {
	o := engineOptions{step: DefaultStep}
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := domain.NewRegistry(items)
	if err != nil {
		return nil, fmt.Errorf("failed to build item registry: %w", err)
	}
	updater, err := NewQualityUpdater(o.step)
	if err != nil {
		return nil, err
	}
	if o.selector == nil {
		o.selector = selectors.NewSeededAdaptiveSelector(0)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	labels := make(map[string]string, len(o.labels)+1)
	maps.Copy(labels, o.labels)
	labels[labelPolicy] = o.selector.Name()

	return &Engine{
		registry: registry,
		log:      domain.NewComparisonLog(),
		selector: o.selector,
		updater:  updater,
		logger:   o.logger.With("component", "acj_engine", "policy", o.selector.Name()),
		metrics:  o.metrics,
		labels:   labels,
	}, nil
}

// engineView exposes engine state to selectors without exporting accessors
// that would let other callers mutate it.
type engineView struct{ e *Engine }

func (v engineView) Registry() *domain.Registry { return v.e.registry }

func (v engineView) Log() *domain.ComparisonLog { return v.e.log }

// SelectPair returns the next pair to present. It returns
// domain.ErrPairsExhausted when the selection policy has nothing left to
// offer, and domain.ErrInsufficientItems when fewer than two items exist.
func (e *Engine) SelectPair() (domain.Pair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	pair, err := e.selector.Select(engineView{e})
	e.recordLatency(OperationSelect, time.Since(start))

	switch {
	case errors.Is(err, domain.ErrPairsExhausted):
		e.count(MetricExhausted, nil)
		e.logger.Info("all pairs exhausted", "comparisons", e.log.Count())
		return domain.Pair{}, err
	case err != nil:
		e.logger.Error("pair selection failed", "error", err, "items", e.registry.Len())
		return domain.Pair{}, fmt.Errorf("select pair: %w", err)
	}

	e.count(MetricSelections, nil)
	e.logger.Debug("pair selected",
		"left", pair.Left,
		"right", pair.Right,
		"comparisons", e.log.Count(),
	)
	return pair, nil
}

// Resolve reports the outcome of presenting a and b. winner must be a or b,
// or domain.NoWinner for a trial that received no response; the latter
// leaves every score unchanged and is not added to the comparison log.
//
// The comparison is appended to the log before the quality update is
// applied, so the log is always the source of truth.
func (e *Engine) Resolve(a, b, winner domain.ItemID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.recordLatency(OperationResolve, time.Since(start)) }()

	for _, id := range []domain.ItemID{a, b} {
		if !e.registry.Contains(id) {
			e.count(MetricRejected, map[string]string{labelErrorCategory: "unknown_item"})
			return domain.NewItemError(id, "Resolve", domain.ErrUnknownItem)
		}
	}
	if a == b {
		e.count(MetricRejected, map[string]string{labelErrorCategory: "invalid_pair"})
		return domain.NewItemError(a, "Resolve", domain.ErrInvalidPair)
	}

	if winner == domain.NoWinner {
		e.missed++
		e.count(MetricMissed, nil)
		e.logger.Debug("trial missed", "left", a, "right", b)
		return nil
	}
	if winner != a && winner != b {
		e.count(MetricRejected, map[string]string{labelErrorCategory: "invalid_winner"})
		return domain.NewItemError(winner, "Resolve", domain.ErrInvalidWinner)
	}

	c, err := e.log.Record(a, b, winner)
	if err != nil {
		return fmt.Errorf("record comparison: %w", err)
	}
	upd, err := e.updater.Apply(e.registry, c)
	if err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	e.count(MetricComparisons, nil)
	if e.metrics != nil {
		e.metrics.RecordHistogram(MetricExpected, upd.Expected, e.labels)
		e.metrics.RecordGauge(MetricItemQuality, upd.QualityA, e.withLabels(map[string]string{labelItem: string(a)}))
		e.metrics.RecordGauge(MetricItemQuality, upd.QualityB, e.withLabels(map[string]string{labelItem: string(b)}))
	}
	e.logger.Debug("comparison resolved",
		"seq", c.Seq,
		"winner", winner,
		"loser", c.Loser(),
		"expected", upd.Expected,
		"delta", upd.Delta,
	)
	return nil
}

// ResolvePair is Resolve for a pair returned by SelectPair.
func (e *Engine) ResolvePair(p domain.Pair, winner domain.ItemID) error {
	return e.Resolve(p.Left, p.Right, winner)
}

// Quality returns the current quality of id.
func (e *Engine) Quality(id domain.ItemID) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Quality(id)
}

// Probability returns the model probability that a beats b under the
// current scores.
func (e *Engine) Probability(a, b domain.ItemID) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	qa, err := e.registry.Quality(a)
	if err != nil {
		return 0, err
	}
	qb, err := e.registry.Quality(b)
	if err != nil {
		return 0, err
	}
	return domain.WinProbability(qa, qb), nil
}

// Ranking returns every item ordered from highest to lowest quality.
func (e *Engine) Ranking() []domain.ItemScore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Ranking()
}

// Qualities returns a copy of the quality table.
func (e *Engine) Qualities() map[domain.ItemID]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Snapshot()
}

// Items returns the fixed item set in construction order.
func (e *Engine) Items() []domain.ItemID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Items()
}

// Comparisons returns a copy of the comparison log.
func (e *Engine) Comparisons() []domain.Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.All()
}

// Count returns the number of resolved comparisons.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Count()
}

// Missed returns the number of trials resolved with domain.NoWinner.
func (e *Engine) Missed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missed
}

// Policy returns the name of the pair-selection policy.
func (e *Engine) Policy() string { return e.selector.Name() }

// Step returns the update learning rate.
func (e *Engine) Step() float64 { return e.updater.Step() }

func (e *Engine) count(metric string, extra map[string]string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordCounter(metric, 1, e.withLabels(extra))
}

func (e *Engine) recordLatency(op string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordLatency(op, d, e.labels)
}

func (e *Engine) withLabels(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return e.labels
	}
	out := make(map[string]string, len(e.labels)+len(extra))
	maps.Copy(out, e.labels)
	maps.Copy(out, extra)
	return out
}
