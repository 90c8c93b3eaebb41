package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Session runs one block of trials against an engine: select a pair, present
// it, resolve the answer and hand a flat record to the trial recorder.
//
// A Session is single-use and not safe for concurrent use. Run independent
// sessions, each with its own engine, to judge several participants at once.
type Session struct {
	id            string
	participantID string
	roundType     domain.RoundType

	engine    *Engine
	responder ports.Responder
	recorder  ports.TrialRecorder
	observer  ports.TrialObserver

	maxTrials      int
	randomizeSides bool
	rng            *rand.Rand
	limiter        *rate.Limiter

	logger *slog.Logger
	now    func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) SessionOption { return func(s *Session) { s.id = id } }

// WithParticipant sets the participant identifier copied into each record.
func WithParticipant(id string) SessionOption {
	return func(s *Session) { s.participantID = id }
}

// WithRoundType sets the round type copied into each record.
func WithRoundType(rt domain.RoundType) SessionOption {
	return func(s *Session) { s.roundType = rt }
}

// WithRecorder sets the trial recorder. Without one, trials are not persisted.
func WithRecorder(r ports.TrialRecorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithObserver sets the trial observer.
func WithObserver(o ports.TrialObserver) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithMaxTrials caps the number of trials. Zero keeps the default of one
// trial per distinct pair.
func WithMaxTrials(n int) SessionOption { return func(s *Session) { s.maxTrials = n } }

// WithRandomizedSides swaps the presentation sides of each pair at random,
// using a source seeded with seed.
func WithRandomizedSides(seed uint64) SessionOption {
	return func(s *Session) {
		s.randomizeSides = true
		s.rng = rand.New(rand.NewPCG(seed, ^seed))
	}
}

// WithPace limits trial starts to perSecond. Zero or negative disables pacing.
func WithPace(perSecond float64) SessionOption {
	return func(s *Session) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSessionLogger sets the structured logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// withClock replaces the wall clock; used in tests.
func withClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session that drives engine with answers from responder.
func NewSession(engine *Engine, responder ports.Responder, opts ...SessionOption) (*Session, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine is required", domain.ErrInvalidConfiguration)
	}
	if responder == nil {
		return nil, fmt.Errorf("%w: responder is required", domain.ErrInvalidConfiguration)
	}

	s := &Session{
		id:        uuid.NewString(),
		roundType: DefaultRoundType,
		engine:    engine,
		responder: responder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if n := len(engine.Items()); n < 2 {
		return nil, fmt.Errorf("%w: a session needs at least 2 items, have %d", domain.ErrInsufficientItems, n)
	}
	if s.maxTrials < 0 {
		return nil, fmt.Errorf("%w: max trials must not be negative", domain.ErrInvalidConfiguration)
	}
	if s.maxTrials == 0 {
		n := len(engine.Items())
		s.maxTrials = n * (n - 1) / 2
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("session_id", s.id, "participant_id", s.participantID)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run presents trials until the trial budget is spent, the selector reports
// exhaustion, the responder aborts or ctx is cancelled. The recorder is
// closed with the session summary in every case except a setup failure.
//
// Exhaustion and abort are normal endings and return a nil error.
func (s *Session) Run(ctx context.Context) (ports.SessionSummary, error) {
	summary := ports.SessionSummary{
		SessionID:     s.id,
		ParticipantID: s.participantID,
		RoundType:     s.roundType,
		Policy:        s.engine.Policy(),
		Step:          s.engine.Step(),
		StartTime:     s.now(),
	}
	s.logger.Info("session started",
		"policy", summary.Policy,
		"items", len(s.engine.Items()),
		"max_trials", s.maxTrials,
	)

	runErr := s.loop(ctx, &summary)

	summary.EndTime = s.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime).Seconds()
	summary.Missed = s.engine.Missed()
	summary.Ranking = s.engine.Ranking()
	if s.recorder != nil {
		// Write the summary even when the caller's context is already done.
		if err := s.recorder.Close(context.WithoutCancel(ctx), summary); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("close recorder: %w", err))
		}
	}

	attrs := []any{
		"trials", summary.Trials,
		"missed", summary.Missed,
		"exhausted", summary.Exhausted,
		"aborted", summary.Aborted,
		"duration_s", summary.Duration,
	}
	if runErr != nil {
		s.logger.Error("session failed", append(attrs, "error", runErr)...)
		return summary, runErr
	}
	s.logger.Info("session finished", attrs...)
	return summary, nil
}

func (s *Session) loop(ctx context.Context, summary *ports.SessionSummary) error {
	for trial := 1; trial <= s.maxTrials; trial++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("trial pacing: %w", err)
			}
		}

		pair, err := s.engine.SelectPair()
		if errors.Is(err, domain.ErrPairsExhausted) {
			summary.Exhausted = true
			return nil
		}
		if err != nil {
			return err
		}
		if s.randomizeSides && s.rng.IntN(2) == 1 {
			pair = pair.Swap()
		}

		aborted, err := s.runTrial(ctx, trial, pair)
		if aborted {
			summary.Aborted = true
			s.logger.Warn("session aborted by responder", "trial", trial)
			return nil
		}
		if err != nil {
			return err
		}
		summary.Trials = trial
	}
	return nil
}

func (s *Session) runTrial(ctx context.Context, trial int, pair domain.Pair) (aborted bool, err error) {
	rec := domain.TrialRecord{
		SessionID:     s.id,
		ParticipantID: s.participantID,
		TrialNum:      trial,
		RoundType:     s.roundType,
		Left:          pair.Left,
		Right:         pair.Right,
		PairKey:       pair.Key().String(),
		Order:         domain.PresentationOrder(pair),
	}

	tctx := ctx
	if s.observer != nil {
		tctx = s.observer.TrialStarted(ctx, trial, pair)
		defer func() { s.observer.TrialFinished(tctx, rec, err) }()
	}

	choice, err := s.responder.Respond(tctx, trial, pair)
	if errors.Is(err, ports.ErrAbort) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("trial %d: responder failed: %w", trial, err)
	}

	if err = s.engine.ResolvePair(pair, choice.Winner); err != nil {
		return false, fmt.Errorf("trial %d: %w", trial, err)
	}

	rec.Winner = choice.Winner
	rec.ReactionTime = choice.ReactionTime
	switch choice.Winner {
	case pair.Left:
		rec.Response = domain.ResponseLeft
	case pair.Right:
		rec.Response = domain.ResponseRight
	default:
		rec.Response = domain.ResponseMissed
		rec.ReactionTime = 0
	}

	if s.recorder != nil {
		if err = s.recorder.SaveTrial(tctx, rec); err != nil {
			return false, fmt.Errorf("trial %d: save: %w", trial, err)
		}
	}
	s.logger.Debug("trial complete",
		"trial", trial,
		"left", rec.Left,
		"right", rec.Right,
		"response", rec.Response,
		"rt", rec.ReactionTime,
	)
	return false, nil
}
