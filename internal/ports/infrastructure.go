package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-acj/internal/domain"
)

// ErrAbort is returned by a Responder when the participant or experimenter
// ends the session early, for example by pressing escape.
var ErrAbort = errors.New("session aborted by participant")

// Choice is a participant's answer to one presented pair.
type Choice struct {
	// Winner is the chosen item, or domain.NoWinner when the trial timed out.
	Winner domain.ItemID

	// ReactionTime is the time from stimulus onset to response.
	// It is zero for missed trials.
	ReactionTime time.Duration
}

// Responder presents a pair to the participant and blocks until a choice is
// made or the trial times out. The GUI layer implements this interface;
// infrastructure/participants provides a simulated one.
type Responder interface {
	// Respond shows pair and returns the participant's choice.
	// Returning ErrAbort ends the session without error.
	Respond(ctx context.Context, trialNum int, pair domain.Pair) (Choice, error)
}

// TrialRecorder persists per-trial records. It is the engine's only link to
// durable storage; the engine itself keeps nothing after a session ends.
type TrialRecorder interface {
	// SaveTrial persists a single resolved or missed trial.
	SaveTrial(ctx context.Context, record domain.TrialRecord) error

	// Close flushes any buffered data and writes the session summary.
	Close(ctx context.Context, summary SessionSummary) error
}

// SessionSummary is the end-of-session export handed to a TrialRecorder.
// Duration is EndTime minus StartTime in seconds.
type SessionSummary struct {
	SessionID     string             `json:"session_id"`
	ParticipantID string             `json:"participant_id"`
	RoundType     domain.RoundType   `json:"round_type"`
	Policy        string             `json:"policy"`
	Step          float64            `json:"step"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	Duration      float64            `json:"duration"`
	Trials        int                `json:"trials"`
	Missed        int                `json:"missed"`
	Exhausted     bool               `json:"exhausted"`
	Aborted       bool               `json:"aborted"`
	Ranking       []domain.ItemScore `json:"ranking"`
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like resolved or missed trials.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like an item's current quality.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like win probabilities.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// TrialObserver receives lifecycle callbacks around each trial.
// Implementations typically open a tracing span in TrialStarted and close it
// in TrialFinished.
type TrialObserver interface {
	// TrialStarted is called after a pair has been selected and before it is
	// presented. The returned context is passed to the responder and to
	// TrialFinished.
	TrialStarted(ctx context.Context, trialNum int, pair domain.Pair) context.Context

	// TrialFinished is called once the trial has been resolved and recorded,
	// or has failed with err.
	TrialFinished(ctx context.Context, record domain.TrialRecord, err error)
}
