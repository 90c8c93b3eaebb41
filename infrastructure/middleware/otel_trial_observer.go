package middleware

import (
	"context"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// Metrics reported by OTelTrialObserver.
const (
	MetricTrials       = "acj_trials_total"
	MetricReactionTime = "acj_reaction_time_seconds"
	OperationTrial     = "trial"
)

const tracerName = "github.com/ahrav/go-acj/session"

var _ ports.TrialObserver = (*OTelTrialObserver)(nil)

type trialStartKey struct{}

// OTelTrialObserver traces each trial as an OpenTelemetry span and reports
// trial counts, reaction times and trial latency to a metrics collector.
// It keeps no per-trial state of its own, so one observer may serve many
// concurrent sessions.
type OTelTrialObserver struct {
	tracer  trace.Tracer
	metrics ports.MetricsCollector
	labels  map[string]string
}

// NewOTelTrialObserver creates an observer. A nil provider uses the global
// tracer provider; a nil metrics collector disables metrics.
func NewOTelTrialObserver(
	provider trace.TracerProvider,
	metrics ports.MetricsCollector,
	labels map[string]string,
) *OTelTrialObserver {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTrialObserver{
		tracer:  provider.Tracer(tracerName),
		metrics: metrics,
		labels:  maps.Clone(labels),
	}
}

// TrialStarted implements the TrialObserver interface. It starts the trial
// span and stamps the start time into the returned context.
func (o *OTelTrialObserver) TrialStarted(ctx context.Context, trialNum int, pair domain.Pair) context.Context {
	ctx, _ = o.tracer.Start(ctx, "acj.trial", trace.WithAttributes(
		attribute.Int("trial.number", trialNum),
		attribute.String("trial.left", string(pair.Left)),
		attribute.String("trial.right", string(pair.Right)),
	))
	return context.WithValue(ctx, trialStartKey{}, time.Now())
}

// TrialFinished implements the TrialObserver interface. It records the
// outcome on the span, ends it and updates metrics.
func (o *OTelTrialObserver) TrialFinished(ctx context.Context, record domain.TrialRecord, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if start, ok := ctx.Value(trialStartKey{}).(time.Time); ok && o.metrics != nil {
		o.metrics.RecordLatency(OperationTrial, time.Since(start), o.labels)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("trial.response", string(record.Response)),
		attribute.String("trial.pair_key", record.PairKey),
	)
	if record.Missed() {
		span.AddEvent("trial.missed")
	} else {
		span.SetAttributes(
			attribute.String("trial.winner", string(record.Winner)),
			attribute.Int64("trial.reaction_time_ms", record.ReactionTime.Milliseconds()),
		)
	}
	span.SetStatus(codes.Ok, "")

	o.updateMetrics(record)
}

func (o *OTelTrialObserver) updateMetrics(record domain.TrialRecord) {
	if o.metrics == nil {
		return
	}
	labels := maps.Clone(o.labels)
	if labels == nil {
		labels = make(map[string]string, 1)
	}
	labels[LabelResponse] = string(record.Response)
	o.metrics.RecordCounter(MetricTrials, 1, labels)

	if !record.Missed() {
		o.metrics.RecordHistogram(MetricReactionTime, record.ReactionTime.Seconds(), o.labels)
	}
}
