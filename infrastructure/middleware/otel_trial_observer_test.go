package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/go-acj/internal/domain"
)

func newTracedObserver(t *testing.T) (*OTelTrialObserver, *tracetest.SpanRecorder, *PrometheusMetrics) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	pm, _ := newTestMetrics(t)
	return NewOTelTrialObserver(tp, pm, map[string]string{LabelParticipant: "p01"}), sr, pm
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestOTelTrialObserver_AnsweredTrial(t *testing.T) {
	obs, sr, pm := newTracedObserver(t)
	pair := domain.NewPair("cat.png", "dog.png")

	ctx := obs.TrialStarted(context.Background(), 4, pair)
	obs.TrialFinished(ctx, domain.TrialRecord{
		TrialNum:     4,
		Left:         pair.Left,
		Right:        pair.Right,
		Response:     domain.ResponseRight,
		Winner:       pair.Right,
		ReactionTime: 850 * time.Millisecond,
		PairKey:      pair.Key().String(),
	}, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "acj.trial", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := attrMap(span.Attributes())
	assert.Equal(t, int64(4), attrs["trial.number"].AsInt64())
	assert.Equal(t, "cat.png", attrs["trial.left"].AsString())
	assert.Equal(t, "dog.png", attrs["trial.winner"].AsString())
	assert.Equal(t, "right", attrs["trial.response"].AsString())
	assert.Equal(t, int64(850), attrs["trial.reaction_time_ms"].AsInt64())

	assert.InDelta(t, 1, testutil.ToFloat64(pm.trials.WithLabelValues("right", "p01")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.reactionTime))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.executionLatency))
}

func TestOTelTrialObserver_MissedTrial(t *testing.T) {
	obs, sr, pm := newTracedObserver(t)
	pair := domain.NewPair("a", "b")

	ctx := obs.TrialStarted(context.Background(), 1, pair)
	obs.TrialFinished(ctx, domain.TrialRecord{
		TrialNum: 1,
		Left:     pair.Left,
		Right:    pair.Right,
		Response: domain.ResponseMissed,
	}, nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "trial.missed", events[0].Name)
	_, hasWinner := attrMap(spans[0].Attributes())["trial.winner"]
	assert.False(t, hasWinner)

	assert.InDelta(t, 1, testutil.ToFloat64(pm.trials.WithLabelValues("missed", "p01")), 1e-9)
	assert.Equal(t, 0, testutil.CollectAndCount(pm.reactionTime))
}

func TestOTelTrialObserver_FailedTrial(t *testing.T) {
	obs, sr, pm := newTracedObserver(t)

	ctx := obs.TrialStarted(context.Background(), 2, domain.NewPair("a", "b"))
	obs.TrialFinished(ctx, domain.TrialRecord{TrialNum: 2}, errors.New("display lost"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "display lost", spans[0].Status().Description)
	assert.Equal(t, 0, testutil.CollectAndCount(pm.trials))
}

func TestOTelTrialObserver_NilCollaborators(t *testing.T) {
	obs := NewOTelTrialObserver(nil, nil, nil)
	ctx := obs.TrialStarted(context.Background(), 1, domain.NewPair("a", "b"))
	assert.NotPanics(t, func() {
		obs.TrialFinished(ctx, domain.TrialRecord{Winner: "a", Response: domain.ResponseLeft}, nil)
	})
}
