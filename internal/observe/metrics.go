// Package observe exposes voicetext's OpenTelemetry instruments and the
// Prometheus bridge that serves them.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] so
// instruments from different tests do not share state.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicetext metrics.
const meterName = "github.com/courtrecord/voicetext"

// spliceBuckets covers single punctuation marks up to long dictated sentences.
var spliceBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500}

// Metrics holds the instruments recorded by the dictation controller.
// A nil *Metrics records nothing.
type Metrics struct {
	// Utterances counts final utterances by classifier kind
	// (text, punctuation, formatting, edit).
	Utterances metric.Int64Counter

	// Restarts counts automatic engine restarts. reason is "ended" or "network".
	Restarts metric.Int64Counter

	// EngineErrors counts engine errors by kind and category.
	EngineErrors metric.Int64Counter

	// ActiveSessions tracks live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SpliceRunes records the length of each insertion in runes.
	SpliceRunes metric.Int64Histogram
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("voicetext.utterances",
		metric.WithDescription("Final utterances by classifier kind."),
	); err != nil {
		return nil, err
	}
	if met.Restarts, err = m.Int64Counter("voicetext.restarts",
		metric.WithDescription("Automatic recognition restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("voicetext.engine_errors",
		metric.WithDescription("Recognition engine errors by kind and category."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicetext.sessions.active",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}
	if met.SpliceRunes, err = m.Int64Histogram("voicetext.splice.runes",
		metric.WithDescription("Characters inserted per splice."),
		metric.WithUnit("{rune}"),
		metric.WithExplicitBucketBoundaries(spliceBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordUtterance(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Restarts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordEngineError(ctx context.Context, kind, category string) {
	if m == nil {
		return
	}
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("category", category),
		),
	)
}

func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

func (m *Metrics) RecordSplice(ctx context.Context, runes int) {
	if m == nil {
		return
	}
	m.SpliceRunes.Record(ctx, int64(runes))
}
