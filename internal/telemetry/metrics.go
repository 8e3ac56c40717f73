// Package telemetry wraps the handful of OpenTelemetry metric instruments
// the pipeline records, mirroring gomind's MetricInstruments cache
// (telemetry/metrics.go) but trimmed to the counters this pipeline needs.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records run-lifecycle counts. A zero-value provider from
// otel.Meter (no SDK/exporter configured) makes every Add a no-op, so the
// pipeline runs unmodified without a collector.
type Metrics struct {
	mu            sync.Mutex
	meter         metric.Meter
	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	runsFailed    metric.Int64Counter
	modelCalls    metric.Int64Counter
}

// New builds all four counters up front from the global meter provider, matching
// gomind's NewMetricInstruments(meterName) construction.
func New(meterName string) *Metrics {
	m := &Metrics{meter: otel.Meter(meterName)}
	m.runsStarted, _ = m.meter.Int64Counter("pipeline.runs_started")
	m.runsCompleted, _ = m.meter.Int64Counter("pipeline.runs_completed")
	m.runsFailed, _ = m.meter.Int64Counter("pipeline.runs_failed")
	m.modelCalls, _ = m.meter.Int64Counter("pipeline.model_calls")
	return m
}

func (m *Metrics) RunStarted(ctx context.Context, cocktail string) {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("cocktail", cocktail)))
}

func (m *Metrics) RunCompleted(ctx context.Context, cocktail string) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("cocktail", cocktail)))
}

func (m *Metrics) RunFailed(ctx context.Context, cocktail, stage string) {
	if m == nil || m.runsFailed == nil {
		return
	}
	m.runsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("cocktail", cocktail), attribute.String("stage", stage)))
}

func (m *Metrics) ModelCall(ctx context.Context, model, round string) {
	if m == nil || m.modelCalls == nil {
		return
	}
	m.modelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model), attribute.String("round", round)))
}
