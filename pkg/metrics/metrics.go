// Package metrics owns the OpenTelemetry instruments emitted by the engine:
// orchestrator counters, the latency histograms, and router cost accounting.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/newslens/newslens"

// Metrics bundles every instrument the engine emits.
type Metrics struct {
	orchestratorStart   metric.Int64Counter
	orchestratorSuccess metric.Int64Counter
	orchestratorElapsed metric.Float64Histogram
	orchestratorError   metric.Int64Counter
	routerLatency       metric.Float64Histogram
	routerCost          metric.Float64Counter
}

// New creates the instrument set on the given meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.orchestratorStart, err = meter.Int64Counter("orchestrator_start",
		metric.WithDescription("Commands accepted by the orchestrator")); err != nil {
		return nil, fmt.Errorf("failed to create orchestrator_start: %w", err)
	}
	if m.orchestratorSuccess, err = meter.Int64Counter("orchestrator_success",
		metric.WithDescription("Commands completed with a valid envelope")); err != nil {
		return nil, fmt.Errorf("failed to create orchestrator_success: %w", err)
	}
	if m.orchestratorElapsed, err = meter.Float64Histogram("orchestrator_elapsed_ms",
		metric.WithDescription("End-to-end command latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create orchestrator_elapsed_ms: %w", err)
	}
	if m.orchestratorError, err = meter.Int64Counter("orchestrator_error",
		metric.WithDescription("Commands that returned an error envelope")); err != nil {
		return nil, fmt.Errorf("failed to create orchestrator_error: %w", err)
	}
	if m.routerLatency, err = meter.Float64Histogram("model_router_latency_ms",
		metric.WithDescription("Per-call model latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create model_router_latency_ms: %w", err)
	}
	if m.routerCost, err = meter.Float64Counter("model_router_cost_cents",
		metric.WithDescription("Accumulated model spend"),
		metric.WithUnit("¢")); err != nil {
		return nil, fmt.Errorf("failed to create model_router_cost_cents: %w", err)
	}
	return m, nil
}

// NewNop returns an instrument set that records nothing. Used by tests and
// by components constructed without a meter.
func NewNop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter(meterName))
	return m
}

// Setup builds a Prometheus-backed meter provider and the instrument set.
// The returned registry serves the /metrics scrape endpoint.
func Setup() (*Metrics, *prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := New(provider.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	return m, registry, nil
}

// RecordStart counts an accepted command.
func (m *Metrics) RecordStart(ctx context.Context, command string) {
	m.orchestratorStart.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordSuccess counts a completed command and records its latency histogram.
func (m *Metrics) RecordSuccess(ctx context.Context, command string, elapsedMS float64, evidenceCount, docCount int) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.Int("evidence_count", evidenceCount),
		attribute.Int("doc_count", docCount),
	)
	m.orchestratorSuccess.Add(ctx, 1, attrs)
	m.orchestratorElapsed.Record(ctx, elapsedMS, metric.WithAttributes(attribute.String("command", command)))
}

// RecordError counts a command that produced an error envelope.
func (m *Metrics) RecordError(ctx context.Context, command, reason string) {
	m.orchestratorError.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("reason", reason),
	))
}

// RecordRouterCall records one model invocation's latency and cost.
func (m *Metrics) RecordRouterCall(ctx context.Context, model string, fallbackUsed bool, latencyMS, costCents float64) {
	m.routerLatency.Record(ctx, latencyMS, metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("fallback_used", fallbackUsed),
	))
	m.routerCost.Add(ctx, costCents, metric.WithAttributes(attribute.String("model", model)))
}
