package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded across tool execution, specialist
// consultation, and graph iteration — the three hot paths named in the
// ambient stack.
type Metrics struct {
	toolExecutions       metric.Int64Counter
	toolErrors           metric.Int64Counter
	toolDuration         metric.Float64Histogram
	specialistCalls      metric.Int64Counter
	specialistDuration   metric.Float64Histogram
	graphIterations      metric.Int64Counter
}

var (
	globalMetrics *Metrics
	globalOnce    sync.Once
)

// InitGlobalMetrics installs a Prometheus-backed OpenTelemetry meter
// provider and builds the instrument set, returning the *Metrics holder.
// The exporter registers with the default Prometheus registerer; this
// package serves no /metrics endpoint itself.
func InitGlobalMetrics() (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/klarahealth/agentcore")

	m := &Metrics{}

	m.toolExecutions, err = meter.Int64Counter("tool_executions_total",
		metric.WithDescription("total tool invocations, by tool name"))
	if err != nil {
		return nil, err
	}
	m.toolErrors, err = meter.Int64Counter("tool_errors_total",
		metric.WithDescription("total tool invocations that returned an error"))
	if err != nil {
		return nil, err
	}
	m.toolDuration, err = meter.Float64Histogram("tool_execution_duration_seconds",
		metric.WithDescription("tool execution wall-clock duration"))
	if err != nil {
		return nil, err
	}
	m.specialistCalls, err = meter.Int64Counter("specialist_consultations_total",
		metric.WithDescription("total specialist consultations dispatched"))
	if err != nil {
		return nil, err
	}
	m.specialistDuration, err = meter.Float64Histogram("specialist_consultation_duration_seconds",
		metric.WithDescription("specialist consultation wall-clock duration"))
	if err != nil {
		return nil, err
	}
	m.graphIterations, err = meter.Int64Counter("graph_iterations_total",
		metric.WithDescription("total agent-node iterations across all turns"))
	if err != nil {
		return nil, err
	}

	globalOnce.Do(func() { globalMetrics = m })
	return m, nil
}

// GetGlobalMetrics returns the process-wide metrics instance, lazily
// installing a provider if InitGlobalMetrics was never called so callers in
// tests never see a nil pointer.
func GetGlobalMetrics() *Metrics {
	if globalMetrics == nil {
		m, err := InitGlobalMetrics()
		if err != nil {
			return &Metrics{}
		}
		return m
	}
	return globalMetrics
}

// RecordToolExecution records one tool invocation's outcome and duration.
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName string, dur time.Duration, execErr error) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	attrs := metric.WithAttributes(AttrToolName.String(toolName))
	m.toolExecutions.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, dur.Seconds(), attrs)
	if execErr != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordSpecialistConsultation records one specialist consultation's
// duration, keyed by specialist id.
func (m *Metrics) RecordSpecialistConsultation(ctx context.Context, specialistID string, dur time.Duration) {
	if m == nil || m.specialistCalls == nil {
		return
	}
	attrs := metric.WithAttributes(AttrSpecialistID.String(specialistID))
	m.specialistCalls.Add(ctx, 1, attrs)
	m.specialistDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordGraphIteration records one agent-node iteration of the graph
// execution engine for a turn.
func (m *Metrics) RecordGraphIteration(ctx context.Context, step int) {
	if m == nil || m.graphIterations == nil {
		return
	}
	m.graphIterations.Add(ctx, 1, metric.WithAttributes(AttrGraphStep.Int(step)))
}
