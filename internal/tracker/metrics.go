package tracker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/agentkanban/internal/tracker"

// Metrics holds the tracker instruments. A nil *Metrics records nothing.
type Metrics struct {
	toolCalls   metric.Int64Counter
	workCounted metric.Int64Counter
	completions metric.Int64Counter
	conflicts   metric.Int64Counter
	emitErrors  metric.Int64Counter
}

// NewMetrics creates the tracker instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return NewMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

// NewMetricsWithMeter creates the tracker instruments on meter.
func NewMetricsWithMeter(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}
	var err error

	m.toolCalls, err = meter.Int64Counter(
		"agentkanban.tracker.tool_calls_total",
		metric.WithDescription("Tool calls routed through the tracker"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create tool calls counter", zap.Error(err))
	}

	m.workCounted, err = meter.Int64Counter(
		"agentkanban.tracker.work_counted_total",
		metric.WithDescription("Work-count increments applied to active features"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		logger.Warn("failed to create work counter", zap.Error(err))
	}

	m.completions, err = meter.Int64Counter(
		"agentkanban.tracker.completions_total",
		metric.WithDescription("Features auto-completed"),
		metric.WithUnit("{feature}"),
	)
	if err != nil {
		logger.Warn("failed to create completions counter", zap.Error(err))
	}

	m.conflicts, err = meter.Int64Counter(
		"agentkanban.tracker.version_conflicts_total",
		metric.WithDescription("Feature updates retried after a version conflict"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		logger.Warn("failed to create conflicts counter", zap.Error(err))
	}

	m.emitErrors, err = meter.Int64Counter(
		"agentkanban.tracker.emit_errors_total",
		metric.WithDescription("Events dropped by the sink"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		logger.Warn("failed to create emit errors counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) recordToolCall(ctx context.Context, tool string) {
	if m != nil && m.toolCalls != nil {
		m.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func (m *Metrics) recordWork(ctx context.Context, tool string) {
	if m != nil && m.workCounted != nil {
		m.workCounted.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func (m *Metrics) recordCompletion(ctx context.Context, kind string) {
	if m != nil && m.completions != nil {
		m.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("criteria", kind)))
	}
}

func (m *Metrics) recordConflict(ctx context.Context) {
	if m != nil && m.conflicts != nil {
		m.conflicts.Add(ctx, 1)
	}
}

func (m *Metrics) recordEmitError(ctx context.Context, eventType string) {
	if m != nil && m.emitErrors != nil {
		m.emitErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}
