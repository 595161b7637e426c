package reattribution

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

const instrumentationName = "github.com/fyrsmithlabs/agentkanban/internal/reattribution"

// Options configures one run.
type Options struct {
	// DryRun reports without writing. It is the default mode.
	DryRun bool

	// MinScore is the minimum keyword overlap. Zero or less selects
	// DefaultMinScore; callers taking user input reject such values first.
	MinScore   int
	CatchAll   string
	PerFeature bool
}

// Job runs the offline reattribution pass.
type Job struct {
	features feature.Repository
	events   event.Repository
	logger   *zap.Logger
	tracer   trace.Tracer

	runs     metric.Int64Counter
	assigned metric.Int64Counter
	failed   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewJob creates a job over the repositories.
func NewJob(features feature.Repository, events event.Repository, logger *zap.Logger) *Job {
	return NewJobWithMeter(features, events, logger, otel.Meter(instrumentationName))
}

// NewJobWithMeter creates a job recording metrics on meter.
func NewJobWithMeter(features feature.Repository, events event.Repository, logger *zap.Logger, meter metric.Meter) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Job{
		features: features,
		events:   events,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}

	var err error
	if j.runs, err = meter.Int64Counter("agentkanban.reattribution.runs_total",
		metric.WithDescription("Reattribution runs"),
		metric.WithUnit("{run}")); err != nil {
		logger.Warn("failed to create runs counter", zap.Error(err))
	}
	if j.assigned, err = meter.Int64Counter("agentkanban.reattribution.assigned_total",
		metric.WithDescription("Events assigned to a feature"),
		metric.WithUnit("{event}")); err != nil {
		logger.Warn("failed to create assigned counter", zap.Error(err))
	}
	if j.failed, err = meter.Int64Counter("agentkanban.reattribution.failed_total",
		metric.WithDescription("Assignments that could not be applied"),
		metric.WithUnit("{event}")); err != nil {
		logger.Warn("failed to create failed counter", zap.Error(err))
	}
	if j.duration, err = meter.Float64Histogram("agentkanban.reattribution.duration_seconds",
		metric.WithDescription("Duration of reattribution runs"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	return j
}

// Run finds completed features with no events, collects candidate events
// in their windows, assigns each event to its best match and, unless
// DryRun, applies the links. Per-event failures are reported, not returned.
func (j *Job) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	ctx, span := j.tracer.Start(ctx, "reattribution.Run",
		trace.WithAttributes(attribute.Bool("dry_run", opts.DryRun)))
	defer span.End()

	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	report := &Report{DryRun: opts.DryRun, MinScore: opts.MinScore}

	targets, err := j.features.FindWithZeroEvents(ctx, feature.StatusComplete)
	if err != nil {
		return nil, fmt.Errorf("finding features without events: %w", err)
	}
	report.Targets = len(targets)
	if len(targets) == 0 {
		return report, nil
	}

	collector := NewCollector(j.features, j.events)
	collector.CatchAll = opts.CatchAll
	collector.PerFeature = opts.PerFeature
	candidates, err := collector.Collect(ctx, targets)
	if err != nil {
		return nil, err
	}
	report.Candidates = len(candidates)

	assignments := Assigner{MinScore: opts.MinScore}.Assign(candidates, targets)
	report.Features = groupByFeature(targets, assignments)
	report.Total = len(assignments)

	outcome := NewExecutor(j.events, j.logger).ApplyAll(ctx, report.Ordered(), opts.DryRun)
	report.Linked = outcome.Linked
	report.Failed = outcome.Failed

	attrs := metric.WithAttributes(attribute.Bool("dry_run", opts.DryRun))
	if j.runs != nil {
		j.runs.Add(ctx, 1, attrs)
	}
	if j.assigned != nil {
		j.assigned.Add(ctx, int64(report.Total), attrs)
	}
	if j.failed != nil && len(outcome.Failed) > 0 {
		j.failed.Add(ctx, int64(len(outcome.Failed)), attrs)
	}
	if j.duration != nil {
		j.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	span.SetAttributes(
		attribute.Int("targets", report.Targets),
		attribute.Int("candidates", report.Candidates),
		attribute.Int("assigned", report.Total),
	)

	j.logger.Info("reattribution finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("targets", report.Targets),
		zap.Int("candidates", report.Candidates),
		zap.Int("assigned", report.Total),
		zap.Int("failed", len(outcome.Failed)))
	return report, nil
}
