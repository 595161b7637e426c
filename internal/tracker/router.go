package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// DefaultMaxRetries bounds read-modify-write attempts on version conflicts.
const DefaultMaxRetries = 5

// ErrRetriesExhausted indicates every update attempt hit a version conflict.
var ErrRetriesExhausted = errors.New("feature update retries exhausted")

// Sink receives emitted events. Implementations must not block for long;
// delivery failures are reported but never retried by the router.
type Sink interface {
	Send(ctx context.Context, env event.Envelope) error
}

// Config configures a Router.
type Config struct {
	// SourceAgent is stamped on every emitted event.
	SourceAgent string

	// MaxRetries bounds update attempts after a version conflict.
	MaxRetries int
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRedactor scrubs payload previews before emission.
func WithRedactor(red Redactor) Option {
	return func(r *Router) {
		if red != nil {
			r.redactor = red
		}
	}
}

// WithMetrics sets the tracker instruments.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracer sets the tracer used for router spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router turns hook notifications into events and drives feature
// auto-completion.
type Router struct {
	features feature.Repository
	sink     Sink
	cfg      Config
	redactor Redactor
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewRouter creates a router over a feature repository and an event sink.
func NewRouter(features feature.Repository, sink Sink, cfg Config, opts ...Option) *Router {
	if cfg.SourceAgent == "" {
		cfg.SourceAgent = event.DefaultSourceAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	r := &Router{
		features: features,
		sink:     sink,
		cfg:      cfg,
		redactor: nopRedactor{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scope identifies where a hook notification came from.
type Scope struct {
	SessionID  string
	ProjectDir string
}

// ToolResult reports what routing a tool call did.
type ToolResult struct {
	// Event is the emitted ToolCall event.
	Event event.Envelope

	// FeatureID is the feature the call was attributed to, if any.
	FeatureID string

	// Outcome is the evaluator result for the attributed feature.
	Outcome Outcome

	// Completed is the emitted FeatureCompleted event, if any.
	Completed *event.Envelope

	// Activated is the feature that became active after completion.
	Activated *feature.Feature
}

// HandleToolUse records a tool call against the active feature, then counts
// work and evaluates the completion rule. The ToolCall event is emitted
// before any feature mutation so it carries the feature the call was made
// under.
func (r *Router) HandleToolUse(ctx context.Context, scope Scope, call ToolCall) (*ToolResult, error) {
	ctx, span := r.tracer.Start(ctx, "tracker.HandleToolUse",
		trace.WithAttributes(
			attribute.String("tool", call.Name),
			attribute.String("project_dir", scope.ProjectDir),
		))
	defer span.End()

	r.metrics.recordToolCall(ctx, call.Name)

	features, err := r.features.List(ctx, scope.ProjectDir)
	if err != nil {
		r.logger.Warn("loading features failed; event will be unattributed",
			zap.String("project_dir", scope.ProjectDir), zap.Error(err))
		features = nil
	}
	active := GetActive(features)

	payload := ToolPayload(call, r.redactor)
	env := r.envelope(scope, event.TypeToolCall, call.Name, payload)
	if active != nil {
		env.FeatureID = active.ID
		payload["featureCategory"] = active.Category
		payload["featureDescription"] = active.Description
	}
	r.emit(ctx, env)

	res := &ToolResult{Event: env}
	if active == nil {
		return res, nil
	}
	res.FeatureID = active.ID

	applied, err := r.applyToolCall(ctx, scope.ProjectDir, active, features, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if applied == nil {
		return res, nil
	}
	res.Outcome = applied.outcome
	res.Activated = applied.activated
	if applied.outcome.Counted {
		r.metrics.recordWork(ctx, call.Name)
	}

	if applied.outcome.Satisfied {
		r.metrics.recordCompletion(ctx, string(applied.criteria))
		completed := r.envelope(scope, event.TypeFeatureCompleted, "", map[string]any{
			"completionStatus":   applied.outcome.Status(),
			"triggeredBy":        call.Name,
			"featureDescription": active.Description,
		})
		completed.FeatureID = active.ID
		r.emit(ctx, completed)
		res.Completed = &completed

		r.logger.Info("feature auto-completed",
			zap.String("feature_id", active.ID),
			zap.String("status", applied.outcome.Status()))
	}
	return res, nil
}

type applied struct {
	outcome   Outcome
	criteria  feature.CriteriaKind
	activated *feature.Feature
}

// applyToolCall runs the read-modify-write cycle against the feature the
// call was attributed to. On a version conflict the project is re-read and
// the call is reapplied, unless that feature is no longer in progress.
func (r *Router) applyToolCall(ctx context.Context, projectDir string, attributed *feature.Feature, features []*feature.Feature, call ToolCall) (*applied, error) {
	target := attributed
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.recordConflict(ctx)
			var err error
			features, err = r.features.List(ctx, projectDir)
			if err != nil {
				return nil, fmt.Errorf("reloading features: %w", err)
			}
			target = findByID(features, attributed.ID)
			if target == nil || target.Status != feature.StatusInProgress {
				r.logger.Debug("attributed feature no longer active; skipping",
					zap.String("feature_id", attributed.ID))
				return nil, nil
			}
		}

		before := snapshot(features)
		outcome := Accumulate(target, call)
		if !outcome.Counted && !outcome.Satisfied {
			return &applied{outcome: outcome}, nil
		}

		var transitions []feature.Transition
		var activated *feature.Feature
		if outcome.Satisfied {
			var err error
			transitions, err = Complete(features, target, r.now(), call.Name)
			if err != nil {
				return nil, err
			}
			activated = GetActive(features)
		} else {
			target.UpdatedAt = r.now()
		}

		err := r.features.Update(ctx, changed(features, before), transitions...)
		if errors.Is(err, feature.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("updating features: %w", err)
		}
		return &applied{outcome: outcome, criteria: target.Criteria.Type(), activated: activated}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRetriesExhausted, attributed.ID)
}

// HandleStop records the agent finishing its turn.
func (r *Router) HandleStop(ctx context.Context, scope Scope, reason, lastMessage string) event.Envelope {
	if reason == "" {
		reason = "unknown"
	}
	env := r.envelope(scope, event.TypeAgentStop, "", map[string]any{
		"reason":      reason,
		"lastMessage": r.redactor.Redact(truncate(lastMessage, lastMessageLen)),
	})
	r.emit(ctx, env)
	return env
}

// Subagent describes a finished Task delegation.
type Subagent struct {
	Description string
	Type        string
	IsError     bool
	Output      string
}

// HandleSubagentStop records a delegated task finishing.
func (r *Router) HandleSubagentStop(ctx context.Context, scope Scope, sub Subagent) event.Envelope {
	payload := map[string]any{
		"taskDescription": sub.Description,
		"subagentType":    sub.Type,
		"success":         !sub.IsError,
		"resultSummary":   r.redactor.Redact(truncate(sub.Output, resultSummaryLen)),
	}
	env := r.envelope(scope, event.TypeSubagentStop, ToolTask, payload)
	r.attributeToActive(ctx, scope, &env)
	r.emit(ctx, env)
	return env
}

// HandleUserQuery records a prompt submitted by the user.
func (r *Router) HandleUserQuery(ctx context.Context, scope Scope, prompt string) event.Envelope {
	prompt = r.redactor.Redact(prompt)
	env := r.envelope(scope, event.TypeUserQuery, "", map[string]any{
		"prompt":       truncate(prompt, promptLen),
		"promptLength": len([]rune(prompt)),
		"preview":      truncate(prompt, promptPreviewLen),
	})
	r.attributeToActive(ctx, scope, &env)
	r.emit(ctx, env)
	return env
}

func (r *Router) attributeToActive(ctx context.Context, scope Scope, env *event.Envelope) {
	features, err := r.features.List(ctx, scope.ProjectDir)
	if err != nil {
		r.logger.Warn("loading features failed", zap.String("project_dir", scope.ProjectDir), zap.Error(err))
		return
	}
	if active := GetActive(features); active != nil {
		env.FeatureID = active.ID
		env.Payload["featureDescription"] = active.Description
	}
}

func (r *Router) envelope(scope Scope, t event.Type, toolName string, payload map[string]any) event.Envelope {
	return event.Envelope{
		EventType:   t,
		SourceAgent: r.cfg.SourceAgent,
		SessionID:   scope.SessionID,
		ProjectDir:  scope.ProjectDir,
		ToolName:    toolName,
		Payload:     payload,
	}
}

// emit sends env to the sink. Failures are logged and dropped.
func (r *Router) emit(ctx context.Context, env event.Envelope) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Send(ctx, env); err != nil {
		r.metrics.recordEmitError(ctx, string(env.EventType))
		r.logger.Debug("event dropped",
			zap.String("event_type", string(env.EventType)),
			zap.Error(err))
	}
}

func findByID(features []*feature.Feature, id string) *feature.Feature {
	for _, f := range features {
		if f.ID == id {
			return f
		}
	}
	return nil
}
