package reattribution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
)

// Executor applies assignments as link mutations.
type Executor struct {
	events event.Repository
	logger *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(events event.Repository, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{events: events, logger: logger}
}

// Apply moves the event's link to the assigned feature. In dry-run mode
// nothing is written. It reports whether a new link was created.
func (x *Executor) Apply(ctx context.Context, a Assignment, dryRun bool) (bool, error) {
	if dryRun {
		return false, nil
	}
	if a.PreviousFeatureID != "" && a.PreviousFeatureID != a.Feature.ID {
		if err := x.events.Unlink(ctx, a.Event.ID, a.PreviousFeatureID); err != nil {
			return false, fmt.Errorf("unlinking event %s from %s: %w", a.Event.ID, a.PreviousFeatureID, err)
		}
	}
	created, err := x.events.Link(ctx, a.Event.ID, a.Feature.ID)
	if err != nil {
		return false, fmt.Errorf("linking event %s to %s: %w", a.Event.ID, a.Feature.ID, err)
	}
	return created, nil
}

// Failure records one assignment that could not be applied.
type Failure struct {
	EventID   string
	FeatureID string
	Err       error
}

// Outcome totals a batch.
type Outcome struct {
	Applied int
	Linked  int
	Failed  []Failure
}

// ApplyAll applies every assignment. A failed assignment is logged and
// recorded; the batch continues.
func (x *Executor) ApplyAll(ctx context.Context, assignments []Assignment, dryRun bool) Outcome {
	var out Outcome
	for _, a := range assignments {
		created, err := x.Apply(ctx, a, dryRun)
		if err != nil {
			x.logger.Warn("reattribution failed",
				zap.String("event_id", a.Event.ID),
				zap.String("feature_id", a.Feature.ID),
				zap.Error(err))
			out.Failed = append(out.Failed, Failure{EventID: a.Event.ID, FeatureID: a.Feature.ID, Err: err})
			continue
		}
		out.Applied++
		if created {
			out.Linked++
		}
	}
	return out
}
