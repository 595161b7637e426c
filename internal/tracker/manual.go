package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// ByManual marks transitions made by an operator rather than a tool call.
const ByManual = "manual"

// ActivateNext starts the first pending feature of a project when nothing is
// in progress. It returns the active feature, which is the existing one when
// a feature was already in progress, or nil when nothing is pending.
func (r *Router) ActivateNext(ctx context.Context, projectDir string) (*feature.Feature, error) {
	var result *feature.Feature
	err := r.mutate(ctx, projectDir, func(features []*feature.Feature) ([]feature.Transition, error) {
		if active := GetActive(features); active != nil {
			result = active
			return nil, nil
		}
		next := ActivateNext(features, r.now())
		result = next
		if next == nil {
			return nil, nil
		}
		return []feature.Transition{{
			FeatureID: next.ID, From: feature.StatusPending, To: feature.StatusInProgress, At: r.now(), By: ByManual,
		}}, nil
	})
	return result, err
}

// CompleteFeature force-completes a feature, or the active one when id is
// empty, then activates the next pending feature.
func (r *Router) CompleteFeature(ctx context.Context, projectDir, id string) (completed, activated *feature.Feature, err error) {
	err = r.mutate(ctx, projectDir, func(features []*feature.Feature) ([]feature.Transition, error) {
		target := GetActive(features)
		if id != "" {
			target = findByID(features, id)
		}
		if target == nil {
			if id == "" {
				return nil, fmt.Errorf("%w: no active feature in %s", feature.ErrNotFound, projectDir)
			}
			return nil, fmt.Errorf("%w: %s", feature.ErrNotFound, id)
		}
		transitions, err := Complete(features, target, r.now(), ByManual)
		if err != nil {
			return nil, err
		}
		completed = target
		activated = nil
		if len(transitions) > 1 {
			activated = findByID(features, transitions[1].FeatureID)
		}
		return transitions, nil
	})
	return completed, activated, err
}

// mutate runs fn over a fresh read of the project's features and persists
// what changed, retrying on version conflicts.
func (r *Router) mutate(ctx context.Context, projectDir string, fn func([]*feature.Feature) ([]feature.Transition, error)) error {
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		features, err := r.features.List(ctx, projectDir)
		if err != nil {
			return fmt.Errorf("loading features: %w", err)
		}
		before := snapshot(features)
		transitions, err := fn(features)
		if err != nil {
			return err
		}
		dirty := changed(features, before)
		if len(dirty) == 0 {
			return nil
		}
		err = r.features.Update(ctx, dirty, transitions...)
		if errors.Is(err, feature.ErrVersionConflict) {
			r.metrics.recordConflict(ctx)
			continue
		}
		if err != nil {
			return fmt.Errorf("updating features: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRetriesExhausted, projectDir)
}
