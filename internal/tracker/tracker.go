// Package tracker drives the real-time side of feature attribution: it keeps
// exactly one feature active per project, evaluates completion rules after
// every tool call, and advances the queue when a feature completes.
package tracker

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// GetActive returns the first in-progress feature in list order, or nil.
func GetActive(features []*feature.Feature) *feature.Feature {
	for _, f := range features {
		if f.Status == feature.StatusInProgress {
			return f
		}
	}
	return nil
}

// ActivateNext moves the first pending feature in list order to in_progress
// and returns it. It returns nil when nothing is pending or when a feature is
// already in progress, so a project never has two active features.
func ActivateNext(features []*feature.Feature, now time.Time) *feature.Feature {
	if GetActive(features) != nil {
		return nil
	}
	for _, f := range features {
		if f.Status != feature.StatusPending {
			continue
		}
		if err := f.TransitionTo(feature.StatusInProgress, now); err != nil {
			continue
		}
		return f
	}
	return nil
}

// Complete moves f to complete and activates the next pending feature. It
// returns the transitions to record, in order.
func Complete(features []*feature.Feature, f *feature.Feature, now time.Time, by string) ([]feature.Transition, error) {
	if f.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is already complete", feature.ErrInvalidTransition, f.ID)
	}
	from := f.Status
	if err := f.TransitionTo(feature.StatusComplete, now); err != nil {
		return nil, err
	}
	transitions := []feature.Transition{{
		FeatureID: f.ID, From: from, To: feature.StatusComplete, At: now, By: by,
	}}
	if next := ActivateNext(features, now); next != nil {
		transitions = append(transitions, feature.Transition{
			FeatureID: next.ID, From: feature.StatusPending, To: feature.StatusInProgress, At: now, By: by,
		})
	}
	return transitions, nil
}

// changed returns the features whose status, work count or version differs
// from the snapshot taken before mutation.
func changed(features []*feature.Feature, before map[string]feature.Feature) []*feature.Feature {
	var out []*feature.Feature
	for _, f := range features {
		prev, ok := before[f.ID]
		if !ok || prev.Status != f.Status || prev.WorkCount != f.WorkCount {
			out = append(out, f)
		}
	}
	return out
}

func snapshot(features []*feature.Feature) map[string]feature.Feature {
	out := make(map[string]feature.Feature, len(features))
	for _, f := range features {
		out[f.ID] = *f
	}
	return out
}
