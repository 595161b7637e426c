// Package reattribution repairs event attribution after the fact. Completed
// features that ended up with no linked events are matched against the
// unlinked or loosely linked events recorded while they were open, and each
// event is moved to the feature whose description it overlaps most.
package reattribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// Window is a closed time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether start <= t <= end. A zero t is never contained.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// FeatureWindow returns [createdAt, completedAt] of f. It reports false when
// f has not completed.
func FeatureWindow(f *feature.Feature) (Window, bool) {
	if f.CompletedAt == nil || f.CreatedAt.IsZero() {
		return Window{}, false
	}
	return Window{Start: f.CreatedAt, End: *f.CompletedAt}, true
}

// UnionWindow spans the earliest creation to the latest completion across
// features. It reports false when no feature has a window.
func UnionWindow(features []*feature.Feature) (Window, bool) {
	var out Window
	found := false
	for _, f := range features {
		w, ok := FeatureWindow(f)
		if !ok {
			continue
		}
		if !found || w.Start.Before(out.Start) {
			out.Start = w.Start
		}
		if !found || w.End.After(out.End) {
			out.End = w.End
		}
		found = true
	}
	return out, found
}

// Candidate is an event eligible to be moved.
type Candidate struct {
	Event *event.Event

	// CurrentFeatureID is the feature the event is linked to now, if any.
	CurrentFeatureID string

	// CurrentFeatureDescription describes the current feature, if known.
	CurrentFeatureDescription string
}

// Collector gathers candidate events for a set of target features.
type Collector struct {
	features feature.Repository
	events   event.Repository

	// CatchAll, when set, marks features whose description contains it as
	// generic holders whose events may be reclaimed.
	CatchAll string

	// PerFeature fetches each target's window separately instead of the
	// union window.
	PerFeature bool
}

// NewCollector creates a collector.
func NewCollector(features feature.Repository, events event.Repository) *Collector {
	return &Collector{features: features, events: events}
}

// Collect returns the candidate events inside the targets' time windows,
// ordered by timestamp. Events already linked to a specific feature are
// never returned.
func (c *Collector) Collect(ctx context.Context, targets []*feature.Feature) ([]Candidate, error) {
	var windows []Window
	if c.PerFeature {
		for _, f := range targets {
			if w, ok := FeatureWindow(f); ok {
				windows = append(windows, w)
			}
		}
	} else if w, ok := UnionWindow(targets); ok {
		windows = append(windows, w)
	}

	seen := make(map[string]bool)
	var found []*event.Event
	for _, w := range windows {
		events, err := c.events.FindInWindow(ctx, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("fetching events in window: %w", err)
		}
		for _, e := range events {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			found = append(found, e)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Timestamp.Before(found[j].Timestamp)
	})

	cache := make(map[string]*feature.Feature)
	var out []Candidate
	for _, e := range found {
		cand, ok, err := c.classify(ctx, e, cache)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

// classify decides whether e may be reattributed.
func (c *Collector) classify(ctx context.Context, e *event.Event, cache map[string]*feature.Feature) (Candidate, bool, error) {
	cand := Candidate{Event: e}
	if e.FeatureID == "" {
		return cand, true, nil
	}

	current, ok := cache[e.FeatureID]
	if !ok {
		var err error
		current, err = c.features.Get(ctx, e.FeatureID)
		if errors.Is(err, feature.ErrNotFound) {
			current = nil
		} else if err != nil {
			return cand, false, fmt.Errorf("loading linked feature %s: %w", e.FeatureID, err)
		}
		cache[e.FeatureID] = current
	}

	// A link to a deleted feature attributes nothing.
	if current == nil {
		cand.CurrentFeatureID = e.FeatureID
		return cand, true, nil
	}

	cand.CurrentFeatureID = current.ID
	cand.CurrentFeatureDescription = current.Description
	if current.IsSessionWork {
		return cand, true, nil
	}
	if c.CatchAll != "" && strings.Contains(current.Description, c.CatchAll) {
		return cand, true, nil
	}
	return cand, false, nil
}
