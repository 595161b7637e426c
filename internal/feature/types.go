// Package feature defines features, the units of planned work that agent
// activity is attributed to, together with their lifecycle and completion
// rules.
package feature

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a feature.
type Status string

const (
	// StatusPending is queued work that has not started.
	StatusPending Status = "pending"

	// StatusInProgress is the single active feature of a project.
	StatusInProgress Status = "in_progress"

	// StatusComplete is finished work (terminal).
	StatusComplete Status = "complete"

	// StatusBlocked is work that cannot proceed.
	StatusBlocked Status = "blocked"
)

// DefaultCategory applies when a feature has no category.
const DefaultCategory = "functional"

// validTransitions defines allowed status changes.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusBlocked, StatusComplete},
	StatusInProgress: {StatusComplete, StatusPending, StatusBlocked},
	StatusBlocked:    {StatusPending, StatusInProgress},
	StatusComplete:   {},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo checks if a transition is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusComplete
}

// Feature is a unit of planned work.
type Feature struct {
	ID            string     `json:"id" yaml:"id"`
	ProjectDir    string     `json:"projectDir" yaml:"project_dir"`
	Position      int        `json:"position" yaml:"position"`
	Description   string     `json:"description" yaml:"description"`
	Category      string     `json:"category" yaml:"category"`
	Status        Status     `json:"status" yaml:"status"`
	Criteria      Criteria   `json:"completionCriteria" yaml:"completion_criteria"`
	WorkCount     int        `json:"workCount" yaml:"work_count"`
	Steps         []string   `json:"steps,omitempty" yaml:"steps,omitempty"`
	IsSessionWork bool       `json:"isSessionWork" yaml:"is_session_work"`
	CreatedAt     time.Time  `json:"createdAt" yaml:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" yaml:"updated_at"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`

	// Version is the optimistic-concurrency token maintained by repositories.
	Version int64 `json:"-" yaml:"-"`
}

// IDFor returns the canonical feature ID for the item at index in a project's
// feature list.
func IDFor(projectDir string, index int) string {
	return fmt.Sprintf("%s:%d", projectDir, index)
}

// Validate checks required fields.
func (f *Feature) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidFeature)
	}
	if f.ProjectDir == "" {
		return fmt.Errorf("%w: project dir is required", ErrInvalidFeature)
	}
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidFeature)
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFeature, f.Status)
	}
	if f.WorkCount < 0 {
		return fmt.Errorf("%w: work count must be non-negative", ErrInvalidFeature)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields.
func (f *Feature) ApplyDefaults(now time.Time) {
	if f.Category == "" {
		f.Category = DefaultCategory
	}
	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.Criteria.Kind == "" {
		f.Criteria = Manual()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}
}

// Clone returns a deep copy.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	c := *f
	if f.Steps != nil {
		c.Steps = append([]string(nil), f.Steps...)
	}
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// TransitionTo moves the feature to target, stamping CompletedAt when it
// completes.
func (f *Feature) TransitionTo(target Status, now time.Time) error {
	if f.Status == target {
		return nil
	}
	if !f.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, target)
	}
	f.Status = target
	f.UpdatedAt = now
	if target == StatusComplete {
		t := now
		f.CompletedAt = &t
	}
	return nil
}

// Transition records a status change for the audit log.
type Transition struct {
	FeatureID string    `json:"featureId"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
	By        string    `json:"by"`
}

// Stats summarizes feature progress.
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"inProgress"`
	Percentage     float64 `json:"percentage"`
	ActiveSessions int     `json:"activeSessions"`
}

// Summarize computes progress over a feature list.
func Summarize(features []*Feature) Stats {
	var s Stats
	for _, f := range features {
		s.Total++
		switch f.Status {
		case StatusComplete:
			s.Completed++
		case StatusInProgress:
			s.InProgress++
		}
	}
	if s.Total > 0 {
		s.Percentage = float64(s.Completed) * 100 / float64(s.Total)
	}
	return s
}
