package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

// Memory is an in-memory Store. Every read and write copies, so callers never
// share state with the store.
type Memory struct {
	mu          sync.RWMutex
	features    map[string]*feature.Feature
	transitions []feature.Transition
	events      map[string]*event.Event
	eventOrder  []string
	links       map[string]map[string]struct{} // event ID -> feature IDs
	sessions    map[string]*session.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		features: make(map[string]*feature.Feature),
		events:   make(map[string]*event.Event),
		links:    make(map[string]map[string]struct{}),
		sessions: make(map[string]*session.Session),
	}
}

// Features returns the feature repository.
func (m *Memory) Features() feature.Repository { return memFeatures{m} }

// Events returns the event repository.
func (m *Memory) Events() event.Repository { return memEvents{m} }

// Sessions returns the session repository.
func (m *Memory) Sessions() session.Repository { return memSessions{m} }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// linkedFeature returns the lowest linked feature ID. Caller holds the lock.
func (m *Memory) linkedFeature(eventID string) string {
	var out string
	for fid := range m.links[eventID] {
		if out == "" || fid < out {
			out = fid
		}
	}
	return out
}

func (m *Memory) eventCopy(id string) *event.Event {
	e := m.events[id].Clone()
	e.FeatureID = m.linkedFeature(id)
	return e
}

type memFeatures struct{ m *Memory }

func (r memFeatures) List(_ context.Context, projectDir string) ([]*feature.Feature, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*feature.Feature
	for _, f := range r.m.features {
		if f.ProjectDir == projectDir {
			out = append(out, f.Clone())
		}
	}
	sortFeatures(out)
	return out, nil
}

func (r memFeatures) Get(_ context.Context, id string) (*feature.Feature, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	f, ok := r.m.features[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", feature.ErrNotFound, id)
	}
	return f.Clone(), nil
}

func (r memFeatures) FindByStatus(_ context.Context, projectDir string, status feature.Status) ([]*feature.Feature, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*feature.Feature
	for _, f := range r.m.features {
		if f.Status != status {
			continue
		}
		if projectDir != "" && f.ProjectDir != projectDir {
			continue
		}
		out = append(out, f.Clone())
	}
	sortFeatures(out)
	return out, nil
}

func (r memFeatures) FindWithZeroEvents(_ context.Context, status feature.Status) ([]*feature.Feature, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	linked := make(map[string]bool)
	for _, fids := range r.m.links {
		for fid := range fids {
			linked[fid] = true
		}
	}

	var out []*feature.Feature
	for _, f := range r.m.features {
		if f.Status != status || linked[f.ID] {
			continue
		}
		if f.CreatedAt.IsZero() || f.CompletedAt == nil {
			continue
		}
		out = append(out, f.Clone())
	}
	sortByCompletedDesc(out)
	return out, nil
}

func (r memFeatures) Create(_ context.Context, f *feature.Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.features[f.ID]; exists {
		return fmt.Errorf("%w: %s", feature.ErrDuplicate, f.ID)
	}
	f.Version = 1
	r.m.features[f.ID] = f.Clone()
	return nil
}

func (r memFeatures) Update(_ context.Context, features []*feature.Feature, transitions ...feature.Transition) error {
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, f := range features {
		stored, ok := r.m.features[f.ID]
		if !ok {
			return fmt.Errorf("%w: %s", feature.ErrNotFound, f.ID)
		}
		if stored.Version != f.Version {
			return fmt.Errorf("%w: %s (have %d, stored %d)", feature.ErrVersionConflict, f.ID, f.Version, stored.Version)
		}
	}

	for _, f := range features {
		f.Version++
		r.m.features[f.ID] = f.Clone()
	}
	r.m.transitions = append(r.m.transitions, transitions...)
	return nil
}

func (r memFeatures) ReplaceProject(_ context.Context, projectDir string, features []*feature.Feature) error {
	for _, f := range features {
		if f.ProjectDir != projectDir {
			return fmt.Errorf("%w: feature %s belongs to %s", feature.ErrInvalidFeature, f.ID, f.ProjectDir)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	previous := make(map[string]int64)
	for id, f := range r.m.features {
		if f.ProjectDir == projectDir {
			previous[id] = f.Version
		}
	}
	for _, f := range features {
		if f.Version != 0 && previous[f.ID] != f.Version {
			return fmt.Errorf("%w: %s", feature.ErrVersionConflict, f.ID)
		}
	}
	for id := range previous {
		delete(r.m.features, id)
	}
	for _, f := range features {
		f.Version = previous[f.ID] + 1
		r.m.features[f.ID] = f.Clone()
	}
	return nil
}

func (r memFeatures) Projects(_ context.Context) ([]string, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, f := range r.m.features {
		seen[f.ProjectDir] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r memFeatures) Transitions(_ context.Context, limit int) ([]feature.Transition, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	out := make([]feature.Transition, 0, len(r.m.transitions))
	for i := len(r.m.transitions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.m.transitions[i])
	}
	return out, nil
}

type memEvents struct{ m *Memory }

func (r memEvents) Insert(_ context.Context, e *event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", event.ErrInvalidEvent)
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.events[e.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", event.ErrInvalidEvent, e.ID)
	}
	stored := e.Clone()
	stored.FeatureID = ""
	r.m.events[e.ID] = stored
	r.m.eventOrder = append(r.m.eventOrder, e.ID)
	if e.FeatureID != "" {
		r.m.links[e.ID] = map[string]struct{}{e.FeatureID: {}}
	}
	return nil
}

func (r memEvents) Get(_ context.Context, id string) (*event.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	if _, ok := r.m.events[id]; !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrNotFound, id)
	}
	return r.m.eventCopy(id), nil
}

func (r memEvents) FindInWindow(_ context.Context, start, end time.Time) ([]*event.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*event.Event
	for _, id := range r.m.eventOrder {
		e := r.m.events[id]
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		out = append(out, r.m.eventCopy(id))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (r memEvents) Link(_ context.Context, eventID, featureID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.events[eventID]; !ok {
		return false, fmt.Errorf("%w: %s", event.ErrNotFound, eventID)
	}
	if _, ok := r.m.features[featureID]; !ok {
		return false, fmt.Errorf("%w: %s", feature.ErrNotFound, featureID)
	}
	fids := r.m.links[eventID]
	if fids == nil {
		fids = make(map[string]struct{})
		r.m.links[eventID] = fids
	}
	if _, ok := fids[featureID]; ok {
		return false, nil
	}
	fids[featureID] = struct{}{}
	return true, nil
}

func (r memEvents) Unlink(_ context.Context, eventID, featureID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if fids := r.m.links[eventID]; fids != nil {
		delete(fids, featureID)
		if len(fids) == 0 {
			delete(r.m.links, eventID)
		}
	}
	return nil
}

func (r memEvents) CountByFeature(_ context.Context) (map[string]int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	out := make(map[string]int)
	for _, fids := range r.m.links {
		for fid := range fids {
			out[fid]++
		}
	}
	return out, nil
}

func (r memEvents) ReassignProject(_ context.Context, from, to string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	n := 0
	for _, e := range r.m.events {
		if e.ProjectDir == from {
			e.ProjectDir = to
			n++
		}
	}
	return n, nil
}

type memSessions struct{ m *Memory }

func (r memSessions) Start(_ context.Context, s *session.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	c := *s
	c.Status = session.StatusActive
	if existing, ok := r.m.sessions[s.ID]; ok && c.StartedAt.IsZero() {
		c.StartedAt = existing.StartedAt
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.StartedAt
	}
	r.m.sessions[s.ID] = &c
	return nil
}

func (r memSessions) Touch(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if s, ok := r.m.sessions[id]; ok && at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return nil
}

func (r memSessions) End(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	s.Status = session.StatusEnded
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return nil
}

func (r memSessions) EndStale(_ context.Context, cutoff time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	n := 0
	for _, s := range r.m.sessions {
		if s.Status == session.StatusActive && s.LastActivity.Before(cutoff) {
			s.Status = session.StatusEnded
			n++
		}
	}
	return n, nil
}

func (r memSessions) Sessions(_ context.Context) ([]*session.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	out := make([]*session.Session, 0, len(r.m.sessions))
	for _, s := range r.m.sessions {
		c := *s
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memSessions) CountActive(_ context.Context) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	n := 0
	for _, s := range r.m.sessions {
		if s.Status == session.StatusActive {
			n++
		}
	}
	return n, nil
}

func (r memSessions) ReassignProject(_ context.Context, from, to string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	n := 0
	for _, s := range r.m.sessions {
		if s.ProjectDir == from {
			s.ProjectDir = to
			n++
		}
	}
	return n, nil
}
