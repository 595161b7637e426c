// Package event defines the recorded occurrences (tool calls, stops, feature
// completions, user queries) that are attributed to features.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the requested event does not exist.
	ErrNotFound = errors.New("event not found")

	// ErrInvalidEvent indicates an event failed validation.
	ErrInvalidEvent = errors.New("invalid event")
)

// Type identifies what an event records.
type Type string

const (
	TypeToolCall         Type = "ToolCall"
	TypeFeatureCompleted Type = "FeatureCompleted"
	TypeAgentStop        Type = "AgentStop"
	TypeSubagentStop     Type = "SubagentStop"
	TypeUserQuery        Type = "UserQuery"
	TypeSessionStart     Type = "SessionStart"
	TypeSessionEnd       Type = "SessionEnd"
)

// DefaultSourceAgent names the agent integration that produces events.
const DefaultSourceAgent = "claude-code"

// Event is one recorded occurrence. Events are immutable once stored except
// for their feature link.
type Event struct {
	ID          string
	Type        Type
	SourceAgent string
	SessionID   string
	ProjectDir  string
	ToolName    string
	Summary     string
	Payload     map[string]any
	Timestamp   time.Time

	// FeatureID is the linked feature, empty when unlinked.
	FeatureID string
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}
	if e.ProjectDir == "" {
		return fmt.Errorf("%w: project dir is required", ErrInvalidEvent)
	}
	return nil
}

// Clone returns a copy with its own top-level payload map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// PayloadString renders the payload as compact JSON for keyword matching.
func (e *Event) PayloadString() string {
	if len(e.Payload) == 0 {
		return ""
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Sprint(e.Payload)
	}
	return string(data)
}

// Text concatenates tool name, summary and payload for attribution scoring.
func (e *Event) Text() string {
	return e.ToolName + " " + e.Summary + " " + e.PayloadString()
}

// Envelope is the wire shape of an event posted to a sink.
type Envelope struct {
	EventType   Type           `json:"eventType"`
	SourceAgent string         `json:"sourceAgent"`
	SessionID   string         `json:"sessionId"`
	ProjectDir  string         `json:"projectDir"`
	ToolName    string         `json:"toolName,omitempty"`
	FeatureID   string         `json:"featureId,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// Envelope returns the wire form of e.
func (e *Event) Envelope() Envelope {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		EventType:   e.Type,
		SourceAgent: e.SourceAgent,
		SessionID:   e.SessionID,
		ProjectDir:  e.ProjectDir,
		ToolName:    e.ToolName,
		FeatureID:   e.FeatureID,
		Payload:     payload,
	}
}

// FromEnvelope builds an event from its wire form. The summary is taken from
// the payload's inputSummary when present.
func FromEnvelope(env Envelope, id string, at time.Time) *Event {
	e := &Event{
		ID:          id,
		Type:        env.EventType,
		SourceAgent: env.SourceAgent,
		SessionID:   env.SessionID,
		ProjectDir:  env.ProjectDir,
		ToolName:    env.ToolName,
		FeatureID:   env.FeatureID,
		Payload:     env.Payload,
		Timestamp:   at,
	}
	if e.SourceAgent == "" {
		e.SourceAgent = DefaultSourceAgent
	}
	if s, ok := env.Payload["inputSummary"].(string); ok {
		e.Summary = s
	}
	return e
}

// Repository persists events and their feature links.
type Repository interface {
	// Insert stores a new event. A non-empty FeatureID is linked.
	Insert(ctx context.Context, e *Event) error

	// Get returns one event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// FindInWindow returns events with start <= timestamp <= end ordered by
	// timestamp.
	FindInWindow(ctx context.Context, start, end time.Time) ([]*Event, error)

	// Link idempotently links an event to a feature and reports whether a
	// new link was created.
	Link(ctx context.Context, eventID, featureID string) (bool, error)

	// Unlink removes the link between an event and a feature if present.
	Unlink(ctx context.Context, eventID, featureID string) error

	// CountByFeature returns the number of events linked to each feature.
	CountByFeature(ctx context.Context) (map[string]int, error)

	// ReassignProject moves events recorded under one project dir to another.
	ReassignProject(ctx context.Context, from, to string) (int, error)
}
