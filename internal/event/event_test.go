package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_JSON(t *testing.T) {
	e := &Event{
		Type:        TypeToolCall,
		SourceAgent: DefaultSourceAgent,
		SessionID:   "s1",
		ProjectDir:  "/repo",
		ToolName:    "Edit",
		FeatureID:   "/repo:0",
		Payload:     map[string]any{"inputSummary": "Edit: a.go"},
	}

	data, err := json.Marshal(e.Envelope())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eventType":"ToolCall","sourceAgent":"claude-code","sessionId":"s1",
		"projectDir":"/repo","toolName":"Edit","featureId":"/repo:0",
		"payload":{"inputSummary":"Edit: a.go"}}`, string(data))
}

func TestEnvelope_OmitsOptionalFields(t *testing.T) {
	e := &Event{Type: TypeAgentStop, SourceAgent: "x", SessionID: "s", ProjectDir: "/p"}

	data, err := json.Marshal(e.Envelope())
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventType":"AgentStop","sourceAgent":"x","sessionId":"s","projectDir":"/p","payload":{}}`, string(data))
}

func TestFromEnvelope(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	env := Envelope{
		EventType:  TypeToolCall,
		SessionID:  "s",
		ProjectDir: "/p",
		ToolName:   "Bash",
		Payload:    map[string]any{"inputSummary": "Bash: go test ./..."},
	}

	e := FromEnvelope(env, "id-1", at)
	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, DefaultSourceAgent, e.SourceAgent)
	assert.Equal(t, "Bash: go test ./...", e.Summary)
	assert.Equal(t, at, e.Timestamp)
	require.NoError(t, e.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		e    Event
	}{
		{"no type", Event{SessionID: "s", ProjectDir: "/p"}},
		{"no session", Event{Type: TypeUserQuery, ProjectDir: "/p"}},
		{"no project", Event{Type: TypeUserQuery, SessionID: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.e.Validate(), ErrInvalidEvent)
		})
	}
}

func TestText(t *testing.T) {
	e := &Event{ToolName: "Edit", Summary: "Edit: billing.go", Payload: map[string]any{"filePath": "billing.go"}}
	assert.Equal(t, `Edit Edit: billing.go {"filePath":"billing.go"}`, e.Text())

	empty := &Event{}
	assert.Equal(t, "  ", empty.Text())
}

func TestClone(t *testing.T) {
	e := &Event{ID: "1", Payload: map[string]any{"a": 1}}
	c := e.Clone()
	c.Payload["a"] = 2
	assert.Equal(t, 1, e.Payload["a"])
}
