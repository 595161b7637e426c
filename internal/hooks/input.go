package hooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInputTooLarge is returned when stdin exceeds the configured cap.
var ErrInputTooLarge = errors.New("hook input too large")

// Input is the JSON document an agent writes to a hook's stdin. Only the
// fields used by the tracker are decoded.
type Input struct {
	SessionID     string         `json:"session_id"`
	HookEventName string         `json:"hook_event_name"`
	Cwd           string         `json:"cwd"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`

	// ToolResult and ToolResponse carry the same information under the old
	// and new field names.
	ToolResult   json.RawMessage `json:"tool_result"`
	ToolResponse json.RawMessage `json:"tool_response"`

	StopHookInput StopInput `json:"stop_hook_input"`

	UserPrompt string `json:"user_prompt"`
	Prompt     string `json:"prompt"`
	Message    string `json:"message"`
}

// StopInput is the nested payload of a Stop hook.
type StopInput struct {
	StopReason           string `json:"stop_reason"`
	LastAssistantMessage string `json:"last_assistant_message"`
}

// ToolOutcome is the decoded tool result.
type ToolOutcome struct {
	IsError bool
	Output  string
}

// ReadInput decodes one hook document from r. Documents larger than limit
// are rejected without decoding.
func ReadInput(r io.Reader, limit int64) (*Input, error) {
	if limit <= 0 {
		limit = DefaultMaxInputBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading hook input: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrInputTooLarge, limit)
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing hook input: %w", err)
	}
	return &in, nil
}

// Outcome decodes the tool result. A missing result is a success with no
// output; a bare string result is taken as the output.
func (in *Input) Outcome() ToolOutcome {
	raw := in.ToolResult
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = in.ToolResponse
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ToolOutcome{}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return ToolOutcome{Output: text}
	}

	var obj struct {
		IsError bool   `json:"is_error"`
		Output  any    `json:"output"`
		Stdout  string `json:"stdout"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ToolOutcome{}
	}
	out := ToolOutcome{IsError: obj.IsError, Output: obj.Stdout}
	switch v := obj.Output.(type) {
	case nil:
	case string:
		out.Output = v
	default:
		if b, err := json.Marshal(v); err == nil {
			out.Output = string(b)
		}
	}
	return out
}

// PromptText returns the submitted prompt under whichever field carried it.
func (in *Input) PromptText() string {
	for _, s := range []string{in.UserPrompt, in.Prompt, in.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ToolInputString renders tool_input as compact JSON.
func (in *Input) ToolInputString() string {
	if len(in.ToolInput) == 0 {
		return ""
	}
	b, err := json.Marshal(in.ToolInput)
	if err != nil {
		return ""
	}
	return string(b)
}

// ContainsMarker reports whether tool_input mentions marker.
func (in *Input) ContainsMarker(marker string) bool {
	return marker != "" && strings.Contains(in.ToolInputString(), marker)
}

// FilePath returns tool_input.file_path, if any.
func (in *Input) FilePath() string {
	s, _ := in.ToolInput["file_path"].(string)
	return s
}

// ToolInputField returns a string field of tool_input.
func (in *Input) ToolInputField(key string) string {
	s, _ := in.ToolInput[key].(string)
	return s
}
