package hooks

import (
	"encoding/json"
	"io"
)

// Ack is the acknowledgment written to stdout.
type Ack struct {
	HookSpecificOutput AckOutput `json:"hookSpecificOutput"`
}

// AckOutput names the hook and optionally injects context into the session.
type AckOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// WriteAck writes the acknowledgment for hookType as a single JSON line.
// Only SessionStart carries additional context.
func WriteAck(w io.Writer, hookType HookType, additionalContext string) error {
	ack := Ack{HookSpecificOutput: AckOutput{HookEventName: string(hookType)}}
	if hookType == HookSessionStart {
		ack.HookSpecificOutput.AdditionalContext = additionalContext
	}
	return json.NewEncoder(w).Encode(ack)
}
