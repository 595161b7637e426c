package hooks

import (
	"context"

	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
)

// RegisterTracker routes every hook type to the tracker.
func RegisterTracker(h *HookManager, r *tracker.Router) {
	skip := h.config.SkipMarker

	h.RegisterHandler(HookPostToolUse, func(ctx context.Context, c *Call) (string, error) {
		if c.Input.ContainsMarker(skip) {
			return "", nil
		}
		name := c.Input.ToolName
		if name == "" {
			name = "unknown"
		}
		outcome := c.Input.Outcome()
		_, err := r.HandleToolUse(ctx, scope(c), tracker.ToolCall{
			Name:    name,
			Input:   c.Input.ToolInput,
			IsError: outcome.IsError,
			Output:  outcome.Output,
		})
		return "", err
	})

	h.RegisterHandler(HookStop, func(ctx context.Context, c *Call) (string, error) {
		stop := c.Input.StopHookInput
		r.HandleStop(ctx, scope(c), stop.StopReason, stop.LastAssistantMessage)
		return "", nil
	})

	h.RegisterHandler(HookSubagentStop, func(ctx context.Context, c *Call) (string, error) {
		outcome := c.Input.Outcome()
		r.HandleSubagentStop(ctx, scope(c), tracker.Subagent{
			Description: c.Input.ToolInputField("description"),
			Type:        c.Input.ToolInputField("subagent_type"),
			IsError:     outcome.IsError,
			Output:      outcome.Output,
		})
		return "", nil
	})

	h.RegisterHandler(HookUserPromptSubmit, func(ctx context.Context, c *Call) (string, error) {
		r.HandleUserQuery(ctx, scope(c), c.Input.PromptText())
		return "", nil
	})

	h.RegisterHandler(HookSessionStart, func(ctx context.Context, c *Call) (string, error) {
		return r.HandleSessionStart(ctx, scope(c)), nil
	})

	h.RegisterHandler(HookSessionEnd, func(ctx context.Context, c *Call) (string, error) {
		r.HandleSessionEnd(ctx, scope(c))
		return "", nil
	})
}

func scope(c *Call) tracker.Scope {
	return tracker.Scope{SessionID: c.SessionID, ProjectDir: c.ProjectDir}
}
