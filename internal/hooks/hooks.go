package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// HookType names an agent lifecycle hook.
type HookType string

const (
	// HookPostToolUse fires after every tool invocation.
	HookPostToolUse HookType = "PostToolUse"

	// HookStop fires when the agent finishes its turn.
	HookStop HookType = "Stop"

	// HookSubagentStop fires when a delegated task finishes.
	HookSubagentStop HookType = "SubagentStop"

	// HookUserPromptSubmit fires when the user submits a prompt.
	HookUserPromptSubmit HookType = "UserPromptSubmit"

	// HookSessionStart fires when a session starts or resumes.
	HookSessionStart HookType = "SessionStart"

	// HookSessionEnd fires when a session ends.
	HookSessionEnd HookType = "SessionEnd"
)

// ErrUnknownHookType is returned by ParseHookType.
var ErrUnknownHookType = errors.New("unknown hook type")

var hookAliases = map[string]HookType{
	"posttooluse":        HookPostToolUse,
	"post-tool-use":      HookPostToolUse,
	"stop":               HookStop,
	"subagentstop":       HookSubagentStop,
	"subagent-stop":      HookSubagentStop,
	"userpromptsubmit":   HookUserPromptSubmit,
	"user-prompt-submit": HookUserPromptSubmit,
	"sessionstart":       HookSessionStart,
	"session-start":      HookSessionStart,
	"sessionend":         HookSessionEnd,
	"session-end":        HookSessionEnd,
}

// ParseHookType accepts the canonical name or its kebab-case alias.
func ParseHookType(name string) (HookType, error) {
	if t, ok := hookAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownHookType, name)
}

// HookTypes lists every supported hook.
func HookTypes() []HookType {
	return []HookType{
		HookPostToolUse, HookStop, HookSubagentStop,
		HookUserPromptSubmit, HookSessionStart, HookSessionEnd,
	}
}

// Call is one hook invocation after environment resolution.
type Call struct {
	Type       HookType
	Input      *Input
	SessionID  string
	ProjectDir string
}

// HookHandler handles a hook call. The returned string is appended to the
// acknowledgment's additionalContext.
type HookHandler func(ctx context.Context, call *Call) (string, error)

// HookManager manages lifecycle hooks
type HookManager struct {
	config   *Config
	logger   *zap.Logger
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager
func NewHookManager(config *Config, logger *zap.Logger) *HookManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookManager{
		config:   config,
		logger:   logger,
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute runs the handlers for call.Type in registration order and joins
// their context output with blank lines. It stops at the first error.
func (h *HookManager) Execute(ctx context.Context, call *Call) (string, error) {
	var parts []string
	for _, handler := range h.handlers[call.Type] {
		out, err := handler(ctx, call)
		if err != nil {
			return strings.Join(parts, "\n\n"), fmt.Errorf("hook %s failed: %w", call.Type, err)
		}
		if out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Config returns the hook configuration
func (h *HookManager) Config() *Config {
	return h.config
}
