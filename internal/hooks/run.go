package hooks

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// Run handles one hook invocation end to end: it reads stdin, resolves the
// session and project, dispatches, and writes the acknowledgment. Unreadable
// input is logged and the handler runs with an empty input, so the session
// and project still come from the environment. Handler errors are logged;
// only a failure to write the acknowledgment is returned.
func (h *HookManager) Run(ctx context.Context, hookType HookType, stdin io.Reader, stdout io.Writer, env Env) error {
	in, err := ReadInput(stdin, h.config.MaxInputBytes)
	if err != nil {
		h.logger.Warn("unreadable hook input, using defaults", zap.String("hook", string(hookType)), zap.Error(err))
		in = &Input{}
	}

	call := &Call{
		Type:       hookType,
		Input:      in,
		SessionID:  env.SessionID(in),
		ProjectDir: env.ProjectDir(in),
	}
	additional, err := h.Execute(ctx, call)
	if err != nil {
		h.logger.Warn("hook handler failed",
			zap.String("hook", string(hookType)),
			zap.String("session_id", call.SessionID),
			zap.String("project_dir", call.ProjectDir),
			zap.Error(err))
	}
	return WriteAck(stdout, hookType, additional)
}
