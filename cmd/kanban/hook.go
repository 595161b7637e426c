package main

import (
	"context"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/config"
	"github.com/fyrsmithlabs/agentkanban/internal/hooks"
	"github.com/fyrsmithlabs/agentkanban/internal/project"
	"github.com/fyrsmithlabs/agentkanban/internal/secrets"
	"github.com/fyrsmithlabs/agentkanban/internal/sink"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
)

// drainGrace is added to the sink timeout when flushing queued events.
const drainGrace = time.Second

func newHookCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hook [type]",
		Short: "Handle an agent hook notification from stdin",
		Long: `Reads the hook JSON document from stdin, records it and writes the
acknowledgment to stdout. The hook type comes from the argument, then
AGENTKANBAN_HOOK_TYPE, defaulting to PostToolUse.

Accepted types: PostToolUse, Stop, SubagentStop, UserPromptSubmit,
SessionStart, SessionEnd (or their kebab-case forms).

The command always exits 0 so the agent is never blocked.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: hookTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			env := hooks.OSEnv()
			env.MapProject = project.MainProject
			runHook(cmd.Context(), a.cfg, a.zapLogger(), arg, env, cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}
}

func hookTypeNames() []string {
	types := hooks.HookTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

// runHook processes one hook invocation. Every failure is logged; an
// acknowledgment is always attempted.
func runHook(ctx context.Context, cfg *config.Config, logger *zap.Logger, arg string, env hooks.Env, stdin io.Reader, stdout io.Writer) {
	hookType, err := env.HookType(arg)
	if err != nil {
		logger.Warn("unknown hook type", zap.String("hook", arg), zap.Error(err))
		_ = hooks.WriteAck(stdout, hooks.HookType(arg), "")
		return
	}

	db, err := openStore(cfg)
	if err != nil {
		logger.Error("opening store failed", zap.Error(err))
		_ = hooks.WriteAck(stdout, hookType, "")
		return
	}
	defer db.Close()

	out, closeSink := newHookSink(cfg, db, logger)
	defer closeSink()

	opts := []tracker.Option{
		tracker.WithLogger(logger.Named("tracker")),
		tracker.WithMetrics(tracker.NewMetrics(logger)),
	}
	if red := newRedactor(cfg, env.ProjectDir(nil), logger); red != nil {
		opts = append(opts, tracker.WithRedactor(red))
	}
	router := tracker.NewRouter(db.Features(), out, tracker.Config{
		SourceAgent: cfg.Tracker.SourceAgent,
		MaxRetries:  cfg.Tracker.MaxRetries,
	}, opts...)

	hookCfg := hooks.DefaultConfig()
	hookCfg.SkipMarker = cfg.Tracker.SkipMarker
	manager := hooks.NewHookManager(hookCfg, logger.Named("hooks"))
	hooks.RegisterTracker(manager, router)

	if err := manager.Run(ctx, hookType, stdin, stdout, env); err != nil {
		logger.Error("writing hook acknowledgment failed", zap.Error(err))
	}
}

// newHookSink builds the configured transport behind a bounded async queue.
// The returned func drains the queue and releases the transport.
func newHookSink(cfg *config.Config, db *store.SQLite, logger *zap.Logger) (sink.Sink, func()) {
	timeout := cfg.Sink.Timeout.Duration()

	var next sink.Sink
	var release func()
	switch cfg.Sink.Mode {
	case config.SinkDirect:
		next = sink.NewStore(db.Events(), db.Sessions(), logger.Named("sink"))
		// Without a daemon the hook broadcasts what it stored itself.
		if cfg.Sink.NATSURL != "" {
			if nc := connectNATS(cfg, logger); nc != nil {
				next = sink.Multi{next, sink.NewNATS(nc, sink.IngestedSubject(cfg.Sink.Subject))}
				release = closeNATS(nc, timeout, logger)
			}
		}
	case config.SinkNATS:
		nc := connectNATS(cfg, logger)
		if nc == nil {
			next = sink.Nop{}
			break
		}
		next = sink.NewNATS(nc, cfg.Sink.Subject)
		release = closeNATS(nc, timeout, logger)
	default:
		next = sink.NewHTTP(cfg.Sink.URL, timeout)
	}

	async := sink.NewAsync(next, cfg.Sink.QueueSize, timeout, logger.Named("sink"))
	return async, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout+drainGrace)
		defer cancel()
		if err := async.Close(ctx); err != nil {
			logger.Warn("draining event queue failed",
				zap.Int64("dropped", async.Dropped()),
				zap.Error(err))
		}
		if release != nil {
			release()
		}
	}
}

// connectNATS returns nil when the server cannot be reached.
func connectNATS(cfg *config.Config, logger *zap.Logger) *nats.Conn {
	nc, err := nats.Connect(cfg.Sink.NATSURL, nats.Name("kanban-hook"), nats.Timeout(cfg.Sink.Timeout.Duration()))
	if err != nil {
		logger.Warn("nats unavailable, dropping events", zap.String("url", cfg.Sink.NATSURL), zap.Error(err))
		return nil
	}
	return nc
}

func closeNATS(nc *nats.Conn, timeout time.Duration, logger *zap.Logger) func() {
	return func() {
		if err := nc.FlushTimeout(timeout); err != nil {
			logger.Warn("flushing nats failed", zap.Error(err))
		}
		nc.Close()
	}
}

// newRedactor returns nil when redaction is disabled or cannot be set up.
func newRedactor(cfg *config.Config, projectDir string, logger *zap.Logger) *secrets.Redactor {
	if !cfg.Secrets.IsEnabled() {
		return nil
	}
	userPath, err := config.ExpandPath(cfg.Secrets.Allowlist)
	if err != nil {
		logger.Warn("ignoring user allowlist", zap.Error(err))
		userPath = ""
	}
	allow, err := secrets.LoadAllowlists(projectDir, userPath)
	if err != nil {
		logger.Warn("ignoring secret allowlists", zap.Error(err))
		allow = nil
	}
	red, err := secrets.NewRedactor(allow, logger.Named("secrets"))
	if err != nil {
		logger.Warn("secret redaction disabled", zap.Error(err))
		return nil
	}
	return red
}
