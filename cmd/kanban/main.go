// Package main implements the kanban CLI: the agent hook entry point plus
// feature, reattribution and diagnostic commands over the local store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/config"
	"github.com/fyrsmithlabs/agentkanban/internal/logging"
	"github.com/fyrsmithlabs/agentkanban/internal/project"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kanban: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kanban",
		Short: "Feature tracking for coding agents",
		Long: `kanban attributes coding-agent activity to the features of a project's
feature list and completes features automatically as work lands.

Run "kanban hook <type>" from agent hooks; the other commands inspect and
adjust the local store.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/agentkanban/config.yaml)")

	root.AddCommand(
		newHookCmd(a),
		newReattributeCmd(a),
		newFeaturesCmd(a),
		newStatusCmd(a),
		newMigrateCmd(a),
		newMCPCmd(a),
	)
	return root
}

// init loads configuration and builds the logger. Logs always go to stderr:
// stdout carries hook acknowledgments, MCP frames and command output.
func (a *app) init(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadWithFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		if cmd.Name() != "hook" {
			return err
		}
		// Hooks must not fail the agent; run with defaults instead.
		fmt.Fprintf(os.Stderr, "kanban: %v; using defaults\n", err)
		a.cfg = config.Default()
	}

	settings := a.cfg.Logging
	settings.Output = logging.StreamStderr
	a.logger, err = newLogger(settings)
	if err != nil {
		if cmd.Name() != "hook" {
			return err
		}
		fmt.Fprintf(os.Stderr, "kanban: %v; logging disabled\n", err)
		a.logger = logging.Nop()
	}
	return nil
}

func newLogger(settings config.LoggingConfig) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(settings)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func (a *app) zapLogger() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger.Underlying()
}

// openStore opens the configured SQLite store.
func (a *app) openStore() (*store.SQLite, error) {
	return openStore(a.cfg)
}

func openStore(cfg *config.Config) (*store.SQLite, error) {
	path, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	return db, nil
}

// resolveProject maps dir, or the working directory, to its main project.
func resolveProject(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}
	return project.MainProject(dir), nil
}
