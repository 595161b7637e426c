package project

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

// Migration reports what moved from one worktree directory.
type Migration struct {
	From     string
	Sessions int
	Events   int
}

// MigrationResult totals a worktree migration.
type MigrationResult struct {
	Main       string
	Migrations []Migration
}

// Totals sums the moved sessions and events.
func (r *MigrationResult) Totals() (sessions, events int) {
	for _, m := range r.Migrations {
		sessions += m.Sessions
		events += m.Events
	}
	return sessions, events
}

// Migrator reattributes activity recorded under worktree directories.
type Migrator struct {
	sessions session.Repository
	events   event.Repository
	logger   *zap.Logger

	// isWorktree is replaceable in tests.
	isWorktree func(string) bool
}

// NewMigrator creates a migrator.
func NewMigrator(sessions session.Repository, events event.Repository, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		sessions:   sessions,
		events:     events,
		logger:     logger,
		isWorktree: IsWorktreePath,
	}
}

// Worktrees lists the distinct worktree project dirs that sessions were
// recorded under, sorted.
func (m *Migrator) Worktrees(ctx context.Context, main string) ([]string, error) {
	sessions, err := m.sessions.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	main = filepath.Clean(main)
	seen := make(map[string]bool)
	var out []string
	for _, s := range sessions {
		dir := s.ProjectDir
		if dir == "" || seen[dir] || filepath.Clean(dir) == main {
			continue
		}
		seen[dir] = true
		if m.isWorktree(dir) {
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Migrate moves the sessions and events of every worktree dir to main.
func (m *Migrator) Migrate(ctx context.Context, main string) (*MigrationResult, error) {
	if main == "" {
		return nil, ErrEmptyProjectDir
	}
	dirs, err := m.Worktrees(ctx, main)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{Main: main}
	for _, dir := range dirs {
		sessions, err := m.sessions.ReassignProject(ctx, dir, main)
		if err != nil {
			return result, fmt.Errorf("moving sessions from %s: %w", dir, err)
		}
		events, err := m.events.ReassignProject(ctx, dir, main)
		if err != nil {
			return result, fmt.Errorf("moving events from %s: %w", dir, err)
		}
		m.logger.Info("migrated worktree",
			zap.String("from", dir),
			zap.String("to", main),
			zap.Int("sessions", sessions),
			zap.Int("events", events))
		result.Migrations = append(result.Migrations, Migration{From: dir, Sessions: sessions, Events: events})
	}
	return result, nil
}
