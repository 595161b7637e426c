package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
)

func TestParseGitDir(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"absolute", "gitdir: /repo/.git/worktrees/task-1\n", "/repo/.git/worktrees/task-1", false},
		{"relative", "gitdir: ../repo/.git/worktrees/x", "../repo/.git/worktrees/x", false},
		{"extra whitespace", "  gitdir:   /a/b  \n", "/a/b", false},
		{"missing prefix", "/repo/.git", "", true},
		{"empty path", "gitdir: ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGitDir([]byte(tt.content))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGitDir)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMainFromPath(t *testing.T) {
	tests := []struct {
		dir  string
		want string
		ok   bool
	}{
		{"/home/dev/app/.worktrees/task-12", "/home/dev/app", true},
		{"/home/dev/app/worktrees/task-3/src", "/home/dev/app", true},
		{"/home/dev/app", "", false},
		{"/home/dev/worktrees/other", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			got, ok := MainFromPath(tt.dir)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInspect_MainCheckout(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	info, err := Inspect(sub)
	require.NoError(t, err)
	assert.Equal(t, dir, info.Root)
	assert.Equal(t, sub, info.Main)
	assert.False(t, info.IsWorktree)
	assert.Equal(t, sub, MainProject(sub))
}

func TestInspect_NotARepo(t *testing.T) {
	dir := t.TempDir()
	_, err := Inspect(dir)
	assert.ErrorIs(t, err, ErrNotGitRepo)
	assert.Equal(t, dir, MainProject(dir))

	_, err = Inspect("")
	assert.ErrorIs(t, err, ErrEmptyProjectDir)
}

func TestInspect_LinkedWorktree(t *testing.T) {
	base := t.TempDir()
	mainDir := filepath.Join(base, "app")
	require.NoError(t, os.Mkdir(mainDir, 0o755))
	_, err := git.PlainInit(mainDir, false)
	require.NoError(t, err)

	wtDir := filepath.Join(base, "wt", "feature-x")
	require.NoError(t, os.MkdirAll(wtDir, 0o755))
	gitDir := filepath.Join(mainDir, ".git", "worktrees", "feature-x")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/feature-x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "commondir"), []byte("../..\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "gitdir"), []byte(filepath.Join(wtDir, ".git")+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wtDir, ".git"), []byte("gitdir: "+gitDir+"\n"), 0o644))

	info, err := Inspect(wtDir)
	require.NoError(t, err)
	assert.True(t, info.IsWorktree)
	assert.Equal(t, wtDir, info.Root)
	assert.Equal(t, mainDir, info.Main)
	assert.Equal(t, mainDir, MainProject(wtDir))
	assert.True(t, IsWorktreePath(wtDir))
	assert.False(t, IsWorktreePath(mainDir))
}

func TestMigrator(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	dirs := map[string]string{
		"s-main":  "/dev/app",
		"s-wt1":   "/dev/app/.worktrees/task-1",
		"s-wt2":   "/dev/app/.worktrees/task-2",
		"s-wt1b":  "/dev/app/.worktrees/task-1",
		"s-other": "/dev/other",
	}
	for id, dir := range dirs {
		require.NoError(t, mem.Sessions().Start(ctx, &session.Session{
			ID: id, SourceAgent: "claude-code", ProjectDir: dir, StartedAt: at,
		}))
		require.NoError(t, mem.Events().Insert(ctx, &event.Event{
			ID: "e-" + id, Type: event.TypeToolCall, SourceAgent: "claude-code",
			SessionID: id, ProjectDir: dir, Timestamp: at,
		}))
	}

	m := NewMigrator(mem.Sessions(), mem.Events(), nil)
	m.isWorktree = func(dir string) bool { _, ok := MainFromPath(dir); return ok }

	worktrees, err := m.Worktrees(ctx, "/dev/app")
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/app/.worktrees/task-1", "/dev/app/.worktrees/task-2"}, worktrees)

	res, err := m.Migrate(ctx, "/dev/app")
	require.NoError(t, err)
	sessions, events := res.Totals()
	assert.Equal(t, 3, sessions)
	assert.Equal(t, 3, events)
	require.Len(t, res.Migrations, 2)
	assert.Equal(t, Migration{From: "/dev/app/.worktrees/task-1", Sessions: 2, Events: 2}, res.Migrations[0])

	all, err := mem.Sessions().Sessions(ctx)
	require.NoError(t, err)
	for _, s := range all {
		assert.NotContains(t, s.ProjectDir, "worktrees/task-")
	}

	again, err := m.Migrate(ctx, "/dev/app")
	require.NoError(t, err)
	assert.Empty(t, again.Migrations)

	_, err = m.Migrate(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyProjectDir)
}
