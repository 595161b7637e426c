package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/config"
	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/hooks"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
)

const featureListJSON = `[
  {"description": "dark mode toggle", "inProgress": true, "completionCriteria": {"type": "work_count", "count": 5}},
  {"description": "billing export"}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "agentkanban.db")
	cfg.Sink.Mode = config.SinkDirect
	disabled := false
	cfg.Secrets.Enabled = &disabled
	return cfg
}

func testEnv(projectDir string) hooks.Env {
	vars := map[string]string{hooks.EnvProjectDir: projectDir}
	return hooks.Env{
		Getenv: func(k string) string { return vars[k] },
		Getwd:  func() (string, error) { return projectDir, nil },
		Stat:   os.Stat,
	}
}

func decodeAck(t *testing.T, out []byte) hooks.Ack {
	t.Helper()
	var ack hooks.Ack
	require.NoError(t, json.Unmarshal(out, &ack))
	return ack
}

func TestRunHook_SessionStartThenToolUse(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, feature.ListFileJSON), []byte(featureListJSON), 0o600))
	env := testEnv(projectDir)

	var out bytes.Buffer
	runHook(ctx, cfg, zap.NewNop(), "session-start", env,
		strings.NewReader(`{"session_id":"sess-1","hook_event_name":"SessionStart"}`), &out)

	ack := decodeAck(t, out.Bytes())
	assert.Equal(t, "SessionStart", ack.HookSpecificOutput.HookEventName)
	assert.Contains(t, ack.HookSpecificOutput.AdditionalContext, "**Currently Working On:** dark mode toggle")

	out.Reset()
	runHook(ctx, cfg, zap.NewNop(), "", env, strings.NewReader(`{
		"session_id": "sess-1",
		"tool_name": "Edit",
		"tool_input": {"file_path": "theme.go", "old_string": "a", "new_string": "b"},
		"tool_response": {"success": true}
	}`), &out)
	ack = decodeAck(t, out.Bytes())
	assert.Equal(t, "PostToolUse", ack.HookSpecificOutput.HookEventName)
	assert.Empty(t, ack.HookSpecificOutput.AdditionalContext)

	db, err := store.OpenSQLite(cfg.Store.Path)
	require.NoError(t, err)
	defer db.Close()

	features, err := db.Features().List(ctx, projectDir)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, 1, features[0].WorkCount)

	counts, err := db.Events().CountByFeature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[features[0].ID])

	events, err := db.Events().FindInWindow(ctx, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	var types []event.Type
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []event.Type{event.TypeSessionStart, event.TypeToolCall}, types)

	sessions, err := db.Sessions().Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.StatusActive, sessions[0].Status)
}

func TestRunHook_NeverFails(t *testing.T) {
	tests := []struct {
		name     string
		arg      string
		input    string
		wantName string
	}{
		{"unknown hook type", "bogus", `{}`, "bogus"},
		{"malformed input", "stop", `{not json`, "Stop"},
		{"self invocation", "PostToolUse", `{"session_id":"s","tool_name":"Bash","tool_input":{"command":"kanban hook stop"}}`, "PostToolUse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			var out bytes.Buffer
			runHook(context.Background(), cfg, zap.NewNop(), tt.arg, testEnv(t.TempDir()), strings.NewReader(tt.input), &out)
			assert.Equal(t, tt.wantName, decodeAck(t, out.Bytes()).HookSpecificOutput.HookEventName)
		})
	}
}

func TestImportFileAndRender(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- description: login page
  passes: true
- description: dark mode
  inProgress: true
- description: billing export
`), 0o600))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	features, err := importFile(path, "/proj", now)
	require.NoError(t, err)
	require.Len(t, features, 3)
	assert.Equal(t, feature.StatusComplete, features[0].Status)
	assert.Equal(t, feature.StatusInProgress, features[1].Status)
	assert.Equal(t, "/proj:2", features[2].ID)

	var out bytes.Buffer
	require.NoError(t, renderFeatureList(&out, "/proj", features))
	text := out.String()
	assert.Contains(t, text, "[0] [x] login page")
	assert.Contains(t, text, "[1] [>] dark mode")
	assert.Contains(t, text, "1/3 features complete (33%)")

	out.Reset()
	require.NoError(t, renderFeatureList(&out, "/empty", nil))
	assert.Equal(t, "No features for /empty\n", out.String())
}

func TestCollectDiagnostics(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	items := []feature.ListItem{
		{Description: "login page", Passes: true},
		{Description: "dark mode", InProgress: true},
		{Description: "billing export"},
		{Description: "session work", IsSessionWork: true},
	}
	require.NoError(t, mem.Features().ReplaceProject(ctx, "/proj", feature.FromList("/proj", items, now)))

	insert := func(id, featureID string) {
		require.NoError(t, mem.Events().Insert(ctx, &event.Event{
			ID: id, Type: event.TypeToolCall, SourceAgent: event.DefaultSourceAgent,
			SessionID: "s1", ProjectDir: "/proj", Timestamp: now, FeatureID: featureID,
		}))
	}
	insert("e1", "/proj:1")
	insert("e2", "/proj:1")
	insert("e3", "/proj:2")
	insert("e4", "/proj:3")
	require.NoError(t, mem.Sessions().Start(ctx, &session.Session{
		ID: "s1", SourceAgent: event.DefaultSourceAgent, ProjectDir: "/proj",
		StartedAt: now, LastActivity: now, Status: session.StatusActive,
	}))

	d, err := collectDiagnostics(ctx, mem.Features(), mem.Events(), mem.Sessions(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, d.ByStatus[feature.StatusPending])
	assert.Equal(t, 1, d.ByStatus[feature.StatusInProgress])
	assert.Equal(t, 1, d.ByStatus[feature.StatusComplete])
	require.Len(t, d.PendingWithWork, 1)
	assert.Equal(t, "billing export", d.PendingWithWork[0].Feature.Description)
	require.Len(t, d.TopFeatures, 2)
	assert.Equal(t, "dark mode", d.TopFeatures[0].Feature.Description)
	assert.Equal(t, 2, d.TopFeatures[0].Events)
	assert.Equal(t, 4, d.Stats.Total)
	assert.Equal(t, 1, d.Stats.ActiveSessions)

	var out bytes.Buffer
	require.NoError(t, d.render(&out))
	assert.Contains(t, out.String(), "Top Features by Event Count")
	assert.Contains(t, out.String(), "billing export")
}

func TestFeaturesCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGENTKANBAN_STORE_PATH", filepath.Join(home, "agentkanban.db"))

	projectDir := t.TempDir()
	listPath := filepath.Join(projectDir, feature.ListFileJSON)
	require.NoError(t, os.WriteFile(listPath, []byte(featureListJSON), 0o600))

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute(), out.String())
		return out.String()
	}

	assert.Contains(t, run("features", "import", "-p", projectDir), "Imported 2 features")
	assert.Contains(t, run("features", "complete", "-p", projectDir), "Completed: [0] dark mode toggle")
	assert.Contains(t, run("features", "next", "-p", projectDir), "Active: [1] billing export")

	exported := run("features", "export", "--format", "yaml", "-p", projectDir)
	items, err := feature.ParseList([]byte(exported), feature.FormatYAML)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Passes)
	assert.True(t, items[1].InProgress)

	assert.Contains(t, run("reattribute"), "[DRY RUN]")
	assert.Contains(t, run("reattribute", "--dry-run"), "[DRY RUN]")
	assert.NotContains(t, run("reattribute", "--dry-run", "--apply"), "[DRY RUN]")

	for _, score := range []string{"0", "-2"} {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs([]string{"reattribute", "--min-score=" + score})
		err := root.Execute()
		require.Error(t, err, "min-score %s", score)
		assert.Contains(t, err.Error(), "--min-score must be at least 1")
	}
	assert.Contains(t, run("status", "-p", projectDir), "Recent Transitions")
}
