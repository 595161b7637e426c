package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mkFeature(pos int, desc string, status feature.Status, c feature.Criteria) *feature.Feature {
	f := &feature.Feature{
		ID:          feature.IDFor("/proj", pos),
		ProjectDir:  "/proj",
		Position:    pos,
		Description: desc,
		Status:      status,
		Criteria:    c,
	}
	f.ApplyDefaults(now)
	return f
}

func bash(cmd string) ToolCall {
	return ToolCall{Name: ToolBash, Input: map[string]any{"command": cmd}}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		criteria   feature.Criteria
		call       ToolCall
		wantOK     bool
		wantReason string
	}{
		{"test runner", feature.Test(), bash("pytest tests/"), true, ReasonTest},
		{"cargo test", feature.Test(), bash("cargo test --all"), true, ReasonTest},
		{"test needs bash", feature.Test(), ToolCall{Name: ToolEdit, Input: map[string]any{"command": "pytest"}}, false, ""},
		{"test errored", feature.Test(), ToolCall{Name: ToolBash, Input: map[string]any{"command": "pytest"}, IsError: true}, false, ""},
		{"build keyword", feature.Build(""), bash("go build ./..."), true, ReasonBuild},
		{"build keyword case", feature.Build(""), bash("NPM RUN BUILD"), true, ReasonBuild},
		{"build no match", feature.Build(""), bash("ls -la"), false, ""},
		{"build pattern", feature.Build(`make\s+release`), bash("MAKE release"), true, ReasonBuild},
		{"build pattern miss", feature.Build(`make\s+release`), bash("go build"), false, ""},
		{"build bad pattern", feature.Build(`(`), bash("go build"), false, ""},
		{"lint", feature.Lint(), bash("golangci-lint run"), true, ReasonLint},
		{"prettier", feature.Lint(), bash("npx prettier --check ."), true, ReasonLint},
		{"any success edit", feature.AnySuccess(), ToolCall{Name: ToolEdit}, true, ReasonAnySuccess},
		{"any success read", feature.AnySuccess(), ToolCall{Name: ToolRead}, false, ""},
		{"any success task", feature.AnySuccess(), ToolCall{Name: ToolTask}, false, ""},
		{"work count never here", feature.WorkCount(1), bash("go build"), false, ""},
		{"manual", feature.Manual(), bash("pytest"), false, ""},
		{"unknown kind", feature.Criteria{Kind: "deploy"}, bash("pytest"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mkFeature(0, "x", feature.StatusInProgress, tt.criteria)
			ok, reason := Evaluate(f, tt.call)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestAccumulate_WorkCountScenario(t *testing.T) {
	f := mkFeature(0, "add dark mode toggle", feature.StatusInProgress, feature.WorkCount(2))
	edit := ToolCall{Name: ToolEdit, Input: map[string]any{"file_path": "theme.go"}}

	out := Accumulate(f, edit)
	assert.True(t, out.Counted)
	assert.False(t, out.Satisfied)
	assert.Equal(t, 1, f.WorkCount)

	out = Accumulate(f, edit)
	assert.True(t, out.Satisfied)
	assert.Equal(t, 2, f.WorkCount)
	assert.Equal(t, "Auto-completed (work count: 2)", out.Reason)
	assert.Equal(t, "Auto-completed (work count: 2)", out.Status())
}

func TestAccumulate_Monotonic(t *testing.T) {
	f := mkFeature(0, "x", feature.StatusInProgress, feature.Manual())
	calls := []ToolCall{
		{Name: ToolRead},
		{Name: ToolEdit},
		{Name: ToolBash, IsError: true},
		{Name: ToolTask},
		{Name: ToolGrep},
		{Name: ToolWrite},
	}

	want := []int{0, 1, 1, 2, 2, 3}
	for i, c := range calls {
		prev := f.WorkCount
		Accumulate(f, c)
		require.GreaterOrEqual(t, f.WorkCount, prev)
		assert.Equal(t, want[i], f.WorkCount, "after call %d (%s)", i, c.Name)
	}
}

func TestAccumulate_SkipsCompleted(t *testing.T) {
	f := mkFeature(0, "x", feature.StatusComplete, feature.AnySuccess())
	out := Accumulate(f, ToolCall{Name: ToolEdit})
	assert.False(t, out.Counted)
	assert.False(t, out.Satisfied)
	assert.Equal(t, 0, f.WorkCount)
}

func TestAccumulate_CriteriaAfterCount(t *testing.T) {
	f := mkFeature(0, "x", feature.StatusInProgress, feature.Test())
	out := Accumulate(f, bash("pytest tests/"))
	assert.True(t, out.Counted)
	assert.True(t, out.Satisfied)
	assert.Equal(t, "Auto-completed: Tests passed", out.Status())
}

func TestActivateNext_SingleActive(t *testing.T) {
	features := []*feature.Feature{
		mkFeature(0, "a", feature.StatusComplete, feature.Manual()),
		mkFeature(1, "b", feature.StatusBlocked, feature.Manual()),
		mkFeature(2, "c", feature.StatusPending, feature.Manual()),
		mkFeature(3, "d", feature.StatusPending, feature.Manual()),
	}

	assert.Nil(t, GetActive(features))

	next := ActivateNext(features, now)
	require.NotNil(t, next)
	assert.Equal(t, features[2].ID, next.ID)
	assert.Equal(t, next, GetActive(features))

	// A second call must not create another active feature.
	assert.Nil(t, ActivateNext(features, now))

	active := 0
	for _, f := range features {
		if f.Status == feature.StatusInProgress {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestComplete_AdvancesQueue(t *testing.T) {
	features := []*feature.Feature{
		mkFeature(0, "a", feature.StatusInProgress, feature.Manual()),
		mkFeature(1, "b", feature.StatusPending, feature.Manual()),
	}

	transitions, err := Complete(features, features[0], now, ToolEdit)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, feature.StatusComplete, features[0].Status)
	require.NotNil(t, features[0].CompletedAt)
	assert.Equal(t, feature.StatusInProgress, features[1].Status)
	assert.Equal(t, features[1].ID, transitions[1].FeatureID)

	_, err = Complete(features, features[0], now, ToolEdit)
	assert.ErrorIs(t, err, feature.ErrInvalidTransition)

	last := []*feature.Feature{mkFeature(0, "only", feature.StatusInProgress, feature.Manual())}
	transitions, err = Complete(last, last[0], now, ToolEdit)
	require.NoError(t, err)
	assert.Len(t, transitions, 1)
	assert.Nil(t, GetActive(last))
}
