package tracker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	long := strings.Repeat("x", 70)
	tests := []struct {
		tool  string
		input map[string]any
		want  string
	}{
		{ToolRead, map[string]any{"file_path": "a.go"}, "Read: a.go"},
		{ToolWrite, map[string]any{}, "Write: unknown"},
		{ToolEdit, map[string]any{"file_path": "b.go"}, "Edit: b.go"},
		{ToolBash, map[string]any{"command": "go test ./..."}, "Bash: go test ./..."},
		{ToolBash, map[string]any{"command": long}, "Bash: " + strings.Repeat("x", 60) + "..."},
		{ToolGlob, map[string]any{"pattern": "**/*.go"}, "Glob: **/*.go"},
		{ToolGrep, map[string]any{"pattern": "TODO"}, "Grep: TODO"},
		{ToolTask, map[string]any{"description": "explore"}, "Task: explore"},
		{"WebFetch", map[string]any{"url": "https://x"}, `WebFetch: {"url":"https://x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.tool, tt.input))
		})
	}
}

func TestFilePaths(t *testing.T) {
	paths := FilePaths(map[string]any{
		"file_path": "/src/a.go",
		"pattern":   "*.go",
		"command":   "ls",
	})
	assert.Equal(t, []string{"/src/a.go", "glob:*.go", "bash:ls..."}, paths)
	assert.Empty(t, FilePaths(nil))
}

type upperRedactor struct{}

func (upperRedactor) Redact(s string) string { return strings.ToUpper(s) }

func TestToolPayload(t *testing.T) {
	edit := ToolPayload(ToolCall{Name: ToolEdit, Input: map[string]any{
		"file_path":  "a.go",
		"old_string": strings.Repeat("o", 250),
		"new_string": "new",
	}}, nil)
	assert.Equal(t, strings.Repeat("o", 200)+"...", edit["oldString"])
	assert.Equal(t, "new", edit["newString"])
	assert.Equal(t, "a.go", edit["filePath"])
	assert.Equal(t, true, edit["success"])

	sh := ToolPayload(ToolCall{
		Name:    ToolBash,
		Input:   map[string]any{"command": strings.Repeat("c", 600), "description": "run"},
		Output:  strings.Repeat("z", 400),
		IsError: true,
	}, nil)
	assert.Len(t, sh["command"], 500)
	assert.Equal(t, strings.Repeat("z", 300)+"...", sh["outputPreview"])
	assert.Equal(t, false, sh["success"])

	quiet := ToolPayload(ToolCall{Name: ToolBash, Input: map[string]any{"command": "true"}}, nil)
	assert.NotContains(t, quiet, "outputPreview")

	read := ToolPayload(ToolCall{Name: ToolRead, Input: map[string]any{"file_path": "r.go", "offset": 10.0}}, nil)
	assert.Equal(t, 10.0, read["offset"])
	assert.Nil(t, read["limit"])

	write := ToolPayload(ToolCall{Name: ToolWrite, Input: map[string]any{"file_path": "w.go", "content": "secret"}}, upperRedactor{})
	assert.Equal(t, "SECRET", write["contentPreview"])
	assert.Equal(t, "WRITE: W.GO", write["inputSummary"])
	assert.Equal(t, "w.go", write["filePath"])
}
