package tracker

import (
	"encoding/json"
	"fmt"
)

// Preview limits, in characters.
const (
	editPreviewLen    = 200
	commandLen        = 500
	outputPreviewLen  = 300
	contentPreviewLen = 200
	summaryCommandLen = 60
	filePathCommand   = 50
	lastMessageLen    = 200
	resultSummaryLen  = 200
	promptLen         = 1000
	promptPreviewLen  = 200
)

// Redactor scrubs secrets from preview text before it leaves the process.
type Redactor interface {
	Redact(s string) string
}

type nopRedactor struct{}

func (nopRedactor) Redact(s string) string { return s }

// truncate cuts s to n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ellipsize cuts s to n characters and marks the cut with "...".
func ellipsize(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return truncate(s, n) + "..."
}

// Summarize renders a one-line description of a tool call's input.
func Summarize(toolName string, input map[string]any) string {
	orUnknown := func(key string) string {
		if v := stringField(input, key); v != "" {
			return v
		}
		return "unknown"
	}

	switch toolName {
	case ToolRead, ToolWrite, ToolEdit:
		return toolName + ": " + orUnknown("file_path")
	case ToolBash:
		return "Bash: " + ellipsize(stringField(input, "command"), summaryCommandLen)
	case ToolGlob, ToolGrep:
		return toolName + ": " + orUnknown("pattern")
	case ToolTask:
		return "Task: " + orUnknown("description")
	default:
		return fmt.Sprintf("%s: %s", toolName, truncate(compactJSON(input), summaryCommandLen))
	}
}

// FilePaths lists the paths and patterns a tool call touched.
func FilePaths(input map[string]any) []string {
	paths := []string{}
	if _, ok := input["file_path"]; ok {
		paths = append(paths, stringField(input, "file_path"))
	}
	if _, ok := input["pattern"]; ok {
		paths = append(paths, "glob:"+stringField(input, "pattern"))
	}
	if _, ok := input["command"]; ok {
		paths = append(paths, "bash:"+truncate(stringField(input, "command"), filePathCommand)+"...")
	}
	return paths
}

// ToolPayload builds the bounded payload recorded for a tool call. Free-text
// previews pass through the redactor.
func ToolPayload(call ToolCall, r Redactor) map[string]any {
	if r == nil {
		r = nopRedactor{}
	}
	in := call.Input

	payload := map[string]any{
		"filePaths":    FilePaths(in),
		"inputSummary": r.Redact(Summarize(call.Name, in)),
		"success":      !call.IsError,
	}

	switch call.Name {
	case ToolEdit:
		payload["oldString"] = r.Redact(ellipsize(stringField(in, "old_string"), editPreviewLen))
		payload["newString"] = r.Redact(ellipsize(stringField(in, "new_string"), editPreviewLen))
		payload["filePath"] = stringField(in, "file_path")
	case ToolBash:
		payload["command"] = r.Redact(truncate(call.Command(), commandLen))
		payload["description"] = stringField(in, "description")
		if call.Output != "" {
			payload["outputPreview"] = r.Redact(ellipsize(call.Output, outputPreviewLen))
		}
	case ToolRead:
		payload["filePath"] = stringField(in, "file_path")
		payload["offset"] = in["offset"]
		payload["limit"] = in["limit"]
	case ToolWrite:
		payload["filePath"] = stringField(in, "file_path")
		payload["contentPreview"] = r.Redact(ellipsize(stringField(in, "content"), contentPreviewLen))
	case ToolGrep:
		payload["pattern"] = stringField(in, "pattern")
		payload["path"] = stringField(in, "path")
		payload["glob"] = stringField(in, "glob")
	case ToolGlob:
		payload["pattern"] = stringField(in, "pattern")
		payload["path"] = stringField(in, "path")
	}
	return payload
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
