package tracker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// Tool names the evaluator distinguishes.
const (
	ToolEdit  = "Edit"
	ToolWrite = "Write"
	ToolBash  = "Bash"
	ToolTask  = "Task"
	ToolRead  = "Read"
	ToolGrep  = "Grep"
	ToolGlob  = "Glob"
)

// Reasons reported when a rule is satisfied.
const (
	ReasonBuild      = "Build passed"
	ReasonTest       = "Tests passed"
	ReasonLint       = "Lint passed"
	ReasonAnySuccess = "Work completed"
)

var (
	buildKeywords = []string{"build", "compile", "cargo build", "pnpm build", "npm run build"}
	testKeywords  = []string{"test", "pytest", "jest", "vitest", "cargo test"}
	lintKeywords  = []string{"lint", "eslint", "prettier", "clippy"}
)

// ToolCall is one completed tool invocation as reported by the agent.
type ToolCall struct {
	Name    string
	Input   map[string]any
	IsError bool
	Output  string
}

// Command returns the shell command of a Bash call.
func (c ToolCall) Command() string {
	return stringField(c.Input, "command")
}

// IsWorkTool reports whether a tool changes the workspace or delegates work.
// Only work tools advance a feature's work count.
func IsWorkTool(name string) bool {
	switch name {
	case ToolEdit, ToolWrite, ToolBash, ToolTask:
		return true
	}
	return false
}

func isMutatingTool(name string) bool {
	switch name {
	case ToolEdit, ToolWrite, ToolBash:
		return true
	}
	return false
}

// Evaluate decides whether a single tool call satisfies the feature's
// completion rule. Work-count rules are never satisfied here; see Accumulate.
func Evaluate(f *feature.Feature, call ToolCall) (bool, string) {
	if call.IsError {
		return false, ""
	}

	c := f.Criteria
	switch c.Type() {
	case feature.KindBuild:
		if call.Name != ToolBash {
			return false, ""
		}
		cmd := strings.ToLower(call.Command())
		if c.CommandPattern != "" {
			re, err := regexp.Compile("(?i)" + c.CommandPattern)
			if err != nil {
				return false, ""
			}
			if re.MatchString(cmd) {
				return true, ReasonBuild
			}
			return false, ""
		}
		if containsAny(cmd, buildKeywords) {
			return true, ReasonBuild
		}
	case feature.KindTest:
		if call.Name == ToolBash && containsAny(strings.ToLower(call.Command()), testKeywords) {
			return true, ReasonTest
		}
	case feature.KindLint:
		if call.Name == ToolBash && containsAny(strings.ToLower(call.Command()), lintKeywords) {
			return true, ReasonLint
		}
	case feature.KindAnySuccess:
		if isMutatingTool(call.Name) {
			return true, ReasonAnySuccess
		}
	case feature.KindWorkCount, feature.KindManual:
	}
	return false, ""
}

// Outcome is the result of running a tool call through the evaluator.
type Outcome struct {
	// Counted is true when the call incremented the work count.
	Counted bool

	// Satisfied is true when the feature's completion rule was met.
	Satisfied bool

	// Reason names the satisfied rule.
	Reason string
}

// Status is the completion status recorded on the FeatureCompleted event.
func (o Outcome) Status() string {
	if !o.Satisfied {
		return ""
	}
	if strings.HasPrefix(o.Reason, "Auto-completed") {
		return o.Reason
	}
	return "Auto-completed: " + o.Reason
}

// Accumulate applies a tool call to f: non-error work tools increment the
// work count, then the completion rule is checked. f is modified in place;
// completed features are left untouched.
func Accumulate(f *feature.Feature, call ToolCall) Outcome {
	var out Outcome
	if f.Status.IsTerminal() {
		return out
	}

	if IsWorkTool(call.Name) && !call.IsError {
		f.WorkCount++
		out.Counted = true

		if f.Criteria.Type() == feature.KindWorkCount && f.WorkCount >= f.Criteria.EffectiveThreshold() {
			out.Satisfied = true
			out.Reason = fmt.Sprintf("Auto-completed (work count: %d)", f.WorkCount)
			return out
		}
	}

	out.Satisfied, out.Reason = Evaluate(f, call)
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
