// Package hooks adapts agent lifecycle hooks to the feature tracker.
//
// A hook process receives one JSON document on stdin, dispatches it to the
// handlers registered for its hook type, and always answers with an
// acknowledgment on stdout:
//
//	{"hookSpecificOutput":{"hookEventName":"PostToolUse"}}
//
// SessionStart acknowledgments also carry additionalContext. Handler errors
// are logged and never change the acknowledgment or the exit status.
package hooks
