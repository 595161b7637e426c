package hooks

import (
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// Environment variables read by the hook process.
const (
	EnvHookType   = "AGENTKANBAN_HOOK_TYPE"
	EnvSessionID  = "CLAUDE_SESSION_ID"
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
)

// UnknownSession is used when no session ID is available.
const UnknownSession = "unknown"

// Env resolves invocation details from the process environment.
type Env struct {
	Getenv func(string) string
	Getwd  func() (string, error)
	Stat   func(string) (os.FileInfo, error)

	// MapProject rewrites a resolved project directory, for example from a
	// git worktree to its main project. Nil leaves it unchanged.
	MapProject func(string) string
}

// OSEnv reads the real process environment.
func OSEnv() Env {
	return Env{Getenv: os.Getenv, Getwd: os.Getwd, Stat: os.Stat}
}

func (e Env) getenv(key string) string {
	if e.Getenv == nil {
		return ""
	}
	return e.Getenv(key)
}

// HookType resolves the hook from the command argument, then
// AGENTKANBAN_HOOK_TYPE, defaulting to PostToolUse.
func (e Env) HookType(arg string) (HookType, error) {
	if arg == "" {
		arg = e.getenv(EnvHookType)
	}
	if arg == "" {
		return HookPostToolUse, nil
	}
	return ParseHookType(arg)
}

// SessionID prefers the input's session_id, then CLAUDE_SESSION_ID.
func (e Env) SessionID(in *Input) string {
	if in != nil && in.SessionID != "" {
		return in.SessionID
	}
	if id := e.getenv(EnvSessionID); id != "" {
		return id
	}
	return UnknownSession
}

// ProjectDir resolves the project from CLAUDE_PROJECT_DIR, then the nearest
// ancestor of tool_input.file_path holding a feature list, then the working
// directory.
func (e Env) ProjectDir(in *Input) string {
	dir := e.getenv(EnvProjectDir)
	if dir == "" && in != nil {
		dir = e.listDirFor(in.FilePath())
	}
	if dir == "" && e.Getwd != nil {
		if wd, err := e.Getwd(); err == nil {
			dir = wd
		}
	}
	if dir != "" && e.MapProject != nil {
		dir = e.MapProject(dir)
	}
	return dir
}

func (e Env) listDirFor(path string) string {
	if path == "" || e.Stat == nil {
		return ""
	}
	p := filepath.Clean(path)
	for {
		for _, name := range []string{feature.ListFileJSON, feature.ListFileYAML} {
			if _, err := e.Stat(filepath.Join(p, name)); err == nil {
				return p
			}
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}
