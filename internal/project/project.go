package project

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Common errors.
var (
	ErrNotGitRepo      = errors.New("not a git repository")
	ErrInvalidGitDir   = errors.New("invalid gitdir file")
	ErrEmptyProjectDir = errors.New("project dir cannot be empty")
)

// taskWorktreeSegment marks agent task worktrees by path.
const taskWorktreeSegment = "worktrees/task-"

// Info describes a directory's place in a git checkout.
type Info struct {
	// Dir is the inspected directory.
	Dir string

	// Root is the top level of the checkout containing Dir.
	Root string

	// Main is Dir mapped into the main checkout. It equals Dir outside a
	// linked worktree.
	Main string

	// Branch is the checked-out branch, empty when detached or unknown.
	Branch string

	// IsWorktree reports a linked worktree.
	IsWorktree bool
}

// Inspect opens the git checkout containing dir.
func Inspect(dir string) (*Info, error) {
	if dir == "" {
		return nil, ErrEmptyProjectDir
	}
	dir = filepath.Clean(dir)

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotGitRepo, dir, err)
	}

	info := &Info{Dir: dir, Root: wt.Filesystem.Root(), Main: dir}
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	mainRoot, ok, err := linkedMainRoot(info.Root)
	if err != nil {
		return nil, err
	}
	if ok {
		info.IsWorktree = true
		rel, err := filepath.Rel(info.Root, dir)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = "."
		}
		info.Main = filepath.Join(mainRoot, rel)
	}
	return info, nil
}

// linkedMainRoot reports the main checkout of the linked worktree rooted at
// root. A regular ".git" directory is not a linked worktree.
func linkedMainRoot(root string) (string, bool, error) {
	dotGit := filepath.Join(root, ".git")
	fi, err := os.Lstat(dotGit)
	if err != nil || fi.IsDir() {
		return "", false, nil
	}
	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", dotGit, err)
	}
	gitDir, err := ParseGitDir(data)
	if err != nil {
		return "", false, err
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(root, gitDir)
	}
	common := commonDir(gitDir)
	if common == "" {
		return "", false, nil
	}
	return filepath.Dir(common), true, nil
}

// commonDir returns the shared .git directory of a worktree gitdir, from its
// commondir file or from the <common>/worktrees/<name> layout.
func commonDir(gitDir string) string {
	if data, err := os.ReadFile(filepath.Join(gitDir, "commondir")); err == nil {
		c := strings.TrimSpace(string(data))
		if c != "" {
			if !filepath.IsAbs(c) {
				c = filepath.Join(gitDir, c)
			}
			return filepath.Clean(c)
		}
	}
	parent := filepath.Dir(gitDir)
	if filepath.Base(parent) == "worktrees" {
		return filepath.Dir(parent)
	}
	return ""
}

// ParseGitDir extracts the path from the contents of a ".git" file.
func ParseGitDir(data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "gitdir:"); ok {
			if p := strings.TrimSpace(rest); p != "" {
				return p, nil
			}
		}
	}
	return "", ErrInvalidGitDir
}

// MainFromPath maps a task worktree path to the directory that holds its
// worktrees folder. It reports false for other paths.
func MainFromPath(dir string) (string, bool) {
	slashed := filepath.ToSlash(filepath.Clean(dir))
	i := strings.Index(slashed, "/"+taskWorktreeSegment)
	if i < 0 {
		i = strings.Index(slashed, "/."+taskWorktreeSegment)
	}
	if i <= 0 {
		return "", false
	}
	return filepath.FromSlash(slashed[:i]), true
}

// IsWorktreePath reports whether dir is a linked worktree or a task
// worktree path.
func IsWorktreePath(dir string) bool {
	if strings.Contains(filepath.ToSlash(dir), taskWorktreeSegment) {
		return true
	}
	info, err := Inspect(dir)
	return err == nil && info.IsWorktree
}

// MainProject maps dir to the main project it belongs to. Directories that
// are not worktrees are returned unchanged.
func MainProject(dir string) string {
	if dir == "" {
		return dir
	}
	if info, err := Inspect(dir); err == nil && info.IsWorktree {
		return info.Main
	}
	if main, ok := MainFromPath(dir); ok {
		return main
	}
	return dir
}
