// Package watch re-imports a project's feature list when the file changes
// on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ReloadFunc re-imports one project.
type ReloadFunc func(ctx context.Context, projectDir string) error

// Watcher watches project directories for feature list changes. Reloads
// run one at a time on the Run goroutine.
type Watcher struct {
	fsw      *fsnotify.Watcher
	reload   ReloadFunc
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	projects map[string]bool
	timers   map[string]*time.Timer

	fire chan string
	done chan struct{}
}

// New creates a watcher that calls reload after a feature list in a
// watched project settles for debounce.
func New(reload ReloadFunc, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		fsw:      fsw,
		reload:   reload,
		debounce: debounce,
		logger:   logger,
		projects: make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		fire:     make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

// Watch adds a project directory. The directory is watched rather than the
// file so that atomic replace-on-save is seen.
func (w *Watcher) Watch(projectDir string) error {
	dir := filepath.Clean(projectDir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.projects[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.projects[dir] = true
	w.logger.Debug("watching feature list", zap.String("project_dir", dir))
	return nil
}

// Projects returns the watched directories.
func (w *Watcher) Projects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.projects))
	for dir := range w.projects {
		out = append(out, dir)
	}
	return out
}

// Run processes filesystem events until ctx is done, then releases the
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("feature list watcher error", zap.Error(err))
		case dir := <-w.fire:
			if err := w.reload(ctx, dir); err != nil {
				w.logger.Warn("reloading feature list failed", zap.String("project_dir", dir), zap.Error(err))
				continue
			}
			w.logger.Info("feature list reloaded", zap.String("project_dir", dir))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	switch filepath.Base(ev.Name) {
	case feature.ListFileJSON, feature.ListFileYAML:
	default:
		return
	}
	dir := filepath.Dir(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[dir]; ok {
		t.Stop()
	}
	w.timers[dir] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, dir)
		w.mu.Unlock()
		select {
		case w.fire <- dir:
		case <-w.done:
		}
	})
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	for dir, t := range w.timers {
		t.Stop()
		delete(w.timers, dir)
	}
	w.mu.Unlock()
	close(w.done)
	_ = w.fsw.Close()
}
