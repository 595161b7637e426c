package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// HandleSessionStart records the session start, imports the project's
// feature list when no features are stored yet, and returns the context to
// inject into the session.
func (r *Router) HandleSessionStart(ctx context.Context, scope Scope) string {
	r.emit(ctx, r.envelope(scope, event.TypeSessionStart, "", map[string]any{
		"action": "session_started",
	}))

	features, err := r.features.List(ctx, scope.ProjectDir)
	if err != nil {
		r.logger.Warn("loading features failed", zap.String("project_dir", scope.ProjectDir), zap.Error(err))
		return NoFeaturesHint
	}

	if len(features) == 0 {
		imported, err := r.ImportList(ctx, scope.ProjectDir)
		switch {
		case errors.Is(err, feature.ErrNoListFile):
		case err != nil:
			r.logger.Warn("importing feature list failed", zap.String("project_dir", scope.ProjectDir), zap.Error(err))
		default:
			features = imported
		}
	}
	return SessionContext(features)
}

// HandleSessionEnd records the session end.
func (r *Router) HandleSessionEnd(ctx context.Context, scope Scope) event.Envelope {
	env := r.envelope(scope, event.TypeSessionEnd, "", map[string]any{
		"action": "session_ended",
	})
	r.emit(ctx, env)
	return env
}

// ImportList syncs a project's features with its feature list file. The
// first import creates them; later imports merge by ID so tracked progress
// survives edits to the file.
func (r *Router) ImportList(ctx context.Context, projectDir string) ([]*feature.Feature, error) {
	imported, err := feature.LoadListFile(projectDir, r.now())
	if err != nil {
		return nil, err
	}
	return r.Import(ctx, projectDir, imported)
}

// Import merges imported into the project's stored features by ID and
// writes the result, retrying when a concurrent update wins.
func (r *Router) Import(ctx context.Context, projectDir string, imported []*feature.Feature) ([]*feature.Feature, error) {
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		stored, err := r.features.List(ctx, projectDir)
		if err != nil {
			return nil, fmt.Errorf("loading features: %w", err)
		}
		merged := feature.Merge(stored, imported)
		err = r.features.ReplaceProject(ctx, projectDir, merged)
		if errors.Is(err, feature.ErrVersionConflict) {
			r.metrics.recordConflict(ctx)
			continue
		}
		if err != nil {
			return nil, err
		}
		r.logger.Info("imported feature list",
			zap.String("project_dir", projectDir),
			zap.Int("features", len(merged)),
			zap.Int("kept", len(stored)))
		return merged, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRetriesExhausted, projectDir)
}
