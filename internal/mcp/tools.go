package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/reattribution"
	"github.com/fyrsmithlabs/agentkanban/internal/sanitize"
	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
)

const timeLayout = time.RFC3339

// featureView is the tool-facing shape of a feature.
type featureView struct {
	ID            string `json:"id"`
	Position      int    `json:"position"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Criteria      string `json:"criteria"`
	WorkCount     int    `json:"work_count"`
	IsSessionWork bool   `json:"is_session_work,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

func viewOf(f *feature.Feature) *featureView {
	if f == nil {
		return nil
	}
	v := &featureView{
		ID:            f.ID,
		Position:      f.Position,
		Description:   f.Description,
		Status:        string(f.Status),
		Criteria:      f.Criteria.String(),
		WorkCount:     f.WorkCount,
		IsSessionWork: f.IsSessionWork,
	}
	if f.CompletedAt != nil {
		v.CompletedAt = f.CompletedAt.UTC().Format(timeLayout)
	}
	return v
}

type projectInput struct {
	ProjectDir string `json:"project_dir" jsonschema:"Absolute project directory the features belong to"`
}

// projectDir returns the validated, cleaned project directory.
func (in projectInput) projectDir() (string, error) {
	dir, err := sanitize.ProjectDir(in.ProjectDir)
	if err != nil {
		return "", fmt.Errorf("%w: project_dir: %v", ErrInvalidInput, err)
	}
	return dir, nil
}

type featureListOutput struct {
	Features   []*featureView `json:"features"`
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	InProgress int            `json:"in_progress"`
	Percentage float64        `json:"percentage"`
}

type featureActiveOutput struct {
	Active *featureView `json:"active,omitempty"`
}

type featureCompleteInput struct {
	ProjectDir string `json:"project_dir" jsonschema:"Absolute project directory the features belong to"`
	FeatureID  string `json:"feature_id,omitempty" jsonschema:"Feature to complete; defaults to the active feature"`
}

type featureCompleteOutput struct {
	Completed *featureView `json:"completed"`
	Activated *featureView `json:"activated,omitempty"`
}

type reattributePreviewInput struct {
	MinScore   int    `json:"min_score,omitempty" jsonschema:"Minimum keyword overlap, default 3"`
	CatchAll   string `json:"catch_all,omitempty" jsonschema:"Description of a catch-all feature whose events may be reassigned"`
	PerFeature bool   `json:"per_feature,omitempty" jsonschema:"Use each feature's own window instead of the union"`
}

type previewAssignment struct {
	EventID   string   `json:"event_id"`
	FeatureID string   `json:"feature_id"`
	Feature   string   `json:"feature"`
	Score     int      `json:"score"`
	Keywords  []string `json:"keywords"`
}

type reattributePreviewOutput struct {
	Targets     int                 `json:"targets"`
	Candidates  int                 `json:"candidates"`
	Total       int                 `json:"total"`
	Assignments []previewAssignment `json:"assignments"`
}

// instrument wraps a typed handler with metrics and logging.
func instrument[In, Out any](s *Server, name string, fn func(context.Context, In) (Out, string, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		out, text, err := fn(ctx, in)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("mcp tool failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_list",
		Description: "List a project's features in order with completion progress",
	}, instrument(s, "feature_list", s.featureList))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_active",
		Description: "Show the feature currently in progress for a project",
	}, instrument(s, "feature_active", s.featureActive))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_next",
		Description: "Activate the next pending feature when none is in progress",
	}, instrument(s, "feature_next", s.featureNext))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_complete",
		Description: "Mark the active (or given) feature complete and activate the next one",
	}, instrument(s, "feature_complete", s.featureComplete))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reattribute_preview",
		Description: "Preview which events the reattribution job would link to completed features without events",
	}, instrument(s, "reattribute_preview", s.reattributePreview))
}

func (s *Server) featureList(ctx context.Context, in projectInput) (featureListOutput, string, error) {
	dir, err := in.projectDir()
	if err != nil {
		return featureListOutput{}, "", err
	}
	features, err := s.features.List(ctx, dir)
	if err != nil {
		return featureListOutput{}, "", fmt.Errorf("listing features: %w", err)
	}
	stats := feature.Summarize(features)
	out := featureListOutput{
		Features:   make([]*featureView, 0, len(features)),
		Total:      stats.Total,
		Completed:  stats.Completed,
		InProgress: stats.InProgress,
		Percentage: stats.Percentage,
	}
	for _, f := range features {
		out.Features = append(out.Features, viewOf(f))
	}
	return out, fmt.Sprintf("%d/%d features complete (%.0f%%)", stats.Completed, stats.Total, stats.Percentage), nil
}

func (s *Server) featureActive(ctx context.Context, in projectInput) (featureActiveOutput, string, error) {
	dir, err := in.projectDir()
	if err != nil {
		return featureActiveOutput{}, "", err
	}
	features, err := s.features.List(ctx, dir)
	if err != nil {
		return featureActiveOutput{}, "", fmt.Errorf("listing features: %w", err)
	}
	active := tracker.GetActive(features)
	if active == nil {
		return featureActiveOutput{}, "No active feature", nil
	}
	return featureActiveOutput{Active: viewOf(active)}, "Active: " + active.Description, nil
}

func (s *Server) featureNext(ctx context.Context, in projectInput) (featureActiveOutput, string, error) {
	dir, err := in.projectDir()
	if err != nil {
		return featureActiveOutput{}, "", err
	}
	f, err := s.router.ActivateNext(ctx, dir)
	if err != nil {
		return featureActiveOutput{}, "", err
	}
	if f == nil {
		return featureActiveOutput{}, "No pending features", nil
	}
	return featureActiveOutput{Active: viewOf(f)}, "Active: " + f.Description, nil
}

func (s *Server) featureComplete(ctx context.Context, in featureCompleteInput) (featureCompleteOutput, string, error) {
	dir, err := projectInput{ProjectDir: in.ProjectDir}.projectDir()
	if err != nil {
		return featureCompleteOutput{}, "", err
	}
	if in.FeatureID != "" {
		owner, _, err := sanitize.FeatureID(in.FeatureID)
		if err != nil {
			return featureCompleteOutput{}, "", fmt.Errorf("%w: feature_id: %v", ErrInvalidInput, err)
		}
		if owner != dir {
			return featureCompleteOutput{}, "", fmt.Errorf("%w: feature %s is not in %s", ErrInvalidInput, in.FeatureID, dir)
		}
	}
	completed, activated, err := s.router.CompleteFeature(ctx, dir, in.FeatureID)
	if err != nil {
		return featureCompleteOutput{}, "", err
	}
	text := "Completed: " + completed.Description
	if activated != nil {
		text += "\nNow active: " + activated.Description
	}
	return featureCompleteOutput{Completed: viewOf(completed), Activated: viewOf(activated)}, text, nil
}

func (s *Server) reattributePreview(ctx context.Context, in reattributePreviewInput) (reattributePreviewOutput, string, error) {
	if in.MinScore < 0 {
		return reattributePreviewOutput{}, "", fmt.Errorf("%w: min_score cannot be negative", ErrInvalidInput)
	}
	minScore := in.MinScore
	if minScore == 0 {
		minScore = s.config.MinScore
	}
	report, err := s.job.Run(ctx, reattribution.Options{
		DryRun:     true,
		MinScore:   minScore,
		CatchAll:   in.CatchAll,
		PerFeature: in.PerFeature,
	})
	if err != nil {
		return reattributePreviewOutput{}, "", err
	}

	out := reattributePreviewOutput{
		Targets:     report.Targets,
		Candidates:  report.Candidates,
		Total:       report.Total,
		Assignments: make([]previewAssignment, 0, report.Total),
	}
	for _, a := range report.Ordered() {
		out.Assignments = append(out.Assignments, previewAssignment{
			EventID:   a.Event.ID,
			FeatureID: a.Feature.ID,
			Feature:   a.Feature.Description,
			Score:     a.Score,
			Keywords:  a.Keywords,
		})
	}

	var b strings.Builder
	if err := report.Render(&b); err != nil {
		return reattributePreviewOutput{}, "", err
	}
	return out, b.String(), nil
}
