package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	httpserver "github.com/fyrsmithlabs/agentkanban/internal/http"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

const (
	topFeaturesLimit   = 25
	transitionsLimit   = 10
	statusDescLimit    = 60
	statusTimestampLen = 19
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// featureCount pairs a feature with its linked event count.
type featureCount struct {
	Feature *feature.Feature
	Events  int
}

// diagnostics is the data behind "kanban status".
type diagnostics struct {
	Stats           feature.Stats
	ByStatus        map[feature.Status]int
	PendingWithWork []featureCount
	TopFeatures     []featureCount
	Transitions     []feature.Transition
}

func newStatusCmd(a *app) *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show feature progress and attribution diagnostics",
		Long: `Shows the status distribution, pending features that already have
linked events, the features with the most events, recent status transitions
and overall progress. Covers every project unless --project is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			d, err := collectDiagnostics(cmd.Context(), db.Features(), db.Events(), db.Sessions(), projectDir)
			if err != nil {
				return err
			}
			return d.render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&projectDir, "project", "p", "", "limit to one project directory")
	return cmd
}

func collectDiagnostics(ctx context.Context, features feature.Repository, events event.Repository, sessions session.Repository, projectDir string) (*diagnostics, error) {
	stats, err := httpserver.Stats(ctx, features, sessions, projectDir)
	if err != nil {
		return nil, err
	}

	projects := []string{projectDir}
	if projectDir == "" {
		if projects, err = features.Projects(ctx); err != nil {
			return nil, fmt.Errorf("listing projects: %w", err)
		}
	}
	var all []*feature.Feature
	for _, p := range projects {
		fs, err := features.List(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("listing features for %s: %w", p, err)
		}
		all = append(all, fs...)
	}

	counts, err := events.CountByFeature(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	d := &diagnostics{Stats: stats, ByStatus: make(map[feature.Status]int)}
	for _, f := range all {
		d.ByStatus[f.Status]++
		n := counts[f.ID]
		if f.Status == feature.StatusPending && n > 0 {
			d.PendingWithWork = append(d.PendingWithWork, featureCount{Feature: f, Events: n})
		}
		if !f.IsSessionWork && n > 0 {
			d.TopFeatures = append(d.TopFeatures, featureCount{Feature: f, Events: n})
		}
	}
	sort.SliceStable(d.TopFeatures, func(i, j int) bool {
		return d.TopFeatures[i].Events > d.TopFeatures[j].Events
	})
	if len(d.TopFeatures) > topFeaturesLimit {
		d.TopFeatures = d.TopFeatures[:topFeaturesLimit]
	}

	if d.Transitions, err = features.Transitions(ctx, transitionsLimit); err != nil {
		return nil, fmt.Errorf("loading transitions: %w", err)
	}
	return d, nil
}

func (d *diagnostics) render(w io.Writer) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Feature Status Distribution") + "\n")
	for _, s := range []feature.Status{feature.StatusPending, feature.StatusInProgress, feature.StatusComplete, feature.StatusBlocked} {
		fmt.Fprintf(&b, "  %-12s %d\n", s, d.ByStatus[s])
	}

	b.WriteString("\n" + headerStyle.Render("Pending Features With Linked Events") + "\n")
	if len(d.PendingWithWork) == 0 {
		b.WriteString(labelStyle.Render("  none") + "\n")
	}
	for _, fc := range d.PendingWithWork {
		b.WriteString("  " + warnStyle.Render(fmt.Sprintf("%4d", fc.Events)) + "  " + clip(fc.Feature.Description, statusDescLimit) + "\n")
	}

	b.WriteString("\n" + headerStyle.Render("Top Features by Event Count") + "\n")
	if len(d.TopFeatures) == 0 {
		b.WriteString(labelStyle.Render("  none") + "\n")
	}
	for _, fc := range d.TopFeatures {
		fmt.Fprintf(&b, "  %4d  [%s] %s\n", fc.Events, fc.Feature.Status, clip(fc.Feature.Description, statusDescLimit))
	}

	b.WriteString("\n" + headerStyle.Render("Recent Transitions") + "\n")
	if len(d.Transitions) == 0 {
		b.WriteString(labelStyle.Render("  none") + "\n")
	}
	for _, t := range d.Transitions {
		fmt.Fprintf(&b, "  %s  %s: %s -> %s (%s)\n",
			clip(t.At.UTC().Format("2006-01-02 15:04:05"), statusTimestampLen), t.FeatureID, t.From, t.To, t.By)
	}

	b.WriteString("\n" + headerStyle.Render("Overall") + "\n")
	fmt.Fprintf(&b, "  %s %d/%d complete (%.1f%%), %d in progress\n",
		labelStyle.Render("Features:"), d.Stats.Completed, d.Stats.Total, d.Stats.Percentage, d.Stats.InProgress)
	fmt.Fprintf(&b, "  %s %d\n", labelStyle.Render("Active sessions:"), d.Stats.ActiveSessions)

	_, err := io.WriteString(w, b.String())
	return err
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
