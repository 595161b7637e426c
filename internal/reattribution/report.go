package reattribution

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

const (
	reportDetailLimit   = 5
	reportKeywordLimit  = 5
	reportDescLimit     = 60
	reportTimestampSize = 19
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	featureStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// FeatureReport lists the assignments won by one target feature, highest
// score first.
type FeatureReport struct {
	Feature     *feature.Feature
	Assignments []Assignment
}

// Report summarizes a reattribution run.
type Report struct {
	DryRun     bool
	MinScore   int
	Targets    int
	Candidates int
	Features   []FeatureReport
	Total      int
	Linked     int
	Failed     []Failure
}

// groupByFeature orders assignments under their target, keeping target
// order and sorting each group by descending score. Equal scores keep event
// order.
func groupByFeature(targets []*feature.Feature, assignments []Assignment) []FeatureReport {
	byID := make(map[string][]Assignment)
	for _, a := range assignments {
		byID[a.Feature.ID] = append(byID[a.Feature.ID], a)
	}
	out := make([]FeatureReport, 0, len(targets))
	for _, f := range targets {
		group := byID[f.ID]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Score > group[j].Score })
		out = append(out, FeatureReport{Feature: f, Assignments: group})
	}
	return out
}

// Ordered returns every assignment in report order.
func (r *Report) Ordered() []Assignment {
	var out []Assignment
	for _, fr := range r.Features {
		out = append(out, fr.Assignments...)
	}
	return out
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) error {
	var b strings.Builder

	title := "Event Re-Attribution (Best-Match Algorithm)"
	if r.DryRun {
		title = "[DRY RUN] " + title
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	fmt.Fprintf(&b, "Found %d completed features with 0 events\n", r.Targets)

	if r.Targets == 0 {
		b.WriteString("Nothing to do.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	fmt.Fprintf(&b, "Found %d candidate events in time window\n", r.Candidates)

	for _, fr := range r.Features {
		f := fr.Feature
		b.WriteString("\n" + featureStyle.Render(truncate(f.Description, reportDescLimit)+"...") + "\n")
		fmt.Fprintf(&b, "   %s\n", dimStyle.Render(fmt.Sprintf("Window: %s - %s", stamp(f.CreatedAt.String()), completedStamp(f))))

		if len(fr.Assignments) == 0 {
			fmt.Fprintf(&b, "   No matching events found (score >= %d)\n", r.MinScore)
			continue
		}
		b.WriteString("   " + matchStyle.Render(fmt.Sprintf("%d events matched", len(fr.Assignments))) + "\n")

		for i, a := range fr.Assignments {
			if i == reportDetailLimit {
				break
			}
			tool := a.Event.ToolName
			if tool == "" {
				tool = "N/A"
			}
			kws := a.Keywords
			if len(kws) > reportKeywordLimit {
				kws = kws[:reportKeywordLimit]
			}
			fmt.Fprintf(&b, "      - [%d] %s: %s\n", a.Score, a.Event.Type, tool)
			fmt.Fprintf(&b, "        Keywords: %s\n", strings.Join(kws, ", "))
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	if r.DryRun {
		fmt.Fprintf(&b, "[DRY RUN] Would reattribute: %d events\n", r.Total)
	} else {
		fmt.Fprintf(&b, "Reattributed: %d events\n", r.Total-len(r.Failed))
	}
	if len(r.Failed) > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Failed: %d events", len(r.Failed))) + "\n")
		for _, f := range r.Failed {
			fmt.Fprintf(&b, "   %s -> %s: %v\n", f.EventID, f.FeatureID, f.Err)
		}
	}
	if r.DryRun && r.Total > 0 {
		b.WriteString("\nTo apply changes, run with: --apply\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func completedStamp(f *feature.Feature) string {
	if f.CompletedAt == nil {
		return ""
	}
	return stamp(f.CompletedAt.String())
}

// stamp trims a timestamp to second precision.
func stamp(s string) string {
	return truncate(s, reportTimestampSize)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
