package tracker

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
)

// NoFeaturesHint is shown at session start when a project has no features.
const NoFeaturesHint = "No feature_list.json found in this project. Consider creating one for structured task management."

const overviewLimit = 10

// SessionContext renders the context injected into a new agent session.
func SessionContext(features []*feature.Feature) string {
	if len(features) == 0 {
		return NoFeaturesHint
	}

	total := len(features)
	completed := 0
	for _, f := range features {
		if f.Status == feature.StatusComplete {
			completed++
		}
	}
	progress := fmt.Sprintf("**Progress:** %d/%d features complete (%d%%)", completed, total, completed*100/total)

	var b strings.Builder
	if active := GetActive(features); active != nil {
		b.WriteString("## Active Feature\n\n")
		fmt.Fprintf(&b, "**Currently Working On:** %s\n\n", active.Description)
		b.WriteString(progress + "\n\n")
		fmt.Fprintf(&b, "**Auto-Completion:** %s | Work count: %d\n\n", active.Criteria.Type(), active.WorkCount)
		b.WriteString("All tool calls will be linked to this feature. Features auto-complete when their " +
			"criteria are met (build passes, tests pass, or the work count threshold is reached).\n\n---")
		return b.String()
	}

	b.WriteString("## No Active Feature\n\n")
	b.WriteString(progress + "\n\n")
	b.WriteString("**Features:**\n")
	for i, f := range features {
		if i == overviewLimit {
			break
		}
		mark := " "
		if f.Status == feature.StatusComplete {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%d] [%s] %s\n", i, mark, truncate(f.Description, 60))
	}
	b.WriteString("\n**Commands:**\n")
	b.WriteString("- `kanban features next` - activate the next pending feature\n")
	b.WriteString("- `kanban features complete` - force complete the active feature")
	return b.String()
}
