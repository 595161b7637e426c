package reattribution

import (
	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/keywords"
)

// DefaultMinScore is the minimum keyword overlap for an assignment.
const DefaultMinScore = 3

// Assignment proposes linking an event to a feature.
type Assignment struct {
	Event *event.Event

	// PreviousFeatureID is the link to remove when applying, if any.
	PreviousFeatureID string

	Feature  *feature.Feature
	Score    int
	Keywords []string
}

// Assigner picks the best-matching target feature for each candidate.
type Assigner struct {
	// MinScore of zero or less means DefaultMinScore.
	MinScore int
}

type target struct {
	feature  *feature.Feature
	window   Window
	keywords keywords.Set
}

// Assign scores every candidate against every target whose window contains
// the event and keeps the highest score. Ties go to the target listed first.
// Candidates whose best score is below MinScore produce no assignment.
func (a Assigner) Assign(candidates []Candidate, targets []*feature.Feature) []Assignment {
	minScore := a.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	prepared := make([]target, 0, len(targets))
	for _, f := range targets {
		w, ok := FeatureWindow(f)
		if !ok {
			continue
		}
		prepared = append(prepared, target{
			feature:  f,
			window:   w,
			keywords: keywords.Extract(f.Description),
		})
	}

	var out []Assignment
	for _, c := range candidates {
		if as, ok := bestMatch(c, prepared); ok && as.Score >= minScore {
			out = append(out, as)
		}
	}
	return out
}

func bestMatch(c Candidate, targets []target) (Assignment, bool) {
	eventKeywords := keywords.Extract(c.Event.Text())

	var best Assignment
	found := false
	for _, t := range targets {
		if !t.window.Contains(c.Event.Timestamp) {
			continue
		}
		score := keywords.Score(eventKeywords, t.keywords)
		if score > best.Score {
			best = Assignment{
				Event:             c.Event,
				PreviousFeatureID: c.CurrentFeatureID,
				Feature:           t.feature,
				Score:             score,
				Keywords:          eventKeywords.Intersect(t.keywords),
			}
			found = true
		}
	}
	return best, found
}
