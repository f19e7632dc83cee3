package aggregate

import (
	"math"

	"blueprint/internal/blueprint"
)

// MeanMetrics returns the field-wise arithmetic mean of snaps. Scores and
// percentages are rounded to two decimals, days and value to integers.
func MeanMetrics(snaps []blueprint.MetricSnapshot) blueprint.MetricSnapshot {
	if len(snaps) == 0 {
		return blueprint.MetricSnapshot{}
	}
	var risk, automation, coverage, ttv, value float64
	for _, s := range snaps {
		risk += s.RiskScore
		automation += s.AutomationConfidence
		coverage += s.CoveragePercentage
		ttv += float64(s.TimeToValueDays)
		value += float64(s.QuantifiedValue)
	}
	n := float64(len(snaps))
	return blueprint.MetricSnapshot{
		RiskScore:            blueprint.Round2(risk / n),
		AutomationConfidence: blueprint.Round2(automation / n),
		CoveragePercentage:   blueprint.Round2(coverage / n),
		TimeToValueDays:      int(math.Round(ttv / n)),
		QuantifiedValue:      int64(math.Round(value / n)),
	}
}

type noteKey struct {
	note   string
	author string
}

// DedupNotes drops repeated (note, author) pairs, keeping the first
// occurrence and the original order.
func DedupNotes(notes []blueprint.Note) []blueprint.Note {
	seen := make(map[noteKey]struct{}, len(notes))
	out := make([]blueprint.Note, 0, len(notes))
	for _, n := range notes {
		k := noteKey{note: n.Note, author: n.Author}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}

// MergeScenarios concatenates lists, replacing an earlier scenario with a
// later one of the same id. A replaced scenario keeps its first position.
func MergeScenarios(lists ...[]blueprint.ScenarioOutcome) []blueprint.ScenarioOutcome {
	index := make(map[string]int)
	var out []blueprint.ScenarioOutcome
	for _, list := range lists {
		for _, s := range list {
			if i, ok := index[s.ID]; ok {
				out[i] = s
				continue
			}
			index[s.ID] = len(out)
			out = append(out, s)
		}
	}
	return out
}
