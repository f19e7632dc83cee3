package resolver

import (
	"fmt"
	"math"
	"strings"
	"time"

	"blueprint/internal/blueprint"
)

// Defaults used when a source record lacks the field a formula needs.
const (
	defaultQuantifiedValue = 150000
	defaultTimeToValueDays = 30
	minTrialRisk           = 0.12
)

var reviewRiskByLevel = map[string]float64{
	"low":      0.28,
	"medium":   0.46,
	"high":     0.68,
	"critical": 0.85,
}

func deriveEngagement(sel blueprint.RecordSelection, rec *blueprint.EngagementRecord) blueprint.AugmentedRecord {
	id := sel.RecordID
	name := firstNonEmpty(sel.DisplayName, rec.Name, rec.CustomerName, id)
	stage := firstNonEmpty(rec.Stage, "discovery")
	status := firstNonEmpty(rec.Status, "active")

	summary := fmt.Sprintf("%s engagement for %s is in the %s stage, owned by %s.",
		name, firstNonEmpty(rec.CustomerName, "the customer"), stage, firstNonEmpty(rec.Owner, "the account team"))

	highlights := []string{"Stage:" + stage}
	if rec.HealthScore != nil {
		highlights = append(highlights, "Health:"+formatScore(*rec.HealthScore))
	}
	if rec.PipelineValue != nil {
		highlights = append(highlights, fmt.Sprintf("Value:%.0f", *rec.PipelineValue))
	}
	if rec.Industry != "" {
		highlights = append(highlights, "Industry:"+rec.Industry)
	}

	health := vary(id, "health", 55, 85)
	if rec.HealthScore != nil {
		health = blueprint.Clamp(*rec.HealthScore, 0, 100)
	}
	detections := varyInt(id, "detections", 2, 8)
	if len(rec.Objectives) > 0 {
		detections = len(rec.Objectives)
	}
	scenarioStatus := "monitoring"
	switch {
	case health >= 70:
		scenarioStatus = "healthy"
	case health < 50:
		scenarioStatus = "at_risk"
	}
	scenarios := []blueprint.ScenarioOutcome{{
		ID:     "engagement-health-" + id,
		Name:   name + " relationship health",
		Status: scenarioStatus,
		Impact: fmt.Sprintf("Health score %s across %d tracked objectives", formatScore(health), detections),
		Metrics: blueprint.ScenarioMetrics{
			DwellTimeHours:      blueprint.Round2((100 - health) / 4),
			DetectionsValidated: detections,
			AutomationScore:     blueprint.Round2(health / 100),
		},
		Highlights: append([]string(nil), rec.Objectives...),
	}}

	value := int64(defaultQuantifiedValue)
	if rec.PipelineValue != nil {
		value = int64(math.Round(*rec.PipelineValue))
	}
	metrics := blueprint.MetricSnapshot{
		RiskScore:            blueprint.Clamp(1-health/100, 0, 1),
		AutomationConfidence: blueprint.Clamp(0.6+0.3*health/100, 0, 1),
		CoveragePercentage:   health,
		TimeToValueDays:      defaultTimeToValueDays,
		QuantifiedValue:      value,
	}

	var timeline []blueprint.TimelineEntry
	if !rec.UpdatedAt.IsZero() {
		timeline = append(timeline, blueprint.TimelineEntry{
			ID:        "engagement-updated-" + id,
			Label:     name + " updated",
			Timestamp: rec.UpdatedAt.UTC(),
			Category:  "engagement",
			Source:    string(sel.Source),
		})
	}

	return blueprint.AugmentedRecord{
		Selection: sel,
		Record: blueprint.SupportingRecord{
			Source:      sel.Source,
			RecordID:    id,
			DisplayName: name,
			TypeLabel:   "Engagement",
			Status:      status,
			Summary:     summary,
			Highlights:  highlights,
			Engagement:  rec,
		},
		Notes:           convertNotes(rec.Notes, "engagement"),
		Scenarios:       scenarios,
		Metrics:         metrics,
		TimelineEntries: timeline,
	}
}

func deriveTrial(sel blueprint.RecordSelection, rec *blueprint.TrialRecord) blueprint.AugmentedRecord {
	id := sel.RecordID
	name := firstNonEmpty(sel.DisplayName, rec.Name, id)
	completed := rec.CompletedMilestones()
	total := len(rec.Milestones)

	progress := vary(id, "progress", 0.3, 0.7)
	if total > 0 {
		progress = float64(completed) / float64(total)
	}
	// Risk falls as milestones complete; an untouched trial stays at 1.0.
	risk := blueprint.Clamp(1-0.88*progress, minTrialRisk, 1.0)

	highlights := []string{
		fmt.Sprintf("Milestones:%d/%d", completed, total),
		"Risk:" + formatScore(risk),
	}
	if rec.TrialType != "" {
		highlights = append(highlights, "Type:"+rec.TrialType)
	}
	if len(rec.Objectives) > 0 {
		highlights = append(highlights, fmt.Sprintf("Objectives:%d", len(rec.Objectives)))
	}

	coverage := progress * 100
	if rec.CoveragePercentage != nil {
		coverage = blueprint.Clamp(*rec.CoveragePercentage, 0, 100)
	}
	status := firstNonEmpty(rec.Status, "in_progress")
	summary := fmt.Sprintf("%s trial for %s has completed %d of %d milestones with %s%% scenario coverage.",
		name, firstNonEmpty(rec.CustomerName, "the customer"), completed, total, formatScore(coverage))

	scenarios := []blueprint.ScenarioOutcome{{
		ID:     "trial-progress-" + id,
		Name:   name + " milestone progress",
		Status: trialScenarioStatus(progress),
		Impact: fmt.Sprintf("%d of %d milestones complete", completed, total),
		Metrics: blueprint.ScenarioMetrics{
			DwellTimeHours:      blueprint.Round2(vary(id, "dwell", 4, 36)),
			DetectionsValidated: completed,
			AutomationScore:     blueprint.Round2(blueprint.Clamp(coverage/100, 0, 1)),
		},
		Highlights: milestoneTitles(rec.Milestones, true),
	}}
	if len(rec.SuccessCriteria) > 0 {
		scenarios = append(scenarios, blueprint.ScenarioOutcome{
			ID:     "trial-criteria-" + id,
			Name:   name + " success criteria",
			Status: status,
			Impact: fmt.Sprintf("%d success criteria under validation", len(rec.SuccessCriteria)),
			Metrics: blueprint.ScenarioMetrics{
				DwellTimeHours:      blueprint.Round2(vary(id, "criteria-dwell", 2, 24)),
				DetectionsValidated: len(rec.SuccessCriteria),
				AutomationScore:     blueprint.Round2(vary(id, "criteria-automation", 0.55, 0.9)),
			},
			Highlights: append([]string(nil), rec.SuccessCriteria...),
		})
	}

	ttv := defaultTimeToValueDays
	if !rec.EndDate.IsZero() && !rec.StartDate.IsZero() && rec.EndDate.After(rec.StartDate) {
		ttv = int(math.Ceil(rec.EndDate.Sub(rec.StartDate).Hours() / 24))
	} else if total > 0 {
		ttv = 14 + 3*(total-completed)
	}
	value := int64(defaultQuantifiedValue)
	if rec.Budget != nil {
		value = int64(math.Round(*rec.Budget))
	}
	metrics := blueprint.MetricSnapshot{
		RiskScore:            risk,
		AutomationConfidence: blueprint.Clamp(0.5+0.45*progress, 0, 1),
		CoveragePercentage:   coverage,
		TimeToValueDays:      ttv,
		QuantifiedValue:      value,
	}

	var timeline []blueprint.TimelineEntry
	if !rec.StartDate.IsZero() {
		timeline = append(timeline, trialEntry(sel, "kickoff", name+" kickoff", rec.StartDate))
	}
	for i, m := range rec.Milestones {
		if m.Completed() && !m.DueDate.IsZero() {
			timeline = append(timeline, trialEntry(sel, fmt.Sprintf("milestone-%d", i), "Milestone completed: "+m.Title, m.DueDate))
		}
	}
	if !rec.EndDate.IsZero() {
		timeline = append(timeline, trialEntry(sel, "target-end", name+" target end", rec.EndDate))
	}

	return blueprint.AugmentedRecord{
		Selection: sel,
		Record: blueprint.SupportingRecord{
			Source:      sel.Source,
			RecordID:    id,
			DisplayName: name,
			TypeLabel:   trialTypeLabel(rec.TrialType),
			Status:      status,
			Summary:     summary,
			Highlights:  highlights,
			Trial:       rec,
		},
		Notes:           convertNotes(rec.Notes, "trial"),
		Scenarios:       scenarios,
		Metrics:         metrics,
		TimelineEntries: timeline,
	}
}

func trialScenarioStatus(progress float64) string {
	switch {
	case progress >= 1:
		return "completed"
	case progress >= 0.5:
		return "on_track"
	case progress > 0:
		return "in_progress"
	}
	return "not_started"
}

func trialTypeLabel(trialType string) string {
	if t := strings.TrimSpace(trialType); t != "" {
		return "Proof of Value (" + t + ")"
	}
	return "Proof of Value"
}

func trialEntry(sel blueprint.RecordSelection, suffix, label string, at time.Time) blueprint.TimelineEntry {
	return blueprint.TimelineEntry{
		ID:        fmt.Sprintf("trial-%s-%s", sel.RecordID, suffix),
		Label:     label,
		Timestamp: at.UTC(),
		Category:  "trial",
		Source:    string(sel.Source),
	}
}

func milestoneTitles(ms []blueprint.Milestone, completed bool) []string {
	var out []string
	for _, m := range ms {
		if m.Completed() == completed && strings.TrimSpace(m.Title) != "" {
			out = append(out, m.Title)
		}
	}
	return out
}

func deriveReview(sel blueprint.RecordSelection, rec *blueprint.ReviewRecord) blueprint.AugmentedRecord {
	id := sel.RecordID
	name := firstNonEmpty(sel.DisplayName, rec.Title, id)
	phase := firstNonEmpty(rec.Phase, "assessment")
	level := strings.ToLower(strings.TrimSpace(rec.RiskLevel))
	risk, ok := reviewRiskByLevel[level]
	if !ok {
		risk = 0.5
		level = firstNonEmpty(level, "unrated")
	}

	ratio := vary(id, "validated", 0.4, 0.8)
	validated, total := -1, -1
	if rec.ValidatedRequirements != nil && rec.TotalRequirements != nil && *rec.TotalRequirements > 0 {
		validated, total = *rec.ValidatedRequirements, *rec.TotalRequirements
		ratio = blueprint.Clamp(float64(validated)/float64(total), 0, 1)
	}

	highlights := []string{"Risk:" + level, "Phase:" + phase, fmt.Sprintf("Findings:%d", len(rec.Findings))}
	if total > 0 {
		highlights = append(highlights, fmt.Sprintf("Validated:%d/%d", validated, total))
	}
	for i, f := range rec.Findings {
		if i == 3 {
			break
		}
		highlights = append(highlights, "Finding:"+f)
	}

	summary := fmt.Sprintf("%s is in the %s phase with %d findings at %s risk.", name, phase, len(rec.Findings), level)

	detections := varyInt(id, "detections", 3, 12)
	if validated >= 0 {
		detections = validated
	}
	scenarioStatus := "in_review"
	if ratio >= 0.8 {
		scenarioStatus = "validated"
	}
	scenarios := []blueprint.ScenarioOutcome{{
		ID:     "review-readiness-" + id,
		Name:   name + " requirement readiness",
		Status: scenarioStatus,
		Impact: fmt.Sprintf("%s%% of requirements validated", formatScore(ratio*100)),
		Metrics: blueprint.ScenarioMetrics{
			DwellTimeHours:      blueprint.Round2(vary(id, "dwell", 6, 48)),
			DetectionsValidated: detections,
			AutomationScore:     blueprint.Round2(ratio),
		},
		Highlights: append([]string(nil), rec.Findings...),
	}}

	metrics := blueprint.MetricSnapshot{
		RiskScore:            risk,
		AutomationConfidence: blueprint.Clamp(0.55+0.4*ratio, 0, 1),
		CoveragePercentage:   ratio * 100,
		TimeToValueDays:      21 + 2*len(rec.Findings),
		QuantifiedValue:      defaultQuantifiedValue,
	}

	var timeline []blueprint.TimelineEntry
	if !rec.UpdatedAt.IsZero() {
		timeline = append(timeline, blueprint.TimelineEntry{
			ID:          "review-updated-" + id,
			Label:       name + " updated",
			Description: "Phase " + phase,
			Timestamp:   rec.UpdatedAt.UTC(),
			Category:    "review",
			Source:      string(sel.Source),
		})
	}

	return blueprint.AugmentedRecord{
		Selection: sel,
		Record: blueprint.SupportingRecord{
			Source:      sel.Source,
			RecordID:    id,
			DisplayName: name,
			TypeLabel:   "Technical Requirements Review",
			Status:      firstNonEmpty(rec.Status, phase),
			Summary:     summary,
			Highlights:  highlights,
			Review:      rec,
		},
		Notes:           convertNotes(rec.Notes, "review"),
		Scenarios:       scenarios,
		Metrics:         metrics,
		TimelineEntries: timeline,
	}
}

func deriveHealth(sel blueprint.RecordSelection, rec *blueprint.HealthRecord) blueprint.AugmentedRecord {
	id := sel.RecordID
	name := firstNonEmpty(sel.DisplayName, rec.CustomerName, id)
	trend := firstNonEmpty(strings.ToLower(rec.Trend), "steady")

	score := vary(id, "score", 55, 80)
	if rec.Score != nil {
		score = blueprint.Clamp(*rec.Score, 0, 100)
	}
	risk := blueprint.Clamp(1-score/100+0.05*float64(len(rec.Risks)), 0, 1)

	highlights := []string{"Health:" + formatScore(score), "Trend:" + trend, "Risk:" + formatScore(risk)}
	for i, r := range rec.Risks {
		if i == 3 {
			break
		}
		highlights = append(highlights, "Signal:"+r)
	}
	summary := fmt.Sprintf("Customer health for %s scores %s with a %s trend and %d active risk signals.",
		name, formatScore(score), trend, len(rec.Risks))

	var scenarios []blueprint.ScenarioOutcome
	if rec.Score != nil || len(rec.Signals) > 0 {
		scenarios = append(scenarios, blueprint.ScenarioOutcome{
			ID:     "health-signal-" + id,
			Name:   name + " health signals",
			Status: trend,
			Impact: fmt.Sprintf("%d signals tracked, %d risks open", len(rec.Signals), len(rec.Risks)),
			Metrics: blueprint.ScenarioMetrics{
				DwellTimeHours:      blueprint.Round2(vary(id, "dwell", 2, 20)),
				DetectionsValidated: len(rec.Signals),
				AutomationScore:     blueprint.Round2(score / 100),
			},
			Highlights: append([]string(nil), rec.Signals...),
		})
	}

	metrics := blueprint.MetricSnapshot{
		RiskScore:            risk,
		AutomationConfidence: 0.62,
		CoveragePercentage:   score,
		TimeToValueDays:      defaultTimeToValueDays,
		QuantifiedValue:      defaultQuantifiedValue,
	}

	var timeline []blueprint.TimelineEntry
	if !rec.LastCheckedAt.IsZero() {
		timeline = append(timeline, blueprint.TimelineEntry{
			ID:        "health-check-" + id,
			Label:     "Health check for " + name,
			Timestamp: rec.LastCheckedAt.UTC(),
			Category:  "health",
			Source:    string(sel.Source),
		})
	}

	return blueprint.AugmentedRecord{
		Selection: sel,
		Record: blueprint.SupportingRecord{
			Source:      sel.Source,
			RecordID:    id,
			DisplayName: name,
			TypeLabel:   "Customer Health",
			Status:      trend,
			Summary:     summary,
			Highlights:  highlights,
			Health:      rec,
		},
		Notes:           convertNotes(rec.Notes, "health"),
		Scenarios:       scenarios,
		Metrics:         metrics,
		TimelineEntries: timeline,
	}
}
