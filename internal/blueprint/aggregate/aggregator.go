// Package aggregate builds the engagement context snapshot that report
// generation consumes, blending the engagement's own records with any
// consultant-selected supporting records.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/repository/records"
)

const (
	scenarioLookback = 25
	notesLookback    = 20
	// sparsePool is the pool size at or below which unlinked scenario
	// executions are kept when none match the engagement.
	sparsePool = 5
	// summaryNames caps how many supporting records the summary names.
	summaryNames = 3
)

// Baseline metric defaults for fields the engagement's records lack.
const (
	defaultRisk       = 0.42
	defaultAutomation = 0.68
	defaultCoverage   = 64
	defaultTTVDays    = 28
	defaultValue      = 180000
	minTrialRisk      = 0.12
)

var reviewRisk = map[string]float64{
	"low":      0.28,
	"medium":   0.46,
	"high":     0.68,
	"critical": 0.85,
}

// Resolver resolves one supporting record selection.
type Resolver interface {
	Resolve(ctx context.Context, sel blueprint.RecordSelection) (blueprint.AugmentedRecord, error)
}

type Aggregator struct {
	records  records.Store
	resolver Resolver
	now      func() time.Time
}

func New(store records.Store, resolver Resolver, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{records: store, resolver: resolver, now: now}
}

// engagementData is what the engagement itself contributes. Every field is
// optional: a failed fetch leaves it empty.
type engagementData struct {
	engagement *blueprint.EngagementRecord
	trial      *blueprint.TrialRecord
	review     *blueprint.ReviewRecord
	executions []records.Record
	notes      []blueprint.EngagementNote
}

type resolved struct {
	aug blueprint.AugmentedRecord
	ok  bool
}

// Aggregate assembles the snapshot. Fetch and resolver failures degrade to
// absent data; the only error returned is context cancellation.
func (a *Aggregator) Aggregate(ctx context.Context, engagementID string, emphasis *blueprint.Emphasis, selections []blueprint.RecordSelection, tailoredPrompt string) (blueprint.EngagementContextSnapshot, error) {
	engagementID = strings.TrimSpace(engagementID)
	var data engagementData
	results := make([]resolved, len(selections))

	var g errgroup.Group
	g.Go(func() error {
		data.engagement = fetchOne[blueprint.EngagementRecord](ctx, a.records, engagementID, records.CollectionEngagements)
		return nil
	})
	g.Go(func() error {
		data.trial = fetchLatest[blueprint.TrialRecord](ctx, a.records, engagementID, records.CollectionTrials, records.CollectionTrialsLegacy)
		return nil
	})
	g.Go(func() error {
		data.review = fetchLatest[blueprint.ReviewRecord](ctx, a.records, engagementID, records.CollectionReviews, records.CollectionReviewsLegacy)
		return nil
	})
	g.Go(func() error {
		recs, err := a.records.Recent(ctx, records.CollectionScenarioExecutions, scenarioLookback)
		if err != nil {
			log.Printf("aggregate engagement=%s scenarios fetch failed: %v", engagementID, err)
			return nil
		}
		data.executions = recs
		return nil
	})
	g.Go(func() error {
		data.notes = a.fetchNotes(ctx, engagementID)
		return nil
	})
	for i, sel := range selections {
		g.Go(func() error {
			aug, err := a.resolver.Resolve(ctx, sel)
			if err != nil {
				log.Printf("aggregate engagement=%s selection=%s/%s skipped: %v", engagementID, sel.Source, sel.RecordID, err)
				return nil
			}
			results[i] = resolved{aug: aug, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return blueprint.EngagementContextSnapshot{}, err
	}

	now := a.now().UTC()
	snap := blueprint.EngagementContextSnapshot{
		EngagementID:     engagementID,
		CustomerName:     customerName(engagementID, data),
		Emphasis:         emphasis,
		TailoredPrompt:   tailoredPrompt,
		RecordSelections: selections,
	}
	if data.trial != nil {
		snap.TrialType = data.trial.TrialType
	}
	if data.review != nil {
		snap.ReviewPhase = data.review.Phase
	}

	scenarios := filterExecutions(engagementID, data.executions)
	if len(scenarios) == 0 {
		scenarios = []blueprint.ScenarioOutcome{syntheticScenario(engagementID)}
		snap.SyntheticContent = true
	}
	notes := convertNotes(data.notes)
	if len(notes) == 0 {
		notes = syntheticNotes(snap.CustomerName, now)
		snap.SyntheticContent = true
	}
	baseline := baselineMetrics(engagementID, data, scenarios)
	snap.Timeline = baselineTimeline(engagementID, data)

	// Merge in the order selections were supplied, not completion order.
	metrics := []blueprint.MetricSnapshot{baseline}
	scenarioLists := [][]blueprint.ScenarioOutcome{scenarios}
	for _, r := range results {
		if !r.ok {
			continue
		}
		notes = append(notes, r.aug.Notes...)
		scenarioLists = append(scenarioLists, r.aug.Scenarios)
		snap.Timeline = append(snap.Timeline, r.aug.TimelineEntries...)
		snap.Transcripts = append(snap.Transcripts, r.aug.Transcripts...)
		snap.SupportingRecords = append(snap.SupportingRecords, r.aug.Record)
		metrics = append(metrics, r.aug.Metrics)
	}

	snap.Metrics = baseline.Normalized()
	if len(metrics) > 1 {
		snap.Metrics = MeanMetrics(metrics)
	}
	snap.Notes = DedupNotes(notes)
	snap.Scenarios = MergeScenarios(scenarioLists...)
	snap.Summary = summarize(snap, data) + supportingSentence(snap.SupportingRecords)
	return snap, nil
}

func fetchOne[T any](ctx context.Context, store records.Store, id, collection string) *T {
	if id == "" {
		return nil
	}
	rec, err := store.Get(ctx, collection, id)
	if err != nil {
		if !errors.Is(err, records.ErrNotFound) {
			log.Printf("aggregate engagement=%s %s fetch failed: %v", id, collection, err)
		}
		return nil
	}
	return decode[T](rec)
}

// fetchLatest returns the newest record linked to the engagement from the
// first collection that has one.
func fetchLatest[T any](ctx context.Context, store records.Store, engagementID string, collections ...string) *T {
	for _, collection := range collections {
		recs, err := store.ListByEngagement(ctx, collection, engagementID, 1)
		if err != nil {
			log.Printf("aggregate engagement=%s %s fetch failed: %v", engagementID, collection, err)
			continue
		}
		if len(recs) > 0 {
			return decode[T](recs[0])
		}
	}
	return nil
}

func decode[T any](rec records.Record) *T {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		log.Printf("aggregate %s/%s decode failed: %v", rec.Collection, rec.ID, err)
		return nil
	}
	return &v
}

// fetchNotes is best-effort: errors read as an empty collection.
func (a *Aggregator) fetchNotes(ctx context.Context, engagementID string) []blueprint.EngagementNote {
	recs, err := a.records.ListByEngagement(ctx, records.CollectionEngagementNotes, engagementID, notesLookback)
	if err != nil {
		log.Printf("aggregate engagement=%s notes lookup failed: %v", engagementID, err)
		return nil
	}
	out := make([]blueprint.EngagementNote, 0, len(recs))
	for _, rec := range recs {
		if n := decode[blueprint.EngagementNote](rec); n != nil {
			out = append(out, *n)
		}
	}
	return out
}

func customerName(engagementID string, data engagementData) string {
	var candidates []string
	if data.engagement != nil {
		candidates = append(candidates, data.engagement.CustomerName, data.engagement.Name)
	}
	if data.trial != nil {
		candidates = append(candidates, data.trial.CustomerName)
	}
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return engagementID
}

// filterExecutions keeps executions linked to the engagement. When none are
// linked and the pool is sparse, the whole pool is kept.
func filterExecutions(engagementID string, recs []records.Record) []blueprint.ScenarioOutcome {
	var matched, pool []blueprint.ScenarioOutcome
	for _, rec := range recs {
		exec := decode[blueprint.ScenarioExecution](rec)
		if exec == nil {
			continue
		}
		if exec.ID == "" {
			exec.ID = rec.ID
		}
		outcome := executionOutcome(exec)
		pool = append(pool, outcome)
		if rec.EngagementID == engagementID || exec.EngagementID == engagementID {
			matched = append(matched, outcome)
		}
	}
	if len(matched) == 0 && len(pool) <= sparsePool {
		return pool
	}
	return matched
}

func executionOutcome(exec *blueprint.ScenarioExecution) blueprint.ScenarioOutcome {
	m := blueprint.ScenarioMetrics{
		DwellTimeHours:      blueprint.Round2(blueprint.Illustrative(exec.ID, "dwell", 4, 40)),
		DetectionsValidated: int(blueprint.Illustrative(exec.ID, "detections", 3, 13)),
		AutomationScore:     blueprint.Round2(blueprint.Illustrative(exec.ID, "automation", 0.5, 0.9)),
	}
	if exec.DwellTimeHours != nil {
		m.DwellTimeHours = *exec.DwellTimeHours
	}
	if exec.DetectionsValidated != nil {
		m.DetectionsValidated = *exec.DetectionsValidated
	}
	if exec.AutomationScore != nil {
		m.AutomationScore = *exec.AutomationScore
	}
	return blueprint.ScenarioOutcome{
		ID:         exec.ID,
		Name:       firstNonEmpty(exec.Name, exec.ID),
		Status:     firstNonEmpty(exec.Status, "completed"),
		Impact:     exec.Impact,
		Metrics:    m,
		Highlights: append([]string(nil), exec.Highlights...),
	}
}

func syntheticScenario(engagementID string) blueprint.ScenarioOutcome {
	return blueprint.ScenarioOutcome{
		ID:     "synthetic-baseline-" + engagementID,
		Name:   "Baseline detection and response walkthrough",
		Status: "planned",
		Impact: "Illustrative scenario pending recorded executions",
		Metrics: blueprint.ScenarioMetrics{
			DwellTimeHours:      blueprint.Round2(blueprint.Illustrative(engagementID, "dwell", 8, 30)),
			DetectionsValidated: int(blueprint.Illustrative(engagementID, "detections", 3, 9)),
			AutomationScore:     blueprint.Round2(blueprint.Illustrative(engagementID, "automation", 0.55, 0.8)),
		},
		Highlights: []string{"Illustrative"},
		Synthetic:  true,
	}
}

func syntheticNotes(customer string, at time.Time) []blueprint.Note {
	return []blueprint.Note{
		{
			Author:    "blueprint",
			Note:      fmt.Sprintf("Executive sponsors at %s expect a measurable reduction in risk exposure.", customer),
			CreatedAt: at,
			Category:  "executive",
			Synthetic: true,
		},
		{
			Author:    "blueprint",
			Note:      "Operations teams need automation that fits existing triage workflows.",
			CreatedAt: at,
			Category:  "operational",
			Synthetic: true,
		},
	}
}

func convertNotes(in []blueprint.EngagementNote) []blueprint.Note {
	out := make([]blueprint.Note, 0, len(in))
	for _, n := range in {
		text := strings.TrimSpace(n.Note)
		if text == "" {
			continue
		}
		out = append(out, blueprint.Note{
			Author:    firstNonEmpty(n.Author, "unknown"),
			Note:      text,
			CreatedAt: n.CreatedAt,
			Category:  n.Category,
		})
	}
	return out
}

func baselineMetrics(engagementID string, data engagementData, scenarios []blueprint.ScenarioOutcome) blueprint.MetricSnapshot {
	m := blueprint.MetricSnapshot{
		RiskScore:            defaultRisk,
		AutomationConfidence: defaultAutomation,
		CoveragePercentage:   defaultCoverage,
		TimeToValueDays:      defaultTTVDays,
		QuantifiedValue:      defaultValue,
	}

	var risks []float64
	if t := data.trial; t != nil {
		risks = append(risks, blueprint.Clamp(1-0.15*float64(t.CompletedMilestones()), minTrialRisk, 1))
		if t.CoveragePercentage != nil {
			m.CoveragePercentage = blueprint.Clamp(*t.CoveragePercentage, 0, 100)
		}
		if t.Budget != nil {
			m.QuantifiedValue = int64(math.Round(*t.Budget))
		}
		if !t.StartDate.IsZero() && t.EndDate.After(t.StartDate) {
			m.TimeToValueDays = int(math.Ceil(t.EndDate.Sub(t.StartDate).Hours() / 24))
		}
	}
	if r := data.review; r != nil {
		level := strings.ToLower(strings.TrimSpace(r.RiskLevel))
		if v, ok := reviewRisk[level]; ok {
			risks = append(risks, v)
		}
		if data.trial == nil || data.trial.CoveragePercentage == nil {
			if r.ValidatedRequirements != nil && r.TotalRequirements != nil && *r.TotalRequirements > 0 {
				m.CoveragePercentage = blueprint.Clamp(100*float64(*r.ValidatedRequirements)/float64(*r.TotalRequirements), 0, 100)
			}
		}
	}
	if len(risks) > 0 {
		var sum float64
		for _, r := range risks {
			sum += r
		}
		m.RiskScore = sum / float64(len(risks))
	}
	if m.QuantifiedValue == defaultValue && data.engagement != nil && data.engagement.PipelineValue != nil {
		m.QuantifiedValue = int64(math.Round(*data.engagement.PipelineValue))
	}

	var automation float64
	var real int
	for _, s := range scenarios {
		if s.Synthetic {
			continue
		}
		automation += s.Metrics.AutomationScore
		real++
	}
	if real > 0 {
		m.AutomationConfidence = blueprint.Clamp(automation/float64(real), 0, 1)
	}
	return m
}

func baselineTimeline(engagementID string, data engagementData) []blueprint.TimelineEntry {
	var out []blueprint.TimelineEntry
	if t := data.trial; t != nil {
		if !t.StartDate.IsZero() {
			out = append(out, blueprint.TimelineEntry{
				ID:        "trial-start-" + engagementID,
				Label:     "Trial kickoff",
				Timestamp: t.StartDate.UTC(),
				Category:  "trial",
			})
		}
		for i, ms := range t.Milestones {
			if ms.Completed() && !ms.DueDate.IsZero() {
				out = append(out, blueprint.TimelineEntry{
					ID:        fmt.Sprintf("trial-milestone-%s-%d", engagementID, i),
					Label:     "Milestone completed: " + ms.Title,
					Timestamp: ms.DueDate.UTC(),
					Category:  "trial",
				})
			}
		}
	}
	if r := data.review; r != nil && !r.UpdatedAt.IsZero() {
		out = append(out, blueprint.TimelineEntry{
			ID:          "review-" + engagementID,
			Label:       "Technical requirements review updated",
			Description: r.Phase,
			Timestamp:   r.UpdatedAt.UTC(),
			Category:    "review",
		})
	}
	return out
}

func summarize(snap blueprint.EngagementContextSnapshot, data engagementData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s engagement with %d scenario outcomes and %d notes.", snap.CustomerName, len(snap.Scenarios), len(snap.Notes))
	if data.trial != nil {
		fmt.Fprintf(&b, " Trial progress: %d of %d milestones complete.", data.trial.CompletedMilestones(), len(data.trial.Milestones))
	}
	if snap.ReviewPhase != "" {
		fmt.Fprintf(&b, " Technical review in %s phase.", snap.ReviewPhase)
	}
	return b.String()
}

// supportingSentence names up to three blended records, with an ellipsis
// when more exist.
func supportingSentence(recs []blueprint.SupportingRecord) string {
	if len(recs) == 0 {
		return ""
	}
	names := make([]string, 0, summaryNames)
	for i, r := range recs {
		if i == summaryNames {
			break
		}
		names = append(names, firstNonEmpty(r.DisplayName, r.RecordID))
	}
	s := " Supporting context blended from " + strings.Join(names, ", ")
	if len(recs) > summaryNames {
		s += ", …"
	}
	return s + "."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
