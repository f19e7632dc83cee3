package blueprint

import (
	"encoding/json"
	"strings"
	"time"
)

// MaxRecordSelections bounds how many supporting records one request may blend.
const MaxRecordSelections = 20

// RecordSelection is a consultant-chosen supporting record reference.
type RecordSelection struct {
	Source        Source          `json:"source"`
	RecordID      string          `json:"recordId"`
	DisplayName   string          `json:"displayName"`
	InlineContext json.RawMessage `json:"inlineContext,omitempty"`
}

// HasInlineContext reports whether the selection carries its own record data.
func (s RecordSelection) HasInlineContext() bool {
	raw := strings.TrimSpace(string(s.InlineContext))
	return raw != "" && raw != "null" && raw != "{}"
}

// Label returns the display name, falling back to the record id.
func (s RecordSelection) Label() string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(s.RecordID)
}

// Emphasis steers the narrative toward specific focus areas.
type Emphasis struct {
	Focus     []string `json:"focus,omitempty"`
	Audiences []string `json:"audiences,omitempty"`
	Outcomes  []string `json:"outcomes,omitempty"`
}

// Empty reports whether no emphasis was supplied.
func (e *Emphasis) Empty() bool {
	return e == nil || (len(e.Focus) == 0 && len(e.Audiences) == 0 && len(e.Outcomes) == 0)
}

// MetricSnapshot is the headline metric set of an engagement.
type MetricSnapshot struct {
	RiskScore            float64 `json:"riskScore"`
	AutomationConfidence float64 `json:"automationConfidence"`
	CoveragePercentage   float64 `json:"coveragePercentage"`
	TimeToValueDays      int     `json:"timeToValueDays"`
	QuantifiedValue      int64   `json:"quantifiedValue"`
}

type ScenarioMetrics struct {
	DwellTimeHours      float64 `json:"dwellTimeHours"`
	DetectionsValidated int     `json:"detectionsValidated"`
	AutomationScore     float64 `json:"automationScore"`
}

// ScenarioOutcome is identified by ID; merges are last-write-wins.
type ScenarioOutcome struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Impact     string          `json:"impact"`
	Metrics    ScenarioMetrics `json:"metrics"`
	Highlights []string        `json:"highlights"`
	Synthetic  bool            `json:"synthetic,omitempty"`
}

// Note is deduplicated by (Note, Author); first occurrence wins.
type Note struct {
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	Category  string    `json:"category,omitempty"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

type TimelineEntry struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Category    string    `json:"category"`
	Source      string    `json:"source,omitempty"`
}

type TranscriptEstimate struct {
	Source        string `json:"source"`
	TokenEstimate int    `json:"tokenEstimate"`
}

// AugmentedRecord is the normalized contribution of one supporting record.
type AugmentedRecord struct {
	Selection       RecordSelection      `json:"selection"`
	Record          SupportingRecord     `json:"record"`
	Notes           []Note               `json:"notes"`
	Scenarios       []ScenarioOutcome    `json:"scenarios"`
	Metrics         MetricSnapshot       `json:"metrics"`
	TimelineEntries []TimelineEntry      `json:"timelineEntries"`
	Transcripts     []TranscriptEstimate `json:"transcripts"`
}

// EngagementContextSnapshot is the aggregated view fed to report generation.
type EngagementContextSnapshot struct {
	EngagementID      string               `json:"engagementId"`
	CustomerName      string               `json:"customerName"`
	TrialType         string               `json:"trialType,omitempty"`
	ReviewPhase       string               `json:"reviewPhase,omitempty"`
	Summary           string               `json:"summary"`
	Emphasis          *Emphasis            `json:"emphasis,omitempty"`
	Metrics           MetricSnapshot       `json:"metrics"`
	Scenarios         []ScenarioOutcome    `json:"scenarios"`
	Notes             []Note               `json:"notes"`
	Timeline          []TimelineEntry      `json:"timeline"`
	Transcripts       []TranscriptEstimate `json:"transcripts,omitempty"`
	SupportingRecords []SupportingRecord   `json:"supportingRecords,omitempty"`
	TailoredPrompt    string               `json:"tailoredPrompt,omitempty"`
	RecordSelections  []RecordSelection    `json:"recordSelections,omitempty"`
	SyntheticContent  bool                 `json:"syntheticContent,omitempty"`
}

// GenerationRequest is the single request surface of the pipeline.
type GenerationRequest struct {
	EngagementID     string            `json:"engagementId"`
	ExecutiveTone    string            `json:"executiveTone,omitempty"`
	Emphasis         *Emphasis         `json:"emphasis,omitempty"`
	RecordSelections []RecordSelection `json:"recordSelections,omitempty"`
	TailoredPrompt   string            `json:"tailoredPrompt,omitempty"`
}

// Requester is the authenticated caller identity.
type Requester struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type GenerationResult struct {
	BlueprintID string `json:"blueprintId"`
	Status      Status `json:"status"`
	PayloadPath string `json:"payloadPath"`
}
