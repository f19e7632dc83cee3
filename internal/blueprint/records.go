package blueprint

import (
	"fmt"
	"strings"
	"time"
)

// Source is the kind of a supporting record.
type Source string

const (
	SourceEngagement Source = "engagement"
	SourceTrial      Source = "trial"
	SourceReview     Source = "review"
	SourceHealth     Source = "health"
)

var sourceAliases = map[string]Source{
	"engagement":      SourceEngagement,
	"customer":        SourceEngagement,
	"trial":           SourceTrial,
	"pov":             SourceTrial,
	"review":          SourceReview,
	"trr":             SourceReview,
	"health":          SourceHealth,
	"customer_health": SourceHealth,
}

// ParseSource normalizes a raw source name, accepting the portal's legacy aliases.
func ParseSource(raw string) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if src, ok := sourceAliases[key]; ok {
		return src, nil
	}
	return "", fmt.Errorf("unknown record source %q", raw)
}

// SupportingRecord is a tagged union keyed by Source. Exactly one variant
// pointer matching Source is set.
type SupportingRecord struct {
	Source      Source   `json:"source"`
	RecordID    string   `json:"recordId"`
	DisplayName string   `json:"displayName"`
	TypeLabel   string   `json:"typeLabel"`
	Status      string   `json:"status"`
	Summary     string   `json:"summary"`
	Highlights  []string `json:"highlights,omitempty"`

	Engagement *EngagementRecord `json:"engagement,omitempty"`
	Trial      *TrialRecord      `json:"trial,omitempty"`
	Review     *ReviewRecord     `json:"review,omitempty"`
	Health     *HealthRecord     `json:"health,omitempty"`
}

// RecordNote is a note embedded in a source record.
type RecordNote struct {
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
	Category  string    `json:"category,omitempty"`
}

type EngagementRecord struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	CustomerName  string       `json:"customerName"`
	Stage         string       `json:"stage"`
	Status        string       `json:"status"`
	Owner         string       `json:"owner"`
	Industry      string       `json:"industry"`
	HealthScore   *float64     `json:"healthScore"`
	PipelineValue *float64     `json:"pipelineValue"`
	Objectives    []string     `json:"objectives"`
	Notes         []RecordNote `json:"notes"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type Milestone struct {
	Title   string    `json:"title"`
	Status  string    `json:"status"`
	DueDate time.Time `json:"dueDate"`
}

// Completed reports whether the milestone is done.
func (m Milestone) Completed() bool {
	switch strings.ToLower(strings.TrimSpace(m.Status)) {
	case "completed", "complete", "done":
		return true
	}
	return false
}

type TrialRecord struct {
	ID                 string       `json:"id"`
	EngagementID       string       `json:"engagementId"`
	Name               string       `json:"name"`
	CustomerName       string       `json:"customerName"`
	Status             string       `json:"status"`
	TrialType          string       `json:"trialType"`
	Milestones         []Milestone  `json:"milestones"`
	Objectives         []string     `json:"objectives"`
	SuccessCriteria    []string     `json:"successCriteria"`
	Budget             *float64     `json:"budget"`
	CoveragePercentage *float64     `json:"coveragePercentage"`
	StartDate          time.Time    `json:"startDate"`
	EndDate            time.Time    `json:"endDate"`
	Notes              []RecordNote `json:"notes"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// CompletedMilestones counts finished milestones.
func (t *TrialRecord) CompletedMilestones() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, m := range t.Milestones {
		if m.Completed() {
			n++
		}
	}
	return n
}

type ReviewRecord struct {
	ID                    string       `json:"id"`
	EngagementID          string       `json:"engagementId"`
	Title                 string       `json:"title"`
	Phase                 string       `json:"phase"`
	Status                string       `json:"status"`
	RiskLevel             string       `json:"riskLevel"`
	Reviewer              string       `json:"reviewer"`
	Findings              []string     `json:"findings"`
	ValidatedRequirements *int         `json:"validatedRequirements"`
	TotalRequirements     *int         `json:"totalRequirements"`
	Notes                 []RecordNote `json:"notes"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

type HealthRecord struct {
	ID            string       `json:"id"`
	EngagementID  string       `json:"engagementId"`
	CustomerName  string       `json:"customerName"`
	Score         *float64     `json:"score"`
	Trend         string       `json:"trend"`
	Signals       []string     `json:"signals"`
	Risks         []string     `json:"risks"`
	LastCheckedAt time.Time    `json:"lastCheckedAt"`
	Notes         []RecordNote `json:"notes"`
}

// ScenarioExecution is one recorded run of a demo or validation scenario.
type ScenarioExecution struct {
	ID                  string    `json:"id"`
	EngagementID        string    `json:"engagementId"`
	Name                string    `json:"name"`
	Status              string    `json:"status"`
	Impact              string    `json:"impact"`
	DwellTimeHours      *float64  `json:"dwellTimeHours"`
	DetectionsValidated *int      `json:"detectionsValidated"`
	AutomationScore     *float64  `json:"automationScore"`
	Highlights          []string  `json:"highlights"`
	ExecutedAt          time.Time `json:"executedAt"`
}

// EngagementNote is a row of the dedicated engagement notes collection.
type EngagementNote struct {
	EngagementID string    `json:"engagementId"`
	Author       string    `json:"author"`
	Note         string    `json:"note"`
	CreatedAt    time.Time `json:"createdAt"`
	Category     string    `json:"category"`
}
