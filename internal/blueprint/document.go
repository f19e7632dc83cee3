package blueprint

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/xid"
)

// PayloadRef locates the persisted narrative payload.
type PayloadRef struct {
	StoragePath    string `json:"storagePath"`
	ChecksumSHA256 string `json:"checksumSha256"`
	Bytes          int64  `json:"bytes"`
	SectionCount   int    `json:"sectionCount"`
	Theme          string `json:"theme"`
}

// ArtifactRef locates a stored binary artifact (rendered document or bundle).
type ArtifactRef struct {
	StoragePath    string    `json:"storagePath"`
	ChecksumSHA256 string    `json:"checksumSha256"`
	Bytes          int64     `json:"bytes"`
	ContentType    string    `json:"contentType,omitempty"`
	DownloadURL    string    `json:"downloadUrl,omitempty"`
	Theme          string    `json:"theme,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AnalyticsSnapshot holds denormalized reporting metrics. Pointer fields stay
// nil until the stage that produces them has run.
type AnalyticsSnapshot struct {
	CoveragePercentage   *float64   `json:"coveragePercentage"`
	RiskScore            *float64   `json:"riskScore"`
	AutomationConfidence *float64   `json:"automationConfidence"`
	Categories           []string   `json:"categories"`
	ScenarioCount        *int       `json:"scenarioCount"`
	NotesCount           *int       `json:"notesCount"`
	TranscriptCount      *int       `json:"transcriptCount"`
	DeliveryLatencyMs    *int64     `json:"deliveryLatencyMs"`
	ExportJobID          *string    `json:"exportJobId"`
	LastExportedAt       *time.Time `json:"lastExportedAt"`
}

// ExtensionRun audits the text-generation call that produced the payload.
type ExtensionRun struct {
	ExtensionID      string   `json:"extensionId"`
	Version          string   `json:"version"`
	Prompts          []string `json:"prompts"`
	CompletionTokens int      `json:"completionTokens"`
	LatencyMs        int64    `json:"latencyMs"`
}

// StageError is recorded on the document when a stage fails.
type StageError struct {
	Message string    `json:"message"`
	Stage   string    `json:"stage"`
	At      time.Time `json:"at"`
}

// Document is the persistent root entity of one pipeline run.
type Document struct {
	ID               string                    `json:"id"`
	EngagementID     string                    `json:"engagementId"`
	CustomerName     string                    `json:"customerName"`
	GeneratedBy      string                    `json:"generatedBy"`
	GeneratedAt      time.Time                 `json:"generatedAt"`
	Status           Status                    `json:"status"`
	Error            *StageError               `json:"error,omitempty"`
	ContextSnapshot  EngagementContextSnapshot `json:"contextSnapshot"`
	Payload          PayloadRef                `json:"payload"`
	RenderedArtifact *ArtifactRef              `json:"renderedArtifact,omitempty"`
	ArtifactBundle   *ArtifactRef              `json:"artifactBundle,omitempty"`
	Analytics        AnalyticsSnapshot         `json:"analytics"`
	Emphasis         *Emphasis                 `json:"emphasis,omitempty"`
	RecordSelections []RecordSelection         `json:"recordSelections,omitempty"`
	TailoredPrompt   string                    `json:"tailoredPrompt,omitempty"`
	ExecutiveTone    string                    `json:"executiveTone,omitempty"`
	ExtensionRun     *ExtensionRun             `json:"extensionRun,omitempty"`
	Version          int64                     `json:"version"`
	UpdatedAt        time.Time                 `json:"updatedAt"`
}

var idUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// NewDocumentID embeds the engagement id and creation time, with a random
// suffix so ids stay unique without coordination.
func NewDocumentID(engagementID string, at time.Time) string {
	eng := idUnsafe.ReplaceAllString(strings.TrimSpace(engagementID), "_")
	if eng == "" {
		eng = "engagement"
	}
	return fmt.Sprintf("%s-%d-%s", eng, at.UTC().UnixMilli(), xid.New().String())
}

// ExportRetryable reports whether the document failed in the export stage,
// the one stage whose failure a redelivered export may recover.
func (d *Document) ExportRetryable() bool {
	return d.Status == StatusFailed && d.Error != nil && d.Error.Stage == StageExport
}
