package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Backing collections of the portal's schemaless record store.
const (
	CollectionEngagements        = "engagements"
	CollectionTrials             = "trials"
	CollectionTrialsLegacy       = "povs"
	CollectionReviews            = "reviews"
	CollectionReviewsLegacy      = "trrs"
	CollectionHealth             = "customerHealth"
	CollectionHealthLegacy       = "healthChecks"
	CollectionScenarioExecutions = "scenarioExecutions"
	CollectionEngagementNotes    = "engagementNotes"
)

// Record is one raw document of a collection.
type Record struct {
	Collection   string          `json:"collection"`
	ID           string          `json:"id"`
	EngagementID string          `json:"engagementId,omitempty"`
	Data         json.RawMessage `json:"data"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Store is read-only access to the records written by the portal's CRUD
// handlers. List results are ordered by UpdatedAt, newest first.
type Store interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	ListByEngagement(ctx context.Context, collection, engagementID string, limit int) ([]Record, error)
	Recent(ctx context.Context, collection string, limit int) ([]Record, error)
}

var ErrNotFound = errors.New("record not found")
