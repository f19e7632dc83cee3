package activity

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one activity-feed item.
type Event struct {
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Entry is an Event as appended to the feed.
type Entry struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagementId"`
	BlueprintID  string    `json:"blueprintId"`
	At           time.Time `json:"at"`
	Event
}

// Feed is append-only and best-effort: implementations log and drop their
// own failures, so Record has nothing to return.
type Feed interface {
	Record(ctx context.Context, engagementID, blueprintID string, ev Event)
}

func newEntry(engagementID, blueprintID string, ev Event) Entry {
	return Entry{
		ID:           uuid.NewString(),
		EngagementID: engagementID,
		BlueprintID:  blueprintID,
		At:           time.Now().UTC(),
		Event:        ev,
	}
}

// LogFeed writes entries to the process log.
type LogFeed struct{}

func (LogFeed) Record(_ context.Context, engagementID, blueprintID string, ev Event) {
	meta, _ := json.Marshal(ev.Metadata)
	log.Printf("activity engagement=%s blueprint=%s type=%s status=%s message=%q metadata=%s",
		engagementID, blueprintID, ev.Type, ev.Status, ev.Message, meta)
}

type MemoryFeed struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{}
}

func (f *MemoryFeed) Record(_ context.Context, engagementID, blueprintID string, ev Event) {
	f.mu.Lock()
	f.entries = append(f.entries, newEntry(engagementID, blueprintID, ev))
	f.mu.Unlock()
}

// Entries returns entries recorded for blueprintID, oldest first.
func (f *MemoryFeed) Entries(blueprintID string) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		if blueprintID == "" || e.BlueprintID == blueprintID {
			out = append(out, e)
		}
	}
	return out
}

type multiFeed []Feed

// Multi fans every entry out to all feeds.
func Multi(feeds ...Feed) Feed {
	out := make(multiFeed, 0, len(feeds))
	for _, f := range feeds {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func (m multiFeed) Record(ctx context.Context, engagementID, blueprintID string, ev Event) {
	for _, f := range m {
		f.Record(ctx, engagementID, blueprintID, ev)
	}
}
