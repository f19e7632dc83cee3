package blueprint

import "fmt"

// Status is the pipeline state of a Document.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusRendered      Status = "rendered"
	StatusBundled       Status = "bundled"
	StatusExportPending Status = "export_pending"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

// transitions has no edges out of succeeded or failed. The one exception
// lives outside this graph: a document failed at the export stage is moved
// back to export_pending by a redelivered export (see Document.ExportRetryable
// and the export handler), since the export stage is the only one retried.
var transitions = map[Status][]Status{
	StatusProcessing:    {StatusRendered, StatusFailed},
	StatusRendered:      {StatusBundled, StatusFailed},
	StatusBundled:       {StatusExportPending, StatusFailed},
	StatusExportPending: {StatusSucceeded, StatusFailed},
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusRendered, StatusBundled, StatusExportPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an error describing an illegal transition.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
