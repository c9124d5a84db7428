package event

import "context"

// Store defines the interface for progress event persistence.
type Store interface {
	// Append persists one or more events atomically.
	Append(ctx context.Context, events ...Event) error

	// LoadEvents retrieves all events for a run in sequence order.
	LoadEvents(ctx context.Context, runID string) ([]Event, error)
}

// RunInfo summarises the stored events of one run.
type RunInfo struct {
	RunID      string `json:"run_id"`
	EventCount int64  `json:"event_count"`
	FirstSeen  int64  `json:"first_seen"`
	LastSeen   int64  `json:"last_seen"`
}

// Querier is an optional interface for stores that can list runs.
type Querier interface {
	// ListRuns returns stored runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)

	// CountEvents returns the number of events for a run.
	CountEvents(ctx context.Context, runID string) (int64, error)
}
