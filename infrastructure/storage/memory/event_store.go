package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/google/uuid"
)

// EventStore is an in-memory implementation of event.Store and event.Querier.
type EventStore struct {
	events    map[string][]event.Event // runID -> events
	sequences map[string]uint64        // runID -> last sequence
	order     []string                 // runIDs in first-append order
	mu        sync.RWMutex
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events:    make(map[string][]event.Event),
		sequences: make(map[string]uint64),
	}
}

// Append persists one or more events atomically. Events without a sequence
// get the next one of their run; explicit sequences must increase.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before storing any of it.
	pending := make(map[string]uint64)
	batch := make([]event.Event, len(events))
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
		last, ok := pending[e.RunID]
		if !ok {
			last = s.sequences[e.RunID]
		}
		switch {
		case e.Sequence == 0:
			e.Sequence = last + 1
		case e.Sequence <= last:
			return fmt.Errorf("%w: sequence %d after %d in run %s", event.ErrInvalidEvent, e.Sequence, last, e.RunID)
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		pending[e.RunID] = e.Sequence
		batch[i] = e
	}

	for _, e := range batch {
		if _, seen := s.events[e.RunID]; !seen {
			s.order = append(s.order, e.RunID)
		}
		s.events[e.RunID] = append(s.events[e.RunID], e)
	}
	for runID, seq := range pending {
		s.sequences[runID] = seq
	}
	return nil
}

// LoadEvents retrieves all events for a run in sequence order.
func (s *EventStore) LoadEvents(ctx context.Context, runID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.events[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrRunNotFound, runID)
	}

	// Return a copy to prevent mutation
	result := make([]event.Event, len(events))
	copy(result, events)
	return result, nil
}

// ListRuns returns stored runs, most recent first.
func (s *EventStore) ListRuns(ctx context.Context, limit int) ([]event.RunInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]event.RunInfo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runID := s.order[i]
		events := s.events[runID]
		info := event.RunInfo{
			RunID:      runID,
			EventCount: int64(len(events)),
			FirstSeen:  events[0].Timestamp.Unix(),
			LastSeen:   events[len(events)-1].Timestamp.Unix(),
		}
		runs = append(runs, info)
	}
	// Runs with equal timestamps stay newest first.
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].LastSeen > runs[j].LastSeen
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// CountEvents returns the number of events for a run.
func (s *EventStore) CountEvents(ctx context.Context, runID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.events[runID])), nil
}

// Len returns the total number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, events := range s.events {
		n += len(events)
	}
	return n
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
