package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/felixgeelhaar/omni/infrastructure/storage/memory"
)

func progress(runID string, c event.Category, at time.Time) event.Event {
	return event.Event{RunID: runID, Category: c, Message: string(c), Timestamp: at}
}

func TestEventStore_AppendAssignsSequence(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Append(ctx, progress("run-1", event.CategoryPlan, now), progress("run-2", event.CategoryPlan, now)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, progress("run-1", event.CategoryAction, now)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	events, err := store.LoadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for i, e := range events {
		if e.Sequence != uint64(i+1) {
			t.Errorf("events[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if e.ID == "" {
			t.Errorf("events[%d] has no ID", i)
		}
	}
	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
}

func TestEventStore_AppendRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name   string
		events []event.Event
	}{
		{name: "missing run id", events: []event.Event{{Category: event.CategoryPlan}}},
		{name: "unknown category", events: []event.Event{{RunID: "r", Category: "bogus"}}},
		{
			name: "self-correction on success",
			events: []event.Event{{RunID: "r", Category: event.CategorySuccess, SelfCorrection: true}},
		},
		{
			name: "sequence goes backwards",
			events: []event.Event{
				{RunID: "r", Category: event.CategoryPlan, Sequence: 2, Timestamp: now},
				{RunID: "r", Category: event.CategoryAction, Sequence: 1, Timestamp: now},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := memory.NewEventStore()
			if err := store.Append(ctx, tt.events...); !errors.Is(err, event.ErrInvalidEvent) {
				t.Fatalf("Append() error = %v, want ErrInvalidEvent", err)
			}
			if store.Len() != 0 {
				t.Errorf("rejected batch was partially stored: Len() = %d", store.Len())
			}
		})
	}
}

func TestEventStore_LoadUnknownRun(t *testing.T) {
	t.Parallel()

	_, err := memory.NewEventStore().LoadEvents(context.Background(), "missing")
	if !errors.Is(err, event.ErrRunNotFound) {
		t.Errorf("LoadEvents() error = %v, want ErrRunNotFound", err)
	}
}

func TestEventStore_ListRuns(t *testing.T) {
	t.Parallel()

	store := memory.NewEventStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	_ = store.Append(ctx, progress("old", event.CategoryPlan, base))
	_ = store.Append(ctx, progress("new", event.CategoryPlan, base.Add(time.Hour)))
	_ = store.Append(ctx, progress("new", event.CategorySuccess, base.Add(2*time.Hour)))

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "old" {
		t.Fatalf("ListRuns() = %+v", runs)
	}
	if runs[0].EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", runs[0].EventCount)
	}

	limited, _ := store.ListRuns(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("ListRuns(1) returned %d runs", len(limited))
	}

	n, _ := store.CountEvents(ctx, "old")
	if n != 1 {
		t.Errorf("CountEvents(old) = %d, want 1", n)
	}
}

func TestEventStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := memory.NewEventStore().Append(ctx, progress("r", event.CategoryPlan, time.Now())); !errors.Is(err, context.Canceled) {
		t.Errorf("Append() error = %v, want context.Canceled", err)
	}
}
