package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/felixgeelhaar/omni/infrastructure/storage/sqlite"
)

func newTestEventStore(t *testing.T) *sqlite.EventStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db") + "?mode=rwc"
	store, err := sqlite.NewEventStore(sqlite.DefaultConfig(dsn))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	t.Parallel()

	store := newTestEventStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Append(ctx,
		event.Event{RunID: "run-1", Category: event.CategoryPlan, From: agent.StatePlanning, To: agent.StateSelecting, Timestamp: now},
		event.Event{RunID: "run-1", Category: event.CategoryAction, Tool: "read_file", StepID: "step-1", Timestamp: now},
		event.Event{
			RunID:          "run-1",
			Category:       event.CategoryFailure,
			SelfCorrection: true,
			Tool:           "run_command",
			ErrorText:      "NameError: DatabaseError is not defined",
			Timestamp:      now,
		},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	loaded, err := store.LoadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("len(loaded) = %d, want 3", len(loaded))
	}
	for i, e := range loaded {
		if e.Sequence != uint64(i+1) {
			t.Errorf("loaded[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if e.ID == "" {
			t.Errorf("loaded[%d] has no ID", i)
		}
	}
	if loaded[0].From != agent.StatePlanning || loaded[0].To != agent.StateSelecting {
		t.Errorf("loaded[0] states = %s -> %s", loaded[0].From, loaded[0].To)
	}
	if !loaded[2].SelfCorrection || loaded[2].ErrorText != "NameError: DatabaseError is not defined" {
		t.Errorf("loaded[2] = %+v", loaded[2])
	}
}

func TestEventStore_SequenceContinuesAcrossAppends(t *testing.T) {
	t.Parallel()

	store := newTestEventStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryAction}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	err := store.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryAction, Sequence: 2})
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Errorf("Append(stale sequence) error = %v, want ErrInvalidEvent", err)
	}

	n, err := store.CountEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountEvents() = %d, want 3", n)
	}
}

func TestEventStore_RejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	store := newTestEventStore(t)
	ctx := context.Background()

	err := store.Append(ctx,
		event.Event{RunID: "run-1", Category: event.CategoryPlan},
		event.Event{RunID: "run-1", Category: "unknown"},
	)
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Fatalf("Append() error = %v, want ErrInvalidEvent", err)
	}
	if _, err := store.LoadEvents(ctx, "run-1"); !errors.Is(err, event.ErrRunNotFound) {
		t.Errorf("rejected batch was stored: LoadEvents() error = %v", err)
	}
}

func TestEventStore_ListRuns(t *testing.T) {
	t.Parallel()

	store := newTestEventStore(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	_ = store.Append(ctx, event.Event{RunID: "older", Category: event.CategoryPlan, Timestamp: base})
	_ = store.Append(ctx,
		event.Event{RunID: "newer", Category: event.CategoryPlan, Timestamp: base.Add(time.Minute)},
		event.Event{RunID: "newer", Category: event.CategorySuccess, Timestamp: base.Add(2 * time.Minute)},
	)

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].RunID != "newer" || runs[0].EventCount != 2 {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[0].FirstSeen != base.Add(time.Minute).Unix() || runs[0].LastSeen != base.Add(2*time.Minute).Unix() {
		t.Errorf("runs[0] window = %d..%d", runs[0].FirstSeen, runs[0].LastSeen)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "newer" {
		t.Errorf("ListRuns(1) = %+v", limited)
	}
}

func TestEventStore_DeleteRun(t *testing.T) {
	t.Parallel()

	store := newTestEventStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryPlan})
	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if _, err := store.LoadEvents(ctx, "run-1"); !errors.Is(err, event.ErrRunNotFound) {
		t.Errorf("LoadEvents() error = %v, want ErrRunNotFound", err)
	}
}

func TestEventStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "history.db") + "?mode=rwc"
	ctx := context.Background()

	first, err := sqlite.NewEventStore(sqlite.DefaultConfig(dsn))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	_ = first.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryPlan})
	_ = first.Close()

	second, err := sqlite.NewEventStore(sqlite.DefaultConfig(dsn))
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	_ = second.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryAction})
	events, err := second.LoadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(events) != 2 || events[1].Sequence != 2 {
		t.Errorf("events = %+v", events)
	}
}

func TestEventStore_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit", "nested", "history.db")
	store, err := sqlite.NewEventStore(sqlite.DefaultConfig(path))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Append(ctx, event.Event{RunID: "run-1", Category: event.CategoryPlan, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if n, err := store.CountEvents(ctx, "run-1"); err != nil || n != 1 {
		t.Errorf("CountEvents() = %d, %v; want 1", n, err)
	}
}

func TestEventStore_InMemory(t *testing.T) {
	t.Parallel()

	store, err := sqlite.NewEventStore(sqlite.DefaultConfig(":memory:"), sqlite.WithJournalMode("MEMORY"))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	defer store.Close()

	_, err = store.LoadEvents(context.Background(), "run-unknown")
	if !errors.Is(err, event.ErrRunNotFound) {
		t.Errorf("LoadEvents() error = %v, want ErrRunNotFound", err)
	}
}
