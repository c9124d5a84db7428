package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/omni/domain/event"
	"github.com/google/uuid"
)

// EventStore is a SQLite-backed implementation of event.Store. It keeps the
// append-only progress log of runs for later inspection.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new SQLite event store with the given configuration.
func NewEventStore(cfg Config, opts ...Option) (*EventStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &EventStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewEventStoreFromDB creates an event store from an existing database connection.
func NewEventStoreFromDB(db *sql.DB) (*EventStore, error) {
	s := &EventStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EventStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS progress_events (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			category TEXT NOT NULL,
			self_correction INTEGER NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_run_seq ON progress_events(run_id, sequence);
		CREATE INDEX IF NOT EXISTS idx_progress_timestamp ON progress_events(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
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
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO progress_events (id, run_id, sequence, category, self_correction, timestamp, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	sequences := make(map[string]uint64)
	for _, e := range events {
		last, ok := sequences[e.RunID]
		if !ok {
			if last, err = lastSequence(ctx, tx, e.RunID); err != nil {
				return err
			}
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
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		sequences[e.RunID] = e.Sequence

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.RunID, e.Sequence, string(e.Category), e.SelfCorrection, e.Timestamp.UnixNano(), data,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func lastSequence(ctx context.Context, tx *sql.Tx, runID string) (uint64, error) {
	var maxSeq sql.NullInt64
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(sequence) FROM progress_events WHERE run_id = ?",
		runID,
	).Scan(&maxSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if !maxSeq.Valid {
		return 0, nil
	}
	return uint64(maxSeq.Int64), nil
}

// LoadEvents retrieves all events for a run in sequence order.
func (s *EventStore) LoadEvents(ctx context.Context, runID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM progress_events WHERE run_id = ? ORDER BY sequence",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []event.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e event.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode event of run %s: %w", runID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", event.ErrRunNotFound, runID)
	}
	return events, nil
}

// CountEvents returns the number of events for a run.
func (s *EventStore) CountEvents(ctx context.Context, runID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM progress_events WHERE run_id = ?",
		runID,
	).Scan(&count)
	return count, err
}

// ListRuns returns stored runs, most recent first. A limit of zero or less
// returns every run.
func (s *EventStore) ListRuns(ctx context.Context, limit int) ([]event.RunInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT run_id, COUNT(*), MIN(timestamp), MAX(timestamp), MAX(rowid) AS last_row
		FROM progress_events
		GROUP BY run_id
		ORDER BY MAX(timestamp) DESC, last_row DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []event.RunInfo
	for rows.Next() {
		var (
			info        event.RunInfo
			first, last int64
			lastRow     int64
		)
		if err := rows.Scan(&info.RunID, &info.EventCount, &first, &last, &lastRow); err != nil {
			return nil, err
		}
		info.FirstSeen = time.Unix(0, first).Unix()
		info.LastSeen = time.Unix(0, last).Unix()
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// DeleteRun removes all events for a specific run.
func (s *EventStore) DeleteRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM progress_events WHERE run_id = ?", runID)
	return err
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
