package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// ReadStream returns all events of streamID ordered by position.
func (s *EventStore) ReadStream(ctx context.Context, streamID string) (eventstore.ReadResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stream_position, event_type, data, metadata, recorded_at
		 FROM events WHERE stream_id = $1 ORDER BY stream_position ASC`, streamID)
	if err != nil {
		return eventstore.ReadResult{}, fmt.Errorf("read stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []eventstore.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return eventstore.ReadResult{}, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return eventstore.ReadResult{}, fmt.Errorf("read stream %s: %w", streamID, err)
	}

	var current uint64
	if n := len(events); n > 0 {
		current = events[n-1].StreamPosition
	}
	return eventstore.ReadResult{
		Events:         events,
		CurrentVersion: current,
		StreamExists:   len(events) > 0,
	}, nil
}

// AppendToStream appends events in one transaction. The stream row is locked
// while the expected version is checked; a concurrent creator of the same
// stream surfaces as a unique violation and is reported as a
// *domain.ConcurrencyError.
func (s *EventStore) AppendToStream(ctx context.Context, streamID string, expected eventstore.ExpectedVersion, events []eventstore.Event) (eventstore.AppendResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eventstore.AppendResult{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var position int64
	exists := true
	err = tx.QueryRow(ctx,
		`SELECT stream_position FROM streams WHERE stream_id = $1 FOR UPDATE`, streamID).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, err = false, nil
	}
	if err != nil {
		return eventstore.AppendResult{}, fmt.Errorf("lock stream %s: %w", streamID, err)
	}

	current := uint64(position) //nolint:gosec // G115: column is CHECK (>= 0)
	if !expected.Matches(current) {
		return eventstore.AppendResult{}, domain.NewConcurrencyError(current, expected.String())
	}
	if len(events) == 0 {
		return eventstore.AppendResult{NextExpectedStreamVersion: current}, nil
	}

	next := current + uint64(len(events))
	if exists {
		_, err = tx.Exec(ctx,
			`UPDATE streams SET stream_position = $2, updated_at = now() WHERE stream_id = $1`,
			streamID, int64(next)) //nolint:gosec // G115: positions stay far below MaxInt64
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO streams (stream_id, stream_position) VALUES ($1, $2)`,
			streamID, int64(next)) //nolint:gosec // G115: positions stay far below MaxInt64
	}
	if err != nil {
		return eventstore.AppendResult{}, appendErr(err, streamID, current, expected)
	}

	batch := &pgx.Batch{}
	for i := range events {
		ev := &events[i]
		batch.Queue(
			`INSERT INTO events (stream_id, stream_position, event_type, data, metadata)
			 VALUES ($1, $2, $3, $4, $5)`,
			streamID, int64(current)+int64(i)+1, ev.Type, jsonOrEmpty(ev.Data), nullJSON(ev.Metadata)) //nolint:gosec // G115: see above
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return eventstore.AppendResult{}, appendErr(err, streamID, current, expected)
	}

	if err := tx.Commit(ctx); err != nil {
		return eventstore.AppendResult{}, appendErr(err, streamID, current, expected)
	}
	return eventstore.AppendResult{NextExpectedStreamVersion: next}, nil
}

// appendErr maps a unique violation to a ConcurrencyError.
func appendErr(err error, streamID string, current uint64, expected eventstore.ExpectedVersion) error {
	if isUniqueViolation(err) {
		return domain.NewConcurrencyError(current, expected.String())
	}
	return fmt.Errorf("append to stream %s: %w", streamID, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanEvent(row scannable) (eventstore.Event, error) {
	var (
		ev       eventstore.Event
		position int64
		data     []byte
		metadata []byte
	)
	if err := row.Scan(&position, &ev.Type, &data, &metadata, &ev.RecordedAt); err != nil {
		return eventstore.Event{}, err
	}
	ev.StreamPosition = uint64(position) //nolint:gosec // G115: column is CHECK (> 0)
	ev.Data = json.RawMessage(data)
	if len(metadata) > 0 {
		ev.Metadata = json.RawMessage(metadata)
	}
	return ev, nil
}

// jsonOrEmpty substitutes an empty object for missing event data.
func jsonOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// nullJSON returns nil for empty metadata so the column stays NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
