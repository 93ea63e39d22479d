// Package eventstore defines the port interface for the append-only event store.
package eventstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Event is a single recorded (or to-be-recorded) event in a stream.
type Event struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	StreamPosition uint64          `json:"stream_position"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type expectKind int

const (
	expectAny expectKind = iota
	expectExists
	expectMissing
	expectExact
)

// ExpectedVersion is the optimistic concurrency precondition for an append.
// The zero value performs no check.
type ExpectedVersion struct {
	kind    expectKind
	version uint64
}

var (
	// NoConcurrencyCheck accepts any stream state.
	NoConcurrencyCheck = ExpectedVersion{kind: expectAny}
	// StreamExists requires at least one event in the stream.
	StreamExists = ExpectedVersion{kind: expectExists}
	// StreamDoesNotExist requires an empty stream.
	StreamDoesNotExist = ExpectedVersion{kind: expectMissing}
)

// ExactVersion requires the stream to be at exactly v.
func ExactVersion(v uint64) ExpectedVersion {
	return ExpectedVersion{kind: expectExact, version: v}
}

// Matches reports whether a stream at current satisfies the precondition.
// A stream with no events has version 0.
func (e ExpectedVersion) Matches(current uint64) bool {
	switch e.kind {
	case expectExists:
		return current > 0
	case expectMissing:
		return current == 0
	case expectExact:
		return current == e.version
	default:
		return true
	}
}

// IsSet reports whether e carries any precondition.
func (e ExpectedVersion) IsSet() bool { return e.kind != expectAny }

func (e ExpectedVersion) String() string {
	switch e.kind {
	case expectExists:
		return "STREAM_EXISTS"
	case expectMissing:
		return "STREAM_DOES_NOT_EXIST"
	case expectExact:
		return strconv.FormatUint(e.version, 10)
	default:
		return "NO_CONCURRENCY_CHECK"
	}
}

// ReadResult is the content of a stream at read time.
type ReadResult struct {
	Events         []Event
	CurrentVersion uint64
	StreamExists   bool
}

// AppendResult reports the stream version after a successful append.
type AppendResult struct {
	NextExpectedStreamVersion uint64
}

// Store is the port interface for reading and appending stream events.
type Store interface {
	// ReadStream returns all events of the stream ordered by position.
	// A missing stream yields an empty result, not an error.
	ReadStream(ctx context.Context, streamID string) (ReadResult, error)

	// AppendToStream appends events atomically if expected matches the
	// current version. A mismatch returns a *domain.ConcurrencyError.
	AppendToStream(ctx context.Context, streamID string, expected ExpectedVersion, events []Event) (AppendResult, error)
}
