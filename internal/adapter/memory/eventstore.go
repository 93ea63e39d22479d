// Package memory implements the event store port in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// EventStore is a goroutine-safe in-memory eventstore.Store.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string][]eventstore.Event
	now     func() time.Time // for testing
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string][]eventstore.Event),
		now:     time.Now,
	}
}

// ReadStream returns a copy of the stream's events.
func (s *EventStore) ReadStream(_ context.Context, streamID string) (eventstore.ReadResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[streamID]
	out := make([]eventstore.Event, len(events))
	copy(out, events)

	return eventstore.ReadResult{
		Events:         out,
		CurrentVersion: uint64(len(events)),
		StreamExists:   len(events) > 0,
	}, nil
}

// AppendToStream appends events if expected matches the current version.
func (s *EventStore) AppendToStream(_ context.Context, streamID string, expected eventstore.ExpectedVersion, events []eventstore.Event) (eventstore.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(len(s.streams[streamID]))
	if !expected.Matches(current) {
		return eventstore.AppendResult{}, domain.NewConcurrencyError(current, expected.String())
	}

	recordedAt := s.now().UTC()
	for i := range events {
		ev := events[i]
		ev.StreamPosition = current + uint64(i) + 1
		ev.RecordedAt = recordedAt
		s.streams[streamID] = append(s.streams[streamID], ev)
	}

	return eventstore.AppendResult{NextExpectedStreamVersion: current + uint64(len(events))}, nil
}
