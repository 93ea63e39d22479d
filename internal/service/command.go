package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// Decider computes new events from a command and the current state, and
// folds recorded events back into state.
type Decider[S, C any] struct {
	Decide       func(command C, state S) ([]eventstore.Event, error)
	Evolve       func(state S, event eventstore.Event) S
	InitialState func() S
}

// HandleOptions controls optimistic concurrency for Handle.
type HandleOptions struct {
	// ExpectedStreamVersion is checked against the stream before deciding
	// and used as the append precondition. Zero value disables the check.
	ExpectedStreamVersion eventstore.ExpectedVersion
}

// HandleResult is the outcome of a handled command.
type HandleResult[S any] struct {
	NextExpectedStreamVersion uint64
	NewState                  S
	NewEvents                 []eventstore.Event
	CreatedNewStream          bool
}

// AggregateStream reads a stream and folds it into state.
func AggregateStream[S, C any](ctx context.Context, store eventstore.Store, streamID string, decider Decider[S, C]) (S, eventstore.ReadResult, error) {
	read, err := store.ReadStream(ctx, streamID)
	if err != nil {
		var zero S
		return zero, read, fmt.Errorf("read stream %s: %w", streamID, err)
	}

	state := decider.InitialState()
	for _, ev := range read.Events {
		state = decider.Evolve(state, ev)
	}
	return state, read, nil
}

// Handle runs a command against the stream: read, check version, decide,
// append. A version mismatch yields *domain.ConcurrencyError before the
// decider is invoked; decider errors are returned unchanged.
func Handle[S, C any](ctx context.Context, store eventstore.Store, streamID string, command C, decider Decider[S, C], opts HandleOptions) (HandleResult[S], error) {
	var result HandleResult[S]

	state, read, err := AggregateStream(ctx, store, streamID, decider)
	if err != nil {
		return result, err
	}

	expected := opts.ExpectedStreamVersion
	if !expected.Matches(read.CurrentVersion) {
		return result, domain.NewConcurrencyError(read.CurrentVersion, expected.String())
	}

	events, err := decider.Decide(command, state)
	if err != nil {
		return result, err
	}

	result.NewState = state
	result.NextExpectedStreamVersion = read.CurrentVersion
	if len(events) == 0 {
		return result, nil
	}

	appendExpected := expected
	if !appendExpected.IsSet() {
		appendExpected = eventstore.ExactVersion(read.CurrentVersion)
	}

	appended, err := store.AppendToStream(ctx, streamID, appendExpected, events)
	if err != nil {
		return result, err
	}

	for _, ev := range events {
		state = decider.Evolve(state, ev)
	}

	slog.Debug("command handled",
		"stream_id", streamID,
		"events", len(events),
		"version", appended.NextExpectedStreamVersion,
	)

	result.NewState = state
	result.NewEvents = events
	result.NextExpectedStreamVersion = appended.NextExpectedStreamVersion
	result.CreatedNewStream = !read.StreamExists
	return result, nil
}
