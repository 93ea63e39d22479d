package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/eventweb/internal/port/eventstore"
	"github.com/Strob0t/eventweb/internal/resilience"
)

// PublishingStore is an eventstore.Store that publishes events after
// every successful append. Publishing is best effort: failures are logged
// and never fail the append. While the breaker is open events are not
// published at all.
type PublishingStore struct {
	eventstore.Store
	pub     Publisher
	breaker *resilience.Breaker
	now     func() time.Time
}

// NewPublishingStore decorates store. breaker may be nil.
func NewPublishingStore(store eventstore.Store, pub Publisher, breaker *resilience.Breaker) *PublishingStore {
	return &PublishingStore{Store: store, pub: pub, breaker: breaker, now: time.Now}
}

// AppendToStream appends through the wrapped store, then publishes the
// events with their assigned positions.
func (s *PublishingStore) AppendToStream(ctx context.Context, streamID string, expected eventstore.ExpectedVersion, events []eventstore.Event) (eventstore.AppendResult, error) {
	res, err := s.Store.AppendToStream(ctx, streamID, expected, events)
	if err != nil || len(events) == 0 {
		return res, err
	}

	published := make([]eventstore.Event, len(events))
	first := res.NextExpectedStreamVersion - uint64(len(events)) + 1
	recordedAt := s.now().UTC()
	for i, ev := range events {
		ev.StreamPosition = first + uint64(i)
		if ev.RecordedAt.IsZero() {
			ev.RecordedAt = recordedAt
		}
		published[i] = ev
	}

	// The append is committed; a cancelled request must not drop the events.
	pctx := context.WithoutCancel(ctx)
	publish := func(ctx context.Context) error { return s.pub.Publish(ctx, streamID, published) }
	if s.breaker != nil {
		err = s.breaker.Execute(pctx, publish)
	} else {
		err = publish(pctx)
	}
	if err != nil {
		slog.WarnContext(ctx, "event publish failed",
			"stream_id", streamID,
			"events", len(published),
			"error", err,
		)
	}
	return res, nil
}
