// Package nats publishes appended events to NATS JetStream and delivers
// them to durable consumers.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/eventweb/internal/logger"
	"github.com/Strob0t/eventweb/internal/port/eventbus"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

const (
	headerRequestID = "X-Request-ID"
	headerError     = "X-Error"

	// maxDeliver bounds redeliveries before a message goes to the DLQ.
	maxDeliver = 5
	ackWait    = 30 * time.Second
)

// Options configures Connect.
type Options struct {
	URL    string
	Stream string
	Prefix string
	// DuplicateWindow is how long JetStream remembers message ids.
	DuplicateWindow time.Duration
}

// Bus implements eventbus.Publisher and eventbus.Subscriber.
type Bus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	prefix string
}

var (
	_ eventbus.Publisher  = (*Bus)(nil)
	_ eventbus.Subscriber = (*Bus)(nil)
)

// Connect dials NATS and creates or updates the event stream capturing
// "<prefix>.>".
func Connect(ctx context.Context, opts Options) (*Bus, error) {
	nc, err := nats.Connect(opts.URL, nats.Name("eventweb"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       opts.Stream,
		Subjects:   []string{opts.Prefix + ".>"},
		Duplicates: opts.DuplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream %s: %w", opts.Stream, err)
	}

	slog.Info("nats connected", "url", opts.URL, "stream", opts.Stream)
	return &Bus{nc: nc, js: js, stream: opts.Stream, prefix: opts.Prefix}, nil
}

// Publish sends each event to its subject. The message id makes
// republishing the same stream position a no-op within the duplicate
// window.
func (b *Bus) Publish(ctx context.Context, streamID string, events []eventstore.Event) error {
	for _, ev := range events {
		m := eventbus.NewMessage(streamID, ev)
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.ID(), err)
		}

		msg := nats.NewMsg(eventbus.Subject(b.prefix, streamID, ev.Type))
		msg.Data = data
		if id := logger.RequestID(ctx); id != "" {
			msg.Header.Set(headerRequestID, id)
		}
		if _, err := b.js.PublishMsg(ctx, msg, jetstream.WithMsgID(m.ID())); err != nil {
			return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
	}
	return nil
}

// Subscribe consumes messages matching filter (relative to the prefix,
// e.g. "todo.>") with a durable consumer. Handler errors are redelivered
// up to maxDeliver times, then the message is moved to the DLQ subject
// "<prefix>.dlq.<original subject>". Undecodable messages go straight to
// the DLQ.
func (b *Bus) Subscribe(ctx context.Context, durable, filter string, h eventbus.Handler) (func(), error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: b.prefix + "." + filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer %s: %w", durable, err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		b.handle(msg, h)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cons.Stop, nil
}

func (b *Bus) handle(msg jetstream.Msg, h eventbus.Handler) {
	ctx := context.Background()
	if id := msg.Headers().Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	m, err := eventbus.Decode(msg.Data())
	if err == nil {
		err = h(ctx, m)
		if err == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
			}
			return
		}
		if !lastDelivery(msg) {
			slog.WarnContext(ctx, "event handler failed, will retry", "subject", msg.Subject(), "error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
			}
			return
		}
	}

	slog.ErrorContext(ctx, "moving event to dead letter subject", "subject", msg.Subject(), "error", err)
	if dlqErr := b.deadLetter(ctx, msg, err); dlqErr != nil {
		slog.ErrorContext(ctx, "dead letter publish failed", "error", dlqErr)
	}
	if termErr := msg.Term(); termErr != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", termErr)
	}
}

func lastDelivery(msg jetstream.Msg) bool {
	meta, err := msg.Metadata()
	if err != nil {
		return false
	}
	return meta.NumDelivered >= maxDeliver
}

func (b *Bus) deadLetter(ctx context.Context, msg jetstream.Msg, cause error) error {
	if cause == nil {
		cause = errors.New("unknown")
	}
	dlq := nats.NewMsg(DeadLetterSubject(b.prefix, msg.Subject()))
	dlq.Data = msg.Data()
	dlq.Header.Set(headerError, cause.Error())
	if id := logger.RequestID(ctx); id != "" {
		dlq.Header.Set(headerRequestID, id)
	}
	_, err := b.js.PublishMsg(ctx, dlq)
	return err
}

// DeadLetterSubject returns the DLQ subject for subject.
func DeadLetterSubject(prefix, subject string) string {
	return prefix + ".dlq." + subject
}

// IsConnected reports whether the NATS connection is up.
func (b *Bus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
