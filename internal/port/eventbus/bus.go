// Package eventbus defines the port for publishing appended events to
// subscribers outside the process.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// Message is the wire envelope of one published event.
type Message struct {
	StreamID       string          `json:"stream_id"`
	StreamPosition uint64          `json:"stream_position"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// NewMessage wraps an appended event of streamID.
func NewMessage(streamID string, ev eventstore.Event) Message {
	return Message{
		StreamID:       streamID,
		StreamPosition: ev.StreamPosition,
		Type:           ev.Type,
		Data:           ev.Data,
		Metadata:       ev.Metadata,
		RecordedAt:     ev.RecordedAt,
	}
}

// ID identifies the message for broker-side deduplication.
func (m Message) ID() string {
	return fmt.Sprintf("%s:%d", m.StreamID, m.StreamPosition)
}

// Decode parses and checks a message received from the bus.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode event message: %w", err)
	}
	switch {
	case m.StreamID == "":
		return m, fmt.Errorf("event message: stream_id is required")
	case m.Type == "":
		return m, fmt.Errorf("event message %s: type is required", m.ID())
	case m.StreamPosition == 0:
		return m, fmt.Errorf("event message %s: stream_position must be > 0", m.ID())
	}
	return m, nil
}

// Handler processes a received message. A returned error asks for
// redelivery.
type Handler func(ctx context.Context, m Message) error

// Publisher sends appended events to the bus.
type Publisher interface {
	Publish(ctx context.Context, streamID string, events []eventstore.Event) error
}

// Subscriber delivers published events matching a subject filter.
type Subscriber interface {
	// Subscribe registers h under a durable consumer name. The returned
	// function stops delivery.
	Subscribe(ctx context.Context, durable, filter string, h Handler) (stop func(), err error)
}

// Category is the stream id up to its first '-', e.g. "todo" for
// "todo-42".
func Category(streamID string) string {
	if i := strings.IndexByte(streamID, '-'); i > 0 {
		return streamID[:i]
	}
	return streamID
}

// Subject returns "<prefix>.<category>.<type>" with characters NATS
// reserves in subject tokens replaced by '_'.
func Subject(prefix, streamID, eventType string) string {
	return prefix + "." + token(Category(streamID)) + "." + token(eventType)
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
