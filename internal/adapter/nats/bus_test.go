package nats

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Strob0t/eventweb/internal/logger"
	"github.com/Strob0t/eventweb/internal/port/eventbus"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

func TestDeadLetterSubject(t *testing.T) {
	if got := DeadLetterSubject("eventweb", "eventweb.todo.TodoAdded"); got != "eventweb.dlq.eventweb.todo.TodoAdded" {
		t.Errorf("DeadLetterSubject = %q", got)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	b := &Bus{}
	if err := b.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	if b.IsConnected() {
		t.Error("IsConnected = true without a connection")
	}
}

// testConnect connects to NATS or skips the test if NATS_URL is not set.
// Each test gets its own stream and prefix.
func testConnect(t *testing.T) *Bus {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	b, err := Connect(context.Background(), Options{
		URL:             url,
		Stream:          "TEST_" + strings.ToUpper(name),
		Prefix:          "test" + name,
		DuplicateWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = b.js.DeleteStream(context.Background(), b.stream)
		if err := b.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return b
}

func testEvent(t *testing.T, typ string, pos uint64) eventstore.Event {
	t.Helper()
	ev, err := eventstore.NewEvent(typ, map[string]string{"title": "x"})
	if err != nil {
		t.Fatal(err)
	}
	ev.StreamPosition = pos
	ev.RecordedAt = time.Now().UTC()
	return ev
}

func receive(t *testing.T, ch <-chan eventbus.Message) eventbus.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return eventbus.Message{}
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := testConnect(t)
	ctx := logger.WithRequestID(context.Background(), "req-7")

	got := make(chan eventbus.Message, 4)
	gotReqID := make(chan string, 4)
	stop, err := b.Subscribe(context.Background(), "reader", "todo.>", func(ctx context.Context, m eventbus.Message) error {
		gotReqID <- logger.RequestID(ctx)
		got <- m
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := b.Publish(ctx, "todo-1", []eventstore.Event{testEvent(t, "TodoAdded", 1)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	m := receive(t, got)
	if m.StreamID != "todo-1" || m.Type != "TodoAdded" || m.StreamPosition != 1 {
		t.Errorf("message = %+v", m)
	}
	if id := <-gotReqID; id != "req-7" {
		t.Errorf("request id = %q, want req-7", id)
	}
}

func TestBus_DuplicatePositionIgnored(t *testing.T) {
	b := testConnect(t)
	ctx := context.Background()

	ev := testEvent(t, "TodoAdded", 1)
	for range 2 {
		if err := b.Publish(ctx, "todo-1", []eventstore.Event{ev}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	info, err := b.js.Stream(ctx, b.stream)
	if err != nil {
		t.Fatal(err)
	}
	if n := info.CachedInfo().State.Msgs; n != 1 {
		t.Errorf("stream holds %d messages, want 1", n)
	}
}

func TestBus_DeadLetter(t *testing.T) {
	b := testConnect(t)
	ctx := context.Background()

	var attempts atomic.Int32
	stop, err := b.Subscribe(ctx, "failing", "todo.>", func(context.Context, eventbus.Message) error {
		attempts.Add(1)
		return errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	dlq := make(chan *nats.Msg, 1)
	sub, err := b.nc.ChanSubscribe(DeadLetterSubject(b.prefix, ">"), dlq)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := b.Publish(ctx, "todo-1", []eventstore.Event{testEvent(t, "TodoAdded", 1)}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-dlq:
		if msg.Header.Get(headerError) != "boom" {
			t.Errorf("X-Error = %q", msg.Header.Get(headerError))
		}
	case <-time.After(30 * time.Second):
		t.Fatal("no dead letter")
	}
	if n := attempts.Load(); n != maxDeliver {
		t.Errorf("attempts = %d, want %d", n, maxDeliver)
	}
}
