package eventbus

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		streamID, eventType, want string
	}{
		{"todo-42", "TodoAdded", "eventweb.todo.TodoAdded"},
		{"todo-a-b", "TodoAdded", "eventweb.todo.TodoAdded"},
		{"orders", "Placed", "eventweb.orders.Placed"},
		{"weird.id-1", "a b>*", "eventweb.weird_id.a_b__"},
		{"-x", "", "eventweb._x._"},
	}
	for _, tt := range tests {
		if got := Subject("eventweb", tt.streamID, tt.eventType); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.streamID, tt.eventType, got, tt.want)
		}
	}
}

func TestNewMessageAndDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := eventstore.Event{
		Type:           "TodoAdded",
		Data:           json.RawMessage(`{"title":"x"}`),
		StreamPosition: 3,
		RecordedAt:     at,
	}
	m := NewMessage("todo-1", ev)
	if m.ID() != "todo-1:3" {
		t.Errorf("ID = %q", m.ID())
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.StreamID != "todo-1" || got.Type != "TodoAdded" || got.StreamPosition != 3 || !got.RecordedAt.Equal(at) {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name, data, want string
	}{
		{"not json", `{`, "decode event message"},
		{"no stream", `{"type":"A","stream_position":1}`, "stream_id is required"},
		{"no type", `{"stream_id":"s","stream_position":1}`, "type is required"},
		{"no position", `{"stream_id":"s","type":"A"}`, "stream_position must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
