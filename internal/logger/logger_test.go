package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Strob0t/eventweb/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
	// Second close is a no-op.
	closer.Close()
}

func TestNewWithWriter_Attributes(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "todos"}, &buf)
	defer closer.Close()

	ctx := WithRequestID(context.Background(), "req-42")
	l.InfoContext(ctx, "hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != "todos" {
		t.Errorf("service = %v, want todos", line["service"])
	}
	if line["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", line["request_id"])
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Errorf("unexpected line %v", line)
	}
}

func TestNewWithWriter_AsyncFlushOnClose(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "todos", Async: true}, &buf)

	l.With("group", "g1").Info("queued")
	closer.Close()

	if !bytes.Contains(buf.Bytes(), []byte(`"group":"g1"`)) {
		t.Errorf("expected attrs from With to survive async handling, got %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "error", Service: "todos"}, &buf)
	defer closer.Close()
	t.Cleanup(func() { SetLevel("info") })

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at error level, got %q", buf.String())
	}

	SetLevel("debug")
	l.Debug("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("debug should pass after SetLevel, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	// Empty context returns empty string
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}

	// Set and retrieve
	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestNewWithWriter_ExplicitRequestIDNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "todos"}, &buf)
	defer closer.Close()

	ctx := WithRequestID(context.Background(), "req-42")
	l.InfoContext(ctx, "hello", "request_id", "req-42")

	if n := bytes.Count(buf.Bytes(), []byte(`"request_id"`)); n != 1 {
		t.Errorf("request_id appears %d times in %s", n, buf.String())
	}
}
