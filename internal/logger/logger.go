// Package logger provides structured logging setup for eventweb.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/eventweb/internal/config"
)

// Async handler sizing.
const (
	asyncBufferSize = 4096
	asyncWorkers    = 1
)

// level is shared by every logger built here so SetLevel applies on reload.
var level = new(slog.LevelVar)

// SetLevel changes the minimum level of loggers created by New.
func SetLevel(s string) {
	level.Set(parseLevel(s))
}

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record and
// the request ID of the record's context, when present.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	SetLevel(cfg.Level)
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	handler = &contextHandler{Handler: handler}

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBufferSize, asyncWorkers)
		handler, closer = ah, ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// contextHandler adds the request ID stored in the context to each record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if id := RequestID(ctx); id != "" && !hasAttr(rec, "request_id") {
		rec.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, rec)
}

func hasAttr(rec slog.Record, key string) bool { //nolint:gocritic // slog.Record is passed by value throughout log/slog
	found := false
	rec.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
