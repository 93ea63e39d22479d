// Package http binds command handling to chi: application factory,
// response helpers, Problem Details, ETags, and HTTP middleware.
package http

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/eventweb/internal/logger"
)

// SecurityHeaders returns middleware that sets standard HTTP security
// headers. The content security policy denies everything: the API serves
// only JSON and problem documents.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// CORSOptions configures the CORS middleware. Empty fields use defaults.
type CORSOptions struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodHead, http.MethodPut,
		http.MethodPost, http.MethodPatch, http.MethodDelete,
	}
	defaultCORSExpose = []string{"ETag", "Location", headerRequestID}
)

const headerRequestID = "X-Request-ID"

func (o CORSOptions) withDefaults() CORSOptions {
	if len(o.AllowOrigins) == 0 {
		o.AllowOrigins = []string{"*"}
	}
	if len(o.AllowMethods) == 0 {
		o.AllowMethods = defaultCORSMethods
	}
	if o.ExposeHeaders == nil {
		o.ExposeHeaders = defaultCORSExpose
	}
	return o
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (o CORSOptions) allowOrigin(origin string) string {
	if slices.Contains(o.AllowOrigins, "*") {
		// Credentials are never honored with a literal wildcard.
		if o.AllowCredentials && origin != "" {
			return origin
		}
		return "*"
	}
	if origin != "" && slices.Contains(o.AllowOrigins, origin) {
		return origin
	}
	return ""
}

// CORS returns middleware that sets CORS headers and answers preflight
// requests with 204.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	methods := strings.Join(opts.AllowMethods, ", ")
	expose := strings.Join(opts.ExposeHeaders, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			if allowed := opts.allowOrigin(origin); allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if allowed != "*" {
					h.Add("Vary", "Origin")
				}
			}
			if opts.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if expose != "" {
				h.Set("Access-Control-Expose-Headers", expose)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methods)
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				} else if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
					h.Add("Vary", "Access-Control-Request-Headers")
				}
				if opts.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(opts.MaxAge.Seconds())))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Logger returns middleware that logs HTTP requests using l.
func Logger(l *slog.Logger) func(http.Handler) http.Handler {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			l.LogAttrs(r.Context(), levelFor(rw.status), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int("bytes", rw.bytes),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", logger.RequestID(r.Context())),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelInfo
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Hijack implements http.Hijacker.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("upstream ResponseWriter does not implement http.Hijacker")
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
