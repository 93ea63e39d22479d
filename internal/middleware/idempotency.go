package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/eventweb/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20 // 1 MB
	maxIdempotencyKeyLen = 256
)

// idempotencyEntry stores a cached HTTP response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency returns middleware that deduplicates POST/PUT/PATCH/DELETE
// requests carrying an Idempotency-Key header. Responses are stored in c for
// ttl, keyed by method, path and key. 5xx responses are not stored so the
// client may retry.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to mutating methods
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				next.ServeHTTP(w, r)
				return
			}
			cacheKey := "idem." + r.Method + "." + r.URL.Path + "." + key

			data, found, err := c.Get(r.Context(), cacheKey)
			if err != nil {
				slog.Warn("idempotency: cache lookup failed", "key", key, "error", err)
			}
			if found {
				var cached idempotencyEntry
				if err := json.Unmarshal(data, &cached); err == nil {
					for k, vals := range cached.Headers {
						if k == http.CanonicalHeaderKey(headerRequestID) {
							continue
						}
						w.Header()[k] = append([]string(nil), vals...)
					}
					w.Header().Set(headerReplayed, "true")
					w.WriteHeader(cached.StatusCode)
					_, _ = w.Write(cached.Body)
					return
				}
				slog.Warn("idempotency: corrupt cache entry", "key", key)
			}

			// Cache miss: process request and capture response
			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				return
			}
			cached := idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			}
			payload, err := json.Marshal(cached)
			if err != nil {
				return
			}
			if err := c.Set(r.Context(), cacheKey, payload, ttl); err != nil {
				slog.Warn("idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// responseRecorder wraps http.ResponseWriter to capture the response.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
