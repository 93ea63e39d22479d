package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// untracedPaths are probed often enough that spans would be noise.
var untracedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// HTTPMiddleware returns a chi-compatible middleware that creates spans for HTTP requests.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !untracedPaths[r.URL.Path]
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
