package middleware

import (
	"net/http"
	"time"
)

// Deprecation returns middleware that adds RFC 8594 deprecation headers.
// The Sunset header uses RFC 7231 date format (HTTP-date). A zero sunset
// only sets Deprecation. link, when set, is sent as a successor-version Link.
func Deprecation(sunset time.Time, link string) func(http.Handler) http.Handler {
	var sunsetStr string
	if !sunset.IsZero() {
		sunsetStr = sunset.UTC().Format(http.TimeFormat)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Deprecation", "true")
			if sunsetStr != "" {
				w.Header().Set("Sunset", sunsetStr)
			}
			if link != "" {
				w.Header().Add("Link", "<"+link+`>; rel="successor-version"`)
			}
			next.ServeHTTP(w, r)
		})
	}
}
