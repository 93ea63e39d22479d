package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/eventweb/internal/domain"
)

// DefaultBodyLimit bounds request bodies read by ReadJSON.
const DefaultBodyLimit int64 = 1 << 20

// ReadJSON decodes a JSON request body with a size limit. An oversized body
// yields *http.MaxBytesError; a malformed one a *domain.ValidationError.
func ReadJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, error) {
	var v T
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return v, maxErr
		}
		if errors.Is(err, io.EOF) {
			return v, domain.NewValidationError("request body is required")
		}
		return v, domain.NewValidationError("invalid request body: %v", err)
	}
	return v, nil
}

// URLParam is a short alias for chi.URLParam.
func URLParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// RequestURL reconstructs the absolute URL of r without query or trailing
// slash. Scheme honors TLS and X-Forwarded-Proto.
func RequestURL(r *http.Request) string {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		switch {
		case r.Header.Get("X-Forwarded-Proto") != "":
			u.Scheme = strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]))
		case r.TLS != nil:
			u.Scheme = "https"
		default:
			u.Scheme = "http"
		}
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawPath = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// joinURL appends a path segment to base.
func joinURL(base, segment string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), strings.TrimPrefix(segment, "/"))
}
