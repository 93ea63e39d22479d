package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ETag is an entity tag header value, weak (W/"v") or strong ("v").
type ETag string

// ETag parsing errors. Their messages are part of the wire contract.
var (
	ErrWrongWeakETagFormat = errors.New("WRONG_WEAK_ETAG_FORMAT")
	ErrMissingIfMatch      = errors.New("MISSING_IF_MATCH_HEADER")
	ErrMissingIfNoneMatch  = errors.New("MISSING_IF_NOT_MATCH_HEADER")
)

const weakPrefix = "W/"

var weakETagRegex = regexp.MustCompile(`^W/"(.*)"$`)

// ToWeakETag formats value (integer, *big.Int, string, fmt.Stringer) as a
// weak ETag.
func ToWeakETag(value any) ETag {
	return ETag(fmt.Sprintf(`W/"%v"`, value))
}

// ToStrongETag formats value as a strong ETag.
func ToStrongETag(value any) ETag {
	return ETag(fmt.Sprintf(`"%v"`, value))
}

// IsWeakETag reports whether etag has the W/"..." form.
func IsWeakETag(etag ETag) bool {
	return weakETagRegex.MatchString(string(etag))
}

// GetWeakETagValue returns the quoted value of a weak ETag.
func GetWeakETagValue(etag ETag) (string, error) {
	m := weakETagRegex.FindStringSubmatch(string(etag))
	if m == nil {
		return "", ErrWrongWeakETagFormat
	}
	return m[1], nil
}

// GetETagFromIfMatch returns the If-Match header value.
func GetETagFromIfMatch(r *http.Request) (ETag, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" {
		return "", ErrMissingIfMatch
	}
	return ETag(v), nil
}

// GetETagFromIfNotMatch returns the If-None-Match header value.
func GetETagFromIfNotMatch(r *http.Request) (ETag, error) {
	v := strings.TrimSpace(r.Header.Get("If-None-Match"))
	if v == "" {
		return "", ErrMissingIfNoneMatch
	}
	return ETag(v), nil
}

// GetExpectedStreamVersion reads the stream version a client expects from a
// weak If-Match ETag.
func GetExpectedStreamVersion(r *http.Request) (uint64, error) {
	etag, err := GetETagFromIfMatch(r)
	if err != nil {
		return 0, err
	}
	value, err := GetWeakETagValue(etag)
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, ErrWrongWeakETagFormat
	}
	return version, nil
}

// opaqueTag strips the weak prefix for weak comparison.
func opaqueTag(etag string) string {
	return strings.TrimPrefix(strings.TrimSpace(etag), weakPrefix)
}

// ETagMatches reports whether etag matches any tag in an If-None-Match style
// header using weak comparison. "*" matches everything.
func ETagMatches(etag ETag, header string) bool {
	if etag == "" || header == "" {
		return false
	}
	want := opaqueTag(string(etag))
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || opaqueTag(candidate) == want {
			return true
		}
	}
	return false
}

// ETagOptions configures ETagMiddleware.
type ETagOptions struct {
	// Weak defaults to true; set to a false pointer for strong ETags.
	Weak *bool
}

func (o ETagOptions) weak() bool {
	return o.Weak == nil || *o.Weak
}

// HashETag derives an ETag from body content.
func HashETag(body []byte, weak bool) ETag {
	sum := strconv.FormatUint(xxhash.Sum64(body), 16)
	if weak {
		return ToWeakETag(sum)
	}
	return ToStrongETag(sum)
}

// ETagMiddleware buffers GET/HEAD responses, attaches a content-hash ETag
// to non-empty 2xx responses that lack one (except 204), and answers a
// matching If-None-Match with 304.
func ETagMiddleware(opts ETagOptions) func(http.Handler) http.Handler {
	weak := opts.weak()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r)

			status := bw.status
			h := w.Header()
			etag := ETag(h.Get("ETag"))
			success := status >= 200 && status < 300

			if etag == "" && success && status != http.StatusNoContent && bw.buf.Len() > 0 {
				etag = HashETag(bw.buf.Bytes(), weak)
				h.Set("ETag", string(etag))
			}

			if success && ETagMatches(etag, r.Header.Get("If-None-Match")) {
				h.Del("Content-Type")
				h.Del("Content-Length")
				w.WriteHeader(http.StatusNotModified)
				return
			}

			w.WriteHeader(status)
			_, _ = w.Write(bw.buf.Bytes())
		})
	}
}

// bufferedWriter holds the status and body until the handler returns.
// Headers go straight to the underlying writer's map.
type bufferedWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (bw *bufferedWriter) WriteHeader(code int) {
	if bw.wroteHeader {
		return
	}
	bw.status = code
	bw.wroteHeader = true
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	bw.wroteHeader = true
	return bw.buf.Write(b)
}
