package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	web "github.com/Strob0t/eventweb/internal/adapter/http"
	"github.com/Strob0t/eventweb/internal/domain"
)

func newApp(opts web.Options) http.Handler {
	opts.APIs = append(opts.APIs, func(r *web.Router) {
		r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) error {
			id := web.URLParam(r, "id")
			if id == "missing" {
				return &domain.NotFoundError{ID: id, Type: "item"}
			}
			web.SendOK(w, r, web.ResponseOptions{Body: map[string]string{"id": id}, ETag: web.ToWeakETag(1)})
			return nil
		})
		r.Post("/items/{id}/fail", func(http.ResponseWriter, *http.Request) error {
			return errors.New("database exploded")
		})
		r.Get("/panic", func(http.ResponseWriter, *http.Request) error {
			panic(domain.NewIllegalStateError("frozen"))
		})
		r.Get("/panic-value", func(http.ResponseWriter, *http.Request) error {
			panic("oops")
		})
		r.Get("/bad-body", func(w http.ResponseWriter, r *http.Request) error {
			web.SendOK(w, r, web.ResponseOptions{Body: panickyBody{}, ETag: web.ToWeakETag(1)})
			return nil
		})
		r.Get("/partial", func(w http.ResponseWriter, _ *http.Request) error {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"partial":`))
			return errors.New("stream broke")
		})
		r.Get("/partial-panic", func(w http.ResponseWriter, _ *http.Request) error {
			_, _ = w.Write([]byte(`{"partial":`))
			panic("stream broke")
		})
		r.Route("/v2", func(r *web.Router) {
			r.Group(func(r *web.Router) {
				r.Put("/items/{id}", func(w http.ResponseWriter, r *http.Request) error {
					version, err := web.GetExpectedStreamVersion(r)
					if err != nil {
						return err
					}
					web.SendNoContent(w, r, web.NoContentOptions{ETag: web.ToWeakETag(version + 1)})
					return nil
				})
			})
		})
	})
	return web.GetApplication(opts)
}

type panickyBody struct{}

func (panickyBody) MarshalJSON() ([]byte, error) { panic("cannot encode") }

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func problemOf(t *testing.T, w *httptest.ResponseRecorder) web.ProblemDocument {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != web.ContentTypeProblem {
		t.Fatalf("Content-Type = %q, want problem+json (body %s)", ct, w.Body.String())
	}
	var doc web.ProblemDocument
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestApplication_ProblemDetails(t *testing.T) {
	app := newApp(web.Options{})

	tests := []struct {
		name       string
		method     string
		target     string
		headers    map[string]string
		wantStatus int
		wantDetail string
	}{
		{"not found error", http.MethodGet, "/items/missing", nil, 404, "item with id missing was not found"},
		{"unknown error hidden", http.MethodPost, "/items/1/fail", nil, 500, "internal server error"},
		{"panic with error", http.MethodGet, "/panic", nil, 403, "frozen"},
		{"panic with value", http.MethodGet, "/panic-value", nil, 500, "internal server error"},
		{"no route", http.MethodGet, "/nowhere", nil, 404, "no route for GET /nowhere"},
		{"wrong method", http.MethodDelete, "/items/1", nil, 405, "method DELETE not allowed for /items/1"},
		{"missing if-match", http.MethodPut, "/v2/items/1", nil, 428, "MISSING_IF_MATCH_HEADER"},
		{"strong if-match", http.MethodPut, "/v2/items/1", map[string]string{"If-Match": `"1"`}, 400, "WRONG_WEAK_ETAG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(app, tt.method, tt.target, tt.headers)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			doc := problemOf(t, w)
			if doc.Status != tt.wantStatus || doc.Detail != tt.wantDetail {
				t.Errorf("doc = %+v, want status %d detail %q", doc, tt.wantStatus, tt.wantDetail)
			}
		})
	}
}

func TestApplication_IfMatchSuccess(t *testing.T) {
	app := newApp(web.Options{})
	w := do(app, http.MethodPut, "/v2/items/1", map[string]string{"If-Match": `W/"4"`})

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `W/"5"` {
		t.Errorf("ETag = %q, want W/\"5\"", got)
	}
}

func TestApplication_MapErrorFallsThrough(t *testing.T) {
	app := newApp(web.Options{
		MapError: func(err error, _ *http.Request) *web.ProblemDocument {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				return &web.ProblemDocument{Status: http.StatusGone, Detail: "gone for good"}
			}
			return nil
		},
	})

	w := do(app, http.MethodGet, "/items/missing", nil)
	if w.Code != http.StatusGone || problemOf(t, w).Detail != "gone for good" {
		t.Errorf("custom mapping not applied: %d", w.Code)
	}

	w = do(app, http.MethodPost, "/items/1/fail", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("nil mapping should fall through to 500, got %d", w.Code)
	}
}

func TestApplication_DisableProblemDetails(t *testing.T) {
	app := newApp(web.Options{DisableProblemDetails: true})

	w := do(app, http.MethodPost, "/items/1/fail", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if strings.Contains(w.Body.String(), "exploded") {
		t.Errorf("internal error leaked: %q", w.Body.String())
	}

	w = do(app, http.MethodGet, "/nowhere", nil)
	if w.Code != http.StatusNotFound || w.Header().Get("Content-Type") == web.ContentTypeProblem {
		t.Errorf("expected chi's plain 404, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestApplication_ETagAndHead(t *testing.T) {
	app := newApp(web.Options{EnableETag: true})

	w := do(app, http.MethodGet, "/items/1", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != `W/"1"` {
		t.Fatalf("status %d ETag %q", w.Code, w.Header().Get("ETag"))
	}

	w = do(app, http.MethodGet, "/items/1", map[string]string{"If-None-Match": `W/"1"`})
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Errorf("status %d body %q; want 304 empty", w.Code, w.Body.String())
	}

	w = do(app, http.MethodHead, "/items/1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d, want 200", w.Code)
	}
}

func TestApplication_RequestIDAndMiddlewares(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	app := newApp(web.Options{
		EnableLogger: true,
		EnableCORS:   true,
		Middlewares:  []func(http.Handler) http.Handler{mw("a"), mw("b")},
	})

	w := do(app, http.MethodGet, "/items/1", map[string]string{"X-Request-ID": "given", "Origin": "https://app.example"})
	if got := w.Header().Get("X-Request-ID"); got != "given" {
		t.Errorf("X-Request-ID = %q, want given", got)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS headers missing")
	}
	if strings.Join(order, ",") != "a,b" {
		t.Errorf("middleware order = %v", order)
	}

	w = do(app, http.MethodGet, "/items/1", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated request id")
	}
}

type statusCounter map[int]int

func (c statusCounter) RecordProblem(_ context.Context, status int) { c[status]++ }

func TestApplication_ProblemObservers(t *testing.T) {
	counter := statusCounter{}
	app := newApp(web.Options{ProblemObservers: []web.ProblemObserver{counter}})

	do(app, http.MethodGet, "/items/missing", nil)
	do(app, http.MethodGet, "/nowhere", nil)
	do(app, http.MethodGet, "/items/1", nil)

	if counter[404] != 2 || len(counter) != 1 {
		t.Errorf("observed %v, want two 404s", counter)
	}
}

func TestApplication_BodyEncodingPanic(t *testing.T) {
	app := newApp(web.Options{EnableETag: true})

	w := do(app, http.MethodGet, "/bad-body", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != "" {
		t.Errorf("error response carries ETag %q", etag)
	}
	if doc := problemOf(t, w); doc.Status != http.StatusInternalServerError {
		t.Errorf("problem status = %d", doc.Status)
	}
}

func TestApplication_ErrorAfterCommitAborts(t *testing.T) {
	app := newApp(web.Options{})

	for _, path := range []string{"/partial", "/partial-panic"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			func() {
				defer func() {
					if rec := recover(); rec != http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
						t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
					}
				}()
				app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			}()

			if got := w.Body.String(); got != `{"partial":` {
				t.Errorf("body = %q, want only the partial write", got)
			}
			if ct := w.Header().Get("Content-Type"); ct == web.ContentTypeProblem {
				t.Error("problem document written after commit")
			}
		})
	}
}

func TestApplication_ErrorAfterCommitWithETag(t *testing.T) {
	srv := httptest.NewServer(newApp(web.Options{EnableETag: true}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/partial")
	if err == nil {
		resp.Body.Close()
		t.Fatalf("got %d with ETag %q, want an aborted response", resp.StatusCode, resp.Header.Get("ETag"))
	}
}

func TestApplication_SecurityHeaders(t *testing.T) {
	app := newApp(web.Options{EnableSecurityHeaders: true})

	for _, path := range []string{"/items/1", "/nowhere"} {
		w := do(app, http.MethodGet, path, nil)
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("%s: X-Content-Type-Options = %q", path, got)
		}
		if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
			t.Errorf("%s: Content-Security-Policy = %q", path, got)
		}
	}

	w := do(newApp(web.Options{}), http.MethodGet, "/items/1", nil)
	if w.Header().Get("X-Frame-Options") != "" {
		t.Error("security headers set without the option")
	}
}
