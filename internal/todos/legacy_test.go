package todos_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Strob0t/eventweb/internal/domain/todo"
)

func TestLegacyRoutes(t *testing.T) {
	h := newApp(t)

	w := do(h, http.MethodPost, "/v0/todos", `{"title":"old client"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Deprecation") != "true" {
		t.Error("missing Deprecation header")
	}
	if got := w.Header().Get("Sunset"); got != "Fri, 01 Jan 2027 00:00:00 GMT" {
		t.Errorf("Sunset = %q", got)
	}
	if got := w.Header().Get("Link"); got != `</todos>; rel="successor-version"` {
		t.Errorf("Link = %q", got)
	}
	if got := w.Header().Get("Location"); got != "http://example.com/v0/todos/todo-1" {
		t.Errorf("Location = %q", got)
	}

	w = do(h, http.MethodGet, "/v0/todos/todo-1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `W/"1"` {
		t.Errorf("ETag = %q", got)
	}
	var got todo.Todo
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "old client" {
		t.Errorf("title = %q", got.Title)
	}

	// The same todo is visible through the current API.
	if w := do(h, http.MethodGet, "/todos/todo-1", "", nil); w.Code != http.StatusOK {
		t.Errorf("current API status = %d", w.Code)
	}
}

func TestLegacyRoutes_ProblemsGoThroughErrorHook(t *testing.T) {
	h := newApp(t)

	w := do(h, http.MethodGet, "/v0/todos/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	problemOf(t, w)
	if w.Header().Get("Deprecation") != "true" {
		t.Error("missing Deprecation header on problem response")
	}
}
