package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler is a route handler that reports failures by returning an error.
// The error is rendered by the application's error hook.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Router registers error-returning handlers on a chi router.
type Router struct {
	mux     chi.Router
	onError ErrorHandler
}

// NewRouter wraps mux; errors returned by handlers go to onError.
func NewRouter(mux chi.Router, onError ErrorHandler) *Router {
	if onError == nil {
		onError = ProblemDetailsHandler(nil)
	}
	return &Router{mux: mux, onError: onError}
}

// HandlerFunc adapts h to a plain http.HandlerFunc using the router's
// error hook.
func (rt *Router) HandlerFunc(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cw := &commitWriter{ResponseWriter: w}
		if err := h(cw, r); err != nil {
			handleError(rt.onError, cw, r, err)
		}
	}
}

// handleError passes err to onError while the response is still open. Once
// the handler has sent headers or body, the error is logged and the
// response aborted so the client sees an interrupted response instead of a
// problem document spliced into it.
func handleError(onError ErrorHandler, cw *commitWriter, r *http.Request, err error) {
	if !cw.committed {
		onError(cw, r, err)
		return
	}
	slog.ErrorContext(r.Context(), "request failed after response was committed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
	)
	panic(http.ErrAbortHandler)
}

// commitWriter records whether the response status has been sent.
type commitWriter struct {
	http.ResponseWriter
	committed bool
}

func (cw *commitWriter) WriteHeader(code int) {
	// 1xx responses are informational and leave the response open.
	if code >= http.StatusOK {
		cw.committed = true
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.committed = true
	return cw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (cw *commitWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		cw.committed = true
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *commitWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }

func (rt *Router) Get(pattern string, h Handler)    { rt.mux.Get(pattern, rt.HandlerFunc(h)) }
func (rt *Router) Head(pattern string, h Handler)   { rt.mux.Head(pattern, rt.HandlerFunc(h)) }
func (rt *Router) Post(pattern string, h Handler)   { rt.mux.Post(pattern, rt.HandlerFunc(h)) }
func (rt *Router) Put(pattern string, h Handler)    { rt.mux.Put(pattern, rt.HandlerFunc(h)) }
func (rt *Router) Patch(pattern string, h Handler)  { rt.mux.Patch(pattern, rt.HandlerFunc(h)) }
func (rt *Router) Delete(pattern string, h Handler) { rt.mux.Delete(pattern, rt.HandlerFunc(h)) }

// Method registers h for an arbitrary HTTP method.
func (rt *Router) Method(method, pattern string, h Handler) {
	rt.mux.Method(method, pattern, rt.HandlerFunc(h))
}

// Route mounts a sub-router along pattern.
func (rt *Router) Route(pattern string, fn func(r *Router)) {
	rt.mux.Route(pattern, func(sub chi.Router) {
		fn(&Router{mux: sub, onError: rt.onError})
	})
}

// Group creates an inline group that shares the parent's path.
func (rt *Router) Group(fn func(r *Router)) {
	rt.mux.Group(func(sub chi.Router) {
		fn(&Router{mux: sub, onError: rt.onError})
	})
}

// With returns a router whose routes run behind mws.
func (rt *Router) With(mws ...func(http.Handler) http.Handler) *Router {
	return &Router{mux: rt.mux.With(mws...), onError: rt.onError}
}

// Chi exposes the underlying chi router for plain http.Handlers.
func (rt *Router) Chi() chi.Router { return rt.mux }

// OnError returns the router's error hook.
func (rt *Router) OnError() ErrorHandler { return rt.onError }

// Recoverer converts panics in downstream handlers into errors passed to
// onError. http.ErrAbortHandler is re-raised, and so is any panic raised
// after the response was committed.
func Recoverer(onError ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &commitWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				handleError(onError, cw, r, err)
			}()
			next.ServeHTTP(cw, r)
		})
	}
}
