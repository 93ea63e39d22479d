// Package legacy keeps the handler-returning response helpers of the first
// HTTP API alive while callers move to the direct helpers in package http.
//
// Each helper closes over its options and returns an http.HandlerFunc that
// delegates to the matching Send function.
package legacy

import (
	"net/http"
	"time"

	web "github.com/Strob0t/eventweb/internal/adapter/http"
	"github.com/Strob0t/eventweb/internal/middleware"
)

// OK responds 200.
//
// Deprecated: call http.SendOK from the route handler.
func OK(opts web.ResponseOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.SendOK(w, r, opts)
	}
}

// Created responds 201 with Location and {"id": ...}.
//
// Deprecated: call http.SendCreated from the route handler.
func Created(opts web.CreatedOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.SendCreated(w, r, opts)
	}
}

// Accepted responds 202.
//
// Deprecated: call http.SendAccepted from the route handler.
func Accepted(opts web.AcceptedOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.SendAccepted(w, r, opts)
	}
}

// NoContent responds 204.
//
// Deprecated: call http.SendNoContent from the route handler.
func NoContent(opts web.NoContentOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.SendNoContent(w, r, opts)
	}
}

// Problem responds with a Problem Details document.
//
// Deprecated: call http.SendProblem from the route handler, or return an
// error and let the application error hook render it.
func Problem(status int, opts web.ProblemOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.SendProblem(w, r, status, opts)
	}
}

// HTTPResponse responds with an arbitrary status.
//
// Deprecated: call http.Send from the route handler.
func HTTPResponse(status int, opts web.ResponseOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		web.Send(w, status, opts)
	}
}

// Handler computes the legacy response for a request. Errors go to the
// application error hook; a nil response means 204.
type Handler func(r *http.Request) (http.HandlerFunc, error)

// Serve adapts h to a route handler.
func Serve(h Handler) web.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		resp, err := h(r)
		if err != nil {
			return err
		}
		if resp == nil {
			resp = NoContent(web.NoContentOptions{})
		}
		resp(w, r)
		return nil
	}
}

// Mount registers fn under pattern behind Deprecation, Sunset and Link
// headers. A zero sunset omits the Sunset header.
func Mount(r *web.Router, pattern string, sunset time.Time, successor string, fn func(r *web.Router)) {
	r.With(middleware.Deprecation(sunset, successor)).Route(pattern, fn)
}
