package todos

import (
	"net/http"
	"time"

	web "github.com/Strob0t/eventweb/internal/adapter/http"
	"github.com/Strob0t/eventweb/internal/adapter/http/legacy"
	"github.com/Strob0t/eventweb/internal/domain/todo"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// LegacyRoutes returns the read and create endpoints of the v0 API under
// /v0/todos, built on the handler-returning helpers and marked deprecated
// in favour of successor.
func (a *API) LegacyRoutes(sunset time.Time, successor string) web.WebAPISetup {
	return func(r *web.Router) {
		legacy.Mount(r, "/v0/todos", sunset, successor, func(r *web.Router) {
			r.Post("/", legacy.Serve(a.legacyCreate))
			r.Get("/{id}", legacy.Serve(a.legacyGet))
		})
	}
}

//nolint:staticcheck // SA1019: v0 routes keep the deprecated helpers until sunset
func (a *API) legacyGet(r *http.Request) (http.HandlerFunc, error) {
	state, version, err := a.load(r.Context(), web.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return legacy.OK(web.ResponseOptions{Body: state, ETag: web.ToWeakETag(version)}), nil
}

//nolint:staticcheck // SA1019: v0 routes keep the deprecated helpers until sunset
func (a *API) legacyCreate(r *http.Request) (http.HandlerFunc, error) {
	req, err := web.ReadJSON[createRequest](nil, r, a.bodyLimit)
	if err != nil {
		return nil, err
	}

	id := a.newID()
	res, err := a.handle(r.Context(), cmdAdd, id,
		todo.Add{ID: id, Title: req.Title, Now: a.now()},
		eventstore.StreamDoesNotExist)
	if err != nil {
		return nil, err
	}
	return legacy.Created(web.CreatedOptions{
		CreatedID: id,
		ETag:      web.ToWeakETag(res.NextExpectedStreamVersion),
	}), nil
}
