// Package todos serves the todo HTTP API on top of an event store.
package todos

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	web "github.com/Strob0t/eventweb/internal/adapter/http"
	cfotel "github.com/Strob0t/eventweb/internal/adapter/otel"
	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/domain/todo"
	"github.com/Strob0t/eventweb/internal/middleware"
	"github.com/Strob0t/eventweb/internal/port/cache"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
	"github.com/Strob0t/eventweb/internal/service"
)

// Command names used for spans and metrics.
const (
	cmdAdd      = "add"
	cmdComplete = "complete"
	cmdRemove   = "remove"
)

// API holds the dependencies of the todo routes.
type API struct {
	store     eventstore.Store
	metrics   *cfotel.Metrics
	idem      cache.Cache
	idemTTL   time.Duration
	bodyLimit int64
	now       func() time.Time
	newID     func() string
}

// Option configures an API.
type Option func(*API)

// WithMetrics records command counts and durations.
func WithMetrics(m *cfotel.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// WithIdempotency replays responses of mutating requests that repeat an
// Idempotency-Key within ttl.
func WithIdempotency(c cache.Cache, ttl time.Duration) Option {
	return func(a *API) { a.idem, a.idemTTL = c, ttl }
}

// WithBodyLimit bounds request bodies.
func WithBodyLimit(n int64) Option {
	return func(a *API) { a.bodyLimit = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// WithIDGenerator overrides the todo id source.
func WithIDGenerator(fn func() string) Option {
	return func(a *API) { a.newID = fn }
}

// New creates the todo API on store.
func New(store eventstore.Store, opts ...Option) *API {
	a := &API{
		store:     store,
		bodyLimit: web.DefaultBodyLimit,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes registers the todo endpoints. It is a web.WebAPISetup.
func (a *API) Routes(r *web.Router) {
	r.Route("/todos", func(r *web.Router) {
		if a.idem != nil {
			r = r.With(middleware.Idempotency(a.idem, a.idemTTL))
		}
		r.Post("/", a.create)
		r.Get("/{id}", a.get)
		r.Post("/{id}/complete", a.complete)
		r.Delete("/{id}", a.remove)
	})
}

type createRequest struct {
	Title string `json:"title"`
}

func (a *API) create(w http.ResponseWriter, r *http.Request) error {
	req, err := web.ReadJSON[createRequest](w, r, a.bodyLimit)
	if err != nil {
		return err
	}

	id := a.newID()
	res, err := a.handle(r.Context(), cmdAdd, id,
		todo.Add{ID: id, Title: req.Title, Now: a.now()},
		eventstore.StreamDoesNotExist)
	if err != nil {
		return err
	}

	web.SendCreated(w, r, web.CreatedOptions{
		CreatedID: id,
		ETag:      web.ToWeakETag(res.NextExpectedStreamVersion),
	})
	return nil
}

func (a *API) get(w http.ResponseWriter, r *http.Request) error {
	id := web.URLParam(r, "id")
	state, version, err := a.load(r.Context(), id)
	if err != nil {
		return err
	}

	web.SendOK(w, r, web.ResponseOptions{
		Body: state,
		ETag: web.ToWeakETag(version),
	})
	return nil
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) error {
	return a.mutate(w, r, cmdComplete, todo.Complete{Now: a.now()})
}

func (a *API) remove(w http.ResponseWriter, r *http.Request) error {
	return a.mutate(w, r, cmdRemove, todo.Remove{})
}

// mutate runs cmd guarded by the If-Match stream version and answers 204
// with the new version.
func (a *API) mutate(w http.ResponseWriter, r *http.Request, name string, cmd todo.Command) error {
	id := web.URLParam(r, "id")
	version, err := web.GetExpectedStreamVersion(r)
	if err != nil {
		return err
	}

	res, err := a.handle(r.Context(), name, id, cmd, eventstore.ExactVersion(version))
	if err != nil {
		return err
	}

	web.SendNoContent(w, r, web.NoContentOptions{
		ETag: web.ToWeakETag(res.NextExpectedStreamVersion),
	})
	return nil
}

// load folds the todo stream. Missing and removed todos are not found.
func (a *API) load(ctx context.Context, id string) (todo.Todo, uint64, error) {
	state, read, err := service.AggregateStream(ctx, a.store, todo.StreamID(id), todo.Decider)
	if err != nil {
		return todo.Todo{}, 0, err
	}
	if !state.Exists() {
		return todo.Todo{}, 0, &domain.NotFoundError{ID: id, Type: "todo"}
	}
	return state, read.CurrentVersion, nil
}

// handle runs cmd on the todo stream inside a command span.
func (a *API) handle(ctx context.Context, name, id string, cmd todo.Command, expected eventstore.ExpectedVersion) (service.HandleResult[todo.Todo], error) {
	streamID := todo.StreamID(id)
	ctx, span := cfotel.StartCommandSpan(ctx, name, streamID)
	start := time.Now()

	res, err := service.Handle(ctx, a.store, streamID, cmd, todo.Decider,
		service.HandleOptions{ExpectedStreamVersion: expected})

	cfotel.EndSpan(span, err)
	if a.metrics != nil {
		a.metrics.RecordCommand(ctx, name, time.Since(start), err)
	}

	var nf *domain.NotFoundError
	if errors.As(err, &nf) && nf.ID == "" {
		nf.ID = id
	}
	return res, err
}
