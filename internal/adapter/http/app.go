package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/eventweb/internal/middleware"
)

// WebAPISetup registers a group of routes on the application router.
type WebAPISetup func(r *Router)

// Options configures GetApplication. It is read once at construction.
type Options struct {
	APIs []WebAPISetup

	EnableCORS bool
	CORS       CORSOptions

	EnableETag bool
	ETag       ETagOptions

	EnableSecurityHeaders bool

	EnableLogger bool
	Logger       *slog.Logger

	// MapError is consulted before the default error mapping.
	MapError ErrorToProblemDetailsMapping

	// DisableProblemDetails falls back to net/http's plain-text errors.
	DisableProblemDetails bool

	// ProblemObservers are notified of every problem response.
	ProblemObservers []ProblemObserver

	// Middlewares run after the ETag middleware and before routing.
	Middlewares []func(http.Handler) http.Handler
}

// GetApplication builds the router. Middleware order is request id, logger,
// security headers, CORS, ETag, extra middlewares, panic recovery, routes.
func GetApplication(opts Options) http.Handler {
	r := chi.NewRouter()

	onError := ErrorHandler(rawErrorHandler)
	if !opts.DisableProblemDetails {
		onError = ProblemDetailsHandler(opts.MapError, opts.ProblemObservers...)
	}

	r.Use(middleware.RequestID)
	if opts.EnableLogger {
		r.Use(Logger(opts.Logger))
	}
	if opts.EnableSecurityHeaders {
		r.Use(SecurityHeaders)
	}
	if opts.EnableCORS {
		r.Use(CORS(opts.CORS))
	}
	if opts.EnableETag {
		r.Use(ETagMiddleware(opts.ETag))
	}
	r.Use(chimw.GetHead)
	r.Use(opts.Middlewares...)
	r.Use(Recoverer(onError))

	if !opts.DisableProblemDetails {
		r.NotFound(func(w http.ResponseWriter, req *http.Request) {
			onError(w, req, NewHTTPError(http.StatusNotFound, "no route for "+req.Method+" "+req.URL.Path))
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
			onError(w, req, NewHTTPError(http.StatusMethodNotAllowed, "method "+req.Method+" not allowed for "+req.URL.Path))
		})
	}

	router := NewRouter(r, onError)
	for _, api := range opts.APIs {
		api(router)
	}

	return r
}
