package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/logger"
)

// ProblemTypeBlank is the default RFC 7807 problem type.
const ProblemTypeBlank = "about:blank"

// ProblemDocument is an RFC 7807 Problem Details payload.
type ProblemDocument struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

var problemTitles = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Conflict",
	http.StatusPreconditionFailed:  "Precondition Failed",
	http.StatusInternalServerError: "Internal Server Error",
}

// ProblemTitle returns the default title for status.
func ProblemTitle(status int) string {
	if title, ok := problemTitles[status]; ok {
		return title
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown Error"
}

// NewProblemDocument creates a document with default type and title.
func NewProblemDocument(status int, detail string) *ProblemDocument {
	return &ProblemDocument{
		Type:   ProblemTypeBlank,
		Title:  ProblemTitle(status),
		Status: status,
		Detail: detail,
	}
}

// ProblemOptions configures SendProblem. Problem wins over Detail.
type ProblemOptions struct {
	Problem  *ProblemDocument
	Detail   string
	ETag     ETag
	Location string
}

// SendProblem writes an application/problem+json response.
func SendProblem(w http.ResponseWriter, _ *http.Request, status int, opts ProblemOptions) {
	var problem ProblemDocument
	if opts.Problem != nil {
		problem = *opts.Problem
	} else {
		problem.Detail = opts.Detail
	}
	if problem.Status == 0 {
		problem.Status = status
	}
	if problem.Type == "" {
		problem.Type = ProblemTypeBlank
	}
	if problem.Title == "" {
		problem.Title = ProblemTitle(problem.Status)
	}

	h := w.Header()
	if opts.ETag != "" {
		h.Set("ETag", string(opts.ETag))
	}
	if opts.Location != "" {
		h.Set("Location", opts.Location)
	}
	h.Set("Content-Type", ContentTypeProblem)
	h.Del("Content-Length")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("failed to write problem response", "error", err)
	}
}

// HTTPError is an error carrying its own HTTP status, raised by route code
// or by the router itself.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// HTTPStatus implements StatusCoder.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// StatusCoder is implemented by errors that choose their own status code.
type StatusCoder interface {
	HTTPStatus() int
}

// ErrorHandler writes the response for an error returned by a route.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorToProblemDetailsMapping translates an error into a problem document.
// Returning nil defers to DefaultErrorToProblemDetailsMapping.
type ErrorToProblemDetailsMapping func(err error, r *http.Request) *ProblemDocument

// ProblemObserver is notified of every problem response.
type ProblemObserver interface {
	RecordProblem(ctx context.Context, status int)
}

// DefaultErrorToProblemDetailsMapping maps the command-handling error
// taxonomy to problem documents. Unknown errors become 500 with a generic
// detail; the actual error is logged.
func DefaultErrorToProblemDetailsMapping(err error, r *http.Request) *ProblemDocument {
	var (
		validation   *domain.ValidationError
		illegalState *domain.IllegalStateError
		concurrency  *domain.ConcurrencyError
		maxBytes     *http.MaxBytesError
		coder        StatusCoder
	)

	switch {
	case errors.As(err, &coder) && validStatus(coder.HTTPStatus()):
		return NewProblemDocument(coder.HTTPStatus(), err.Error())
	case errors.As(err, &validation):
		return NewProblemDocument(http.StatusBadRequest, validation.Message)
	case errors.As(err, &illegalState):
		return NewProblemDocument(http.StatusForbidden, illegalState.Message)
	case errors.Is(err, domain.ErrNotFound):
		return NewProblemDocument(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return NewProblemDocument(http.StatusConflict, err.Error())
	case errors.As(err, &concurrency):
		return NewProblemDocument(http.StatusPreconditionFailed, concurrency.Error())
	case errors.Is(err, ErrMissingIfMatch), errors.Is(err, ErrMissingIfNoneMatch):
		return NewProblemDocument(http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, ErrWrongWeakETagFormat):
		return NewProblemDocument(http.StatusBadRequest, err.Error())
	case errors.As(err, &maxBytes):
		return NewProblemDocument(http.StatusRequestEntityTooLarge, "request body too large")
	}

	slog.ErrorContext(r.Context(), "unhandled request error",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", logger.RequestID(r.Context()),
	)
	return NewProblemDocument(http.StatusInternalServerError, "internal server error")
}

func validStatus(status int) bool {
	return status >= 100 && status < 600
}

// ProblemDetailsHandler returns the error hook that renders every error as a
// problem document. mapError is consulted first.
func ProblemDetailsHandler(mapError ErrorToProblemDetailsMapping, observers ...ProblemObserver) ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		var problem *ProblemDocument
		if mapError != nil {
			problem = mapError(err, r)
		}
		if problem == nil {
			problem = DefaultErrorToProblemDetailsMapping(err, r)
		}

		doc := *problem
		if !validStatus(doc.Status) {
			doc.Status = http.StatusInternalServerError
			doc.Title = ProblemTitle(doc.Status)
		}
		for _, o := range observers {
			o.RecordProblem(r.Context(), doc.Status)
		}
		SendProblem(w, r, doc.Status, ProblemOptions{Problem: &doc})
	}
}

// rawErrorHandler mimics net/http's plain-text error responses. It is used
// when Problem Details are disabled.
func rawErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	var coder StatusCoder
	if errors.As(err, &coder) && validStatus(coder.HTTPStatus()) {
		http.Error(w, err.Error(), coder.HTTPStatus())
		return
	}
	slog.ErrorContext(r.Context(), "unhandled request error", "error", err, "path", r.URL.Path)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
