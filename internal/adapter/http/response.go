package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
)

// Content types written by the response helpers.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeProblem = "application/problem+json"
	ContentTypeText    = "text/plain; charset=utf-8"
)

// ResponseOptions describes a response assembled by Send.
type ResponseOptions struct {
	// Body is written as text for string, raw for []byte, JSON otherwise.
	Body     any
	ETag     ETag
	Location string
	Headers  http.Header
}

// CreatedOptions configures SendCreated.
type CreatedOptions struct {
	// CreatedID becomes the {"id": ...} body and, without URL, the last
	// segment of the Location header.
	CreatedID string
	URL       string
	ETag      ETag
	Body      any
	Headers   http.Header
}

// AcceptedOptions configures SendAccepted.
type AcceptedOptions struct {
	Location string
	ETag     ETag
	Body     any
	Headers  http.Header
}

// NoContentOptions configures SendNoContent.
type NoContentOptions struct {
	ETag     ETag
	Location string
	Headers  http.Header
}

type createdBody struct {
	ID string `json:"id"`
}

// Send writes status with the headers and body described by opts.
// 204 and 304 responses never carry a body. A JSON body that cannot be
// encoded turns the response into a 500 problem.
func Send(w http.ResponseWriter, status int, opts ResponseOptions) {
	bodyless := opts.Body == nil || status == http.StatusNoContent || status == http.StatusNotModified

	var payload []byte
	if !bodyless {
		switch body := opts.Body.(type) {
		case string:
			payload = []byte(body)
		case []byte:
			payload = body
		default:
			data, err := json.Marshal(body)
			if err != nil {
				slog.Error("failed to encode JSON response", "status", status, "error", err)
				SendProblem(w, nil, http.StatusInternalServerError, ProblemOptions{Detail: "internal server error"})
				return
			}
			payload = append(data, '\n')
		}
	}

	h := w.Header()
	for k, vals := range opts.Headers {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	if opts.ETag != "" {
		h.Set("ETag", string(opts.ETag))
	}
	if opts.Location != "" {
		h.Set("Location", opts.Location)
	}

	if bodyless {
		w.WriteHeader(status)
		return
	}

	switch opts.Body.(type) {
	case string:
		setDefaultContentType(h, ContentTypeText)
	case []byte:
		setDefaultContentType(h, "application/octet-stream")
	default:
		setDefaultContentType(h, ContentTypeJSON)
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func setDefaultContentType(h http.Header, ct string) {
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", ct)
	}
}

// SendOK writes a 200 response.
func SendOK(w http.ResponseWriter, _ *http.Request, opts ResponseOptions) {
	Send(w, http.StatusOK, opts)
}

// SendCreated writes a 201 response. Location is opts.URL when set, else
// the request URL joined with CreatedID.
func SendCreated(w http.ResponseWriter, r *http.Request, opts CreatedOptions) {
	location := opts.URL
	if location == "" && opts.CreatedID != "" {
		location = joinURL(RequestURL(r), url.PathEscape(opts.CreatedID))
	}

	body := opts.Body
	if body == nil && opts.CreatedID != "" {
		body = createdBody{ID: opts.CreatedID}
	}

	Send(w, http.StatusCreated, ResponseOptions{
		Body:     body,
		ETag:     opts.ETag,
		Location: location,
		Headers:  opts.Headers,
	})
}

// SendAccepted writes a 202 response.
func SendAccepted(w http.ResponseWriter, _ *http.Request, opts AcceptedOptions) {
	Send(w, http.StatusAccepted, ResponseOptions{
		Body:     opts.Body,
		ETag:     opts.ETag,
		Location: opts.Location,
		Headers:  opts.Headers,
	})
}

// SendNoContent writes a 204 response.
func SendNoContent(w http.ResponseWriter, _ *http.Request, opts NoContentOptions) {
	Send(w, http.StatusNoContent, ResponseOptions{
		ETag:     opts.ETag,
		Location: opts.Location,
		Headers:  opts.Headers,
	})
}
