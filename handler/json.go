package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSONResponse is the response envelope of every API endpoint.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

func WithStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

func WithMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON wraps v in the data field of the envelope.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type errorResponse struct {
	err error
}

func (e *errorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	(&wrapConfig{logger: slog.Default()}).renderError(w, r, e.err)
	return nil
}

// JSONError renders err through the error mappers registered on Wrap.
func JSONError(err error) Response {
	if err == nil {
		err = ErrInternalServerError
	}
	return &errorResponse{err: err}
}
