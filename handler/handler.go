package handler

import (
	"errors"
	"log/slog"
	"net/http"
)

// HandlerFunc handles a request whose body or query has already been bound
// into R.
type HandlerFunc[R any] func(r *http.Request, req R) Response

// Response renders itself to the writer.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind fills v from the request.
type Bind func(r *http.Request, v any) error

// ErrorMapper translates domain errors into HTTPError values. Returning
// false leaves the error as a 500.
type ErrorMapper func(err error) (HTTPError, bool)

// WrapOption configures Wrap.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	binders []Bind
	mappers []ErrorMapper
	logger  *slog.Logger
}

// WithBinders runs binders in order before the handler.
func WithBinders(binders ...Bind) WrapOption {
	return func(c *wrapConfig) { c.binders = append(c.binders, binders...) }
}

// WithErrorMapper registers mappers consulted by JSONError responses.
func WithErrorMapper(mappers ...ErrorMapper) WrapOption {
	return func(c *wrapConfig) { c.mappers = append(c.mappers, mappers...) }
}

// WithLogger logs 5xx responses. Defaults to slog.Default.
func WithLogger(l *slog.Logger) WrapOption {
	return func(c *wrapConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Wrap adapts a typed handler to http.HandlerFunc. Bind failures and render
// failures are answered with the JSON error envelope.
func Wrap[R any](h HandlerFunc[R], opts ...WrapOption) http.HandlerFunc {
	cfg := &wrapConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.renderError(w, r, err)
				return
			}
		}

		resp := h(r, req)
		if resp == nil {
			cfg.renderError(w, r, ErrNilResponse)
			return
		}
		if er, ok := resp.(*errorResponse); ok {
			cfg.renderError(w, r, er.err)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.logger.ErrorContext(r.Context(), "failed to render response", "error", err)
		}
	}
}

func (c *wrapConfig) renderError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := c.classify(err)
	if httpErr.Code >= http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed",
			slog.Any("error", err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	body := JSONResponse{Error: &ErrorDetail{Code: httpErr.Key, Message: httpErr.Message}}
	var verr ValidationError
	if errors.As(err, &verr) && len(verr) > 0 {
		body.Error.Details = verr
	}
	_ = jsonResponse{status: httpErr.Code, body: body}.Render(w, r)
}

func (c *wrapConfig) classify(err error) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.withMessage()
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return HTTPError{Code: http.StatusBadRequest, Key: "validation_error", Message: verr.Error()}
	}
	for _, m := range c.mappers {
		if mapped, ok := m(err); ok {
			return mapped.withMessage()
		}
	}
	return ErrInternalServerError.withMessage()
}
