package handler

import (
	"errors"
	"net/http"
)

var (
	ErrNilResponse          = errors.New("handler returned nil response")
	ErrBodyTooLarge         = errors.New("request body is too large")
	ErrUnsupportedMediaType = errors.New("unsupported content type")
)

// HTTPError is an error with a status code and a stable machine-readable key.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	return e.Key
}

// WithMessage returns a copy carrying a client-facing message.
func (e HTTPError) WithMessage(msg string) HTTPError {
	e.Message = msg
	return e
}

func (e HTTPError) withMessage() HTTPError {
	if e.Message == "" {
		e.Message = http.StatusText(e.Code)
	}
	return e
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized        = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrPaymentRequired     = HTTPError{Code: http.StatusPaymentRequired, Key: "payment_required"}
	ErrForbidden           = HTTPError{Code: http.StatusForbidden, Key: "forbidden"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrPayloadTooLarge     = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "payload_too_large"}
	ErrUnsupportedMedia    = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
	ErrBadGateway          = HTTPError{Code: http.StatusBadGateway, Key: "bad_gateway"}
)
