package jwt

import "errors"

var (
	ErrMissingSigningKey = errors.New("jwt: signing key is required")
	ErrMissingSubject    = errors.New("jwt: token subject is required")
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrExpiredToken      = errors.New("jwt: token has expired")
)
