package token

import "errors"

// Public, stable errors for callers.
var (
	ErrInvalid   = errors.New("token invalid")
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")

	ErrSecretMissing  = errors.New("token secret missing")
	ErrSecretTooShort = errors.New("token secret too short")
)
