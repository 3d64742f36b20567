package auth

import "errors"

var (
	// ErrUnauthenticated is the uniform failure for any login or token
	// problem. It deliberately does not distinguish "no such user" from
	// "wrong password" or "no session".
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrInvalidToken indicates the bearer token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)
