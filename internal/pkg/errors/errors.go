package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when a bearer token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument wraps request validation failures; handlers map it to 400.
	ErrInvalidArgument = errors.New("invalid argument")
)
