package api

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("api: invalid input")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
)

// Error is a structured error body returned by the backend. Every endpoint
// may answer with `{"detail": ...}`; Detail carries it verbatim.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Detail)
}

// Unwrap maps the HTTP status onto a package sentinel so callers can use
// errors.Is without inspecting status codes.
func (e *Error) Unwrap() error {
	switch e.Status {
	case 400, 422:
		return ErrInvalidInput
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	default:
		return nil
	}
}
