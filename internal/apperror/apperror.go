// Package apperror defines the error taxonomy shared by the directory, the
// services and the HTTP layer.
//
// Every failure is an *AppError wrapping one of the sentinel errors below.
// Callers classify with errors.Is (ErrNotFound, ErrIneligible, ...) and show
// Message to humans. The HTTP layer is the only place that turns a sentinel
// into a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrIneligible  = errors.New("ineligible")
	ErrUnavailable = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // human-readable error message
	Field   string // optional: request field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing location or group.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict covers duplicate membership and group id collisions.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Ineligible reports a user whose age lies outside a group's age range.
func Ineligible(message string) *AppError {
	return &AppError{
		Err:     ErrIneligible,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission, e.g.
// a non-member sending to or reading a group chat.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unavailable reports that the directory could not be entered in time.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
