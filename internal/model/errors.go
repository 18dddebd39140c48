package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEventFull is returned when a seat could not be reserved.
	ErrEventFull = errors.New("event is fully booked")

	// ErrEventInactive is returned when registering for a deactivated event.
	ErrEventInactive = errors.New("event is not accepting registrations")

	// ErrAlreadyRegistered is returned when a user already holds an active registration.
	ErrAlreadyRegistered = errors.New("already registered for this event")

	// ErrForbidden is returned when the actor lacks rights. It never reveals
	// whether the target exists.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when no actor identity was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	ErrNotOwner       = errors.New("registration belongs to another user")
	ErrNotPending     = errors.New("registration is not pending")
	ErrNotCancellable = errors.New("registration is not cancellable")
	ErrMissingReason  = errors.New("rejection reason is required")

	// ErrSchemaInvalid is returned when a form schema breaks its own invariants.
	ErrSchemaInvalid = errors.New("invalid form schema")

	// ErrCapacityBelowReserved is returned when an edit would lower
	// max_capacity below the seats already reserved.
	ErrCapacityBelowReserved = errors.New("max_capacity is below reserved seats")

	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// Field error codes.
const (
	CodeRequired     = "required"
	CodeTooShort     = "too_short"
	CodeTooLong      = "too_long"
	CodePattern      = "pattern_mismatch"
	CodeNotAnOption  = "not_an_option"
	CodeTypeMismatch = "type_mismatch"
	CodeInvalid      = "invalid"
)

// FieldError is a validation failure on one field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError carries every field error in schema order.
type ValidationError struct {
	Errors []FieldError
}

// NewValidationError builds a ValidationError from a single field failure.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Code: code, Message: message}}}
}

// First returns the first failure, for single-message clients.
func (e *ValidationError) First() FieldError {
	if len(e.Errors) == 0 {
		return FieldError{}
	}
	return e.Errors[0]
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msg := e.Errors[0].Error()
	if n := len(e.Errors) - 1; n > 0 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, n)
	}
	return msg
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Messages returns each failure rendered as "field: message".
func (e *ValidationError) Messages() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}
