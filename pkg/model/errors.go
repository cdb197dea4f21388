package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the procsim API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// ErrorKind classifies recoverable kernel failures.
type ErrorKind string

const (
	KindResourceExhausted ErrorKind = "RESOURCE_EXHAUSTED"
	KindInvalidArgument   ErrorKind = "INVALID_ARGUMENT"
	KindKilled            ErrorKind = "KILLED"
)

// Sentinel kernel errors. Match with errors.Is; the kernel wraps them in ProcError.
var (
	ErrNoSlot          = errors.New("no free process slot")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrNoChildren      = errors.New("no children")
	ErrNoProcess       = errors.New("no such process")
	ErrSameClass       = errors.New("process already in requested class")
	ErrForeignRunning  = errors.New("process is running on another cpu")
	ErrInvalidClass    = errors.New("invalid scheduling class")
	ErrInvalidDeadline = errors.New("invalid deadline offset")
	ErrKilled          = errors.New("process killed")
)

// ProcError is returned by kernel operations that fail without mutating state.
type ProcError struct {
	Kind ErrorKind
	Op   string
	PID  int
	Err  error
}

func (e *ProcError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s pid %d: %v", e.Op, e.PID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a kernel error, or "" if err is not a ProcError.
func KindOf(err error) ErrorKind {
	var pe *ProcError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
