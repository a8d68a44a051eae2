package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrUpstream is a non-2xx answer from the clinic API. Message is the
// user-facing text extracted from the response body.
type ErrUpstream struct {
	Status  int
	Message string
}

func (e *ErrUpstream) Error() string {
	return e.Message
}

// Permanent reports whether retrying the same request is pointless.
func (e *ErrUpstream) Permanent() bool {
	return e.Status >= 400 && e.Status < 500
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input) on a single field.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// FieldError is one violated field of a payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors carries every violated field of a payload, in field order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the violations.
func (v ValidationErrors) Has(field string) bool {
	for _, f := range v {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (v *ValidationErrors) add(field, msg string) {
	if v.Has(field) {
		return
	}
	*v = append(*v, FieldError{Field: field, Message: msg})
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrInvalidTransition is an illegal move in the entry status workflow.
type ErrInvalidTransition struct {
	From    EntryStatus
	Trigger Trigger
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s an entry with status %s", e.Trigger, e.From)
}

// ErrStaleEntry is returned when the clinic API refused a mutation the local
// copy allowed. Current holds the freshly read entry, when it could be read.
type ErrStaleEntry struct {
	ID      string
	Current *BillingEntry
	Err     error
}

func (e *ErrStaleEntry) Error() string {
	if e.Current != nil {
		return fmt.Sprintf("entry %s changed remotely (status %s): %v", e.ID, e.Current.Status, e.Err)
	}
	return fmt.Sprintf("entry %s changed remotely: %v", e.ID, e.Err)
}

func (e *ErrStaleEntry) Unwrap() error {
	return e.Err
}

// ErrConflict indicates a request that cannot proceed in the current state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
