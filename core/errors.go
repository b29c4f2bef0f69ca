package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record referenced by id does not exist in
// the underlying store.
var ErrNotFound = errors.New("record not found")

// ValidationError marks bad caller input. It always maps to a 4xx response
// and is never retried.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return e.Reason }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError carries the status and body of a failed call to a mandatory
// remote dependency (the completion service or a required provider write).
// It maps to a gateway-class response with as much upstream detail as can be
// safely forwarded.
type UpstreamError struct {
	Operation string
	Status    int
	Body      string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.Status, e.Body)
}

// AsUpstream extracts an UpstreamError from err, if present.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// NegotiationError signals that every payload variant of a schema-negotiated
// write was rejected with a validation-class status. Last holds the final
// variant's rejection, which is what the caller observes.
type NegotiationError struct {
	Variants int
	Last     *UpstreamError
}

// Error implements the error interface.
func (e *NegotiationError) Error() string {
	return fmt.Sprintf("all %d payload variants rejected: %s", e.Variants, e.Last.Error())
}

// Unwrap exposes the last variant's upstream error for errors.As chains.
func (e *NegotiationError) Unwrap() error { return e.Last }
