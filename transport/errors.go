package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned for every failed call: non-2xx replies carry
// the HTTP status, network failures carry Status 0 and the cause in Err.
type TransportError struct {
	Status  int
	Message string
	Method  string
	Path    string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("transport: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status, or 0 for network failures.
func (e *TransportError) StatusCode() int { return e.Status }

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// TransportError or has no status.
func StatusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// ServerFault reports whether err indicates the remote side is unhealthy:
// a network failure or a 5xx reply. Client errors (4xx) are not faults.
func ServerFault(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == 0 || te.Status >= 500
}

// ValidationError reports a payload rejected locally before it was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Validator is implemented by payloads that can check themselves before
// being sent.
type Validator interface {
	Validate() error
}
