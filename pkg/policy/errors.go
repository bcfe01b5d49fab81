package policy

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an expected failure raised by a policy. The proxy turns it into a
// JSON error response without invoking the response encoder.
type Error struct {
	// Policy names the policy that raised the error.
	Policy string

	// Status is the suggested HTTP status. Zero means 500.
	Status int

	// Code is an optional machine-readable code for the error body.
	Code string

	// Detail is the client-facing message.
	Detail string

	// Err is the underlying cause, if any. It is never shown to clients.
	Err error
}

// NewError returns an Error raised by the named policy.
func NewError(policyName string, status int, detail string) *Error {
	return &Error{Policy: policyName, Status: status, Detail: detail}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy %s: %s: %v", e.Policy, e.Detail, e.Err)
	}
	return fmt.Sprintf("policy %s: %s", e.Policy, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the suggested status, defaulting to 500.
func (e *Error) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// WithCode sets the machine-readable code and returns e.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCause sets the underlying cause and returns e.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// AsError reports whether err is or wraps an *Error.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
