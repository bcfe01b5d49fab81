package loader

import (
	"fmt"
	"strings"
)

// ConfigNotFoundError is returned when a referenced policy has no record or
// its record is inactive.
type ConfigNotFoundError struct {
	Name     string
	Inactive bool
}

// Error implements the error interface.
func (e *ConfigNotFoundError) Error() string {
	if e.Inactive {
		return fmt.Sprintf("policy %q is inactive", e.Name)
	}
	return fmt.Sprintf("policy %q not found", e.Name)
}

// CircularPolicyReferenceError is returned when a composite refers back to
// one of its ancestors. Cycle lists the names from the first repeated policy
// back to itself.
type CircularPolicyReferenceError struct {
	Cycle []string
}

// Error implements the error interface.
func (e *CircularPolicyReferenceError) Error() string {
	return fmt.Sprintf("circular policy reference: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownTypeError is returned when a record's type is not registered.
type UnknownTypeError struct {
	Name string
	Type string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("policy %q has unknown type %q", e.Name, e.Type)
}

// ConfigDecodeError is returned when a record's config does not fit its
// type's parameters or the constructor rejects them.
type ConfigDecodeError struct {
	Name  string
	Type  string
	Cause error
}

// Error implements the error interface.
func (e *ConfigDecodeError) Error() string {
	return fmt.Sprintf("invalid config for policy %q (type %s): %v", e.Name, e.Type, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConfigDecodeError) Unwrap() error {
	return e.Cause
}
