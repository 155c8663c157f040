package script

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// LoadError is returned when a script fails to parse. Err holds each
// individual failure.
type LoadError struct {
	Errors   int
	Warnings int
	Err      *multierror.Error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("script failed to load: %d error(s), %d warning(s)", e.Errors, e.Warnings)
}

// Unwrap returns the individual failures.
func (e *LoadError) Unwrap() error {
	return e.Err.ErrorOrNil()
}

// ValidationError is returned when a loaded script fails validation.
type ValidationError struct {
	Failures int
	Err      *multierror.Error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("script failed validation: %d failure(s)", e.Failures)
}

// Unwrap returns the individual failures.
func (e *ValidationError) Unwrap() error {
	return e.Err.ErrorOrNil()
}
