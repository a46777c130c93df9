// Package errors provides a single structured error type used throughout
// the pipeline instead of ad-hoc fmt.Errorf chains, so that callers can
// pull out which operation, component, and resource failed.
package errors

import "fmt"

// OperationError describes a failure in terms of what was being done
// (Operation), which component was doing it (Component, optional), which
// resource was involved (Resource, optional), and the underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause.Error())
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a plain "failed to <action>[: <cause>]" error, for call
// sites that don't need the structured component/resource breakdown.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully populated OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}
