package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// Validation error codes.
const (
	ErrCodeMissingField      = "MISSING_FIELD"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeMissingDependency = "MISSING_DEPENDENCY"
	ErrCodeDepsNotSatisfied  = "DEPENDENCIES_NOT_SATISFIED"
	ErrCodeDependencyCycle   = "DEPENDENCY_CYCLE"
	ErrCodeResourceConflict  = "RESOURCE_CONFLICT"
)

// ErrTaskNotFound is returned when an operation references an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// ValidationError is a typed, non-fatal scheduling violation. A non-empty
// list of these from a transition or validation call means nothing was
// mutated.
type ValidationError struct {
	Code    string // One of the ErrCode constants
	Field   string // Offending field or task id, when applicable
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// joinValidationErrors flattens a list of validation errors into one error
// for callers that only care about pass/fail.
func joinValidationErrors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
