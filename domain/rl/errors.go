package rl

import "fmt"

// ValidationError indicates a malformed State, Action, or Experience.
// It is a caller bug and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError indicates an episode lifecycle violation, such as
// starting an episode while one is already active. Callers may retry
// after the conflicting episode ends.
type ConflictError struct {
	AgentType AgentType
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict for agent %q: %s", e.AgentType, e.Reason)
}

// InsufficientDataError indicates a sample request larger than the
// current buffer contents. Callers should wait for more experience.
type InsufficientDataError struct {
	Requested int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: requested %d, have %d", e.Requested, e.Available)
}

// PersistenceWarning indicates durability is degraded. It is non-fatal:
// learning continues in memory and the condition is surfaced in
// statistics rather than aborting the caller.
type PersistenceWarning struct {
	Op  string
	Err error
}

func (e *PersistenceWarning) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence degraded during %s", e.Op)
	}
	return fmt.Sprintf("persistence degraded during %s: %v", e.Op, e.Err)
}

func (e *PersistenceWarning) Unwrap() error {
	return e.Err
}
