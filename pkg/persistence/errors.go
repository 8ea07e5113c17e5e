// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrProcessDefinitionNotFound indicates no process definition exists
	// for the given identifier.
	ErrProcessDefinitionNotFound = errors.New("process definition not found")

	// ErrTemplateNotFound indicates no workflow template exists for the
	// given identifier.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrAuditNotFound indicates no audit records exist for the given
	// process.
	ErrAuditNotFound = errors.New("process audit not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op      string // Operation being performed (e.g., "SaveProcessDefinition")
	ID      string // Entity ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *StoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed for %s: %s (%v)", e.Op, e.ID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new storage error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}
