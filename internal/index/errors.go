package index

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned when publishing a version that is already indexed.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a yank, info, snapshot or download target
	// does not exist.
	ErrNotFound = errors.New("not found")
)

// ConflictError wraps ErrConflict with the offending full name.
type ConflictError struct {
	FullName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.FullName)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NotFoundError wraps ErrNotFound with what was looked up.
type NotFoundError struct {
	Kind string // "gem", "version", "snapshot"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ContractViolation is the panic value raised when the store is used in a
// way no caller should ever attempt.
type ContractViolation struct {
	Msg string
}

func (e *ContractViolation) Error() string {
	return "index: contract violation: " + e.Msg
}
