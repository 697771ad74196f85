package store

import (
	"errors"
	"fmt"
)

// ErrStorage is returned (wrapped) when an operation against the underlying
// database fails. It can be checked with errors.Is().
var ErrStorage = errors.New("storage failure")

// StorageError wraps a database failure with the operation that caused it.
type StorageError struct {
	// Op is the store operation that failed (e.g., "add_mapping").
	Op string

	// Err is the underlying database error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

// Is implements error matching for errors.Is().
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
