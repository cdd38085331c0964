package sds

import (
	"errors"
	"fmt"
	"net/http"
)

// StoreError reports a failed store operation.
//
// StatusCode follows HTTP semantics for every store implementation, remote
// or local, so callers can classify failures uniformly.
type StoreError struct {
	// Op names the failed operation (e.g. "delete_stream").
	Op string

	StatusCode int

	// Message is the human-readable reason reported by the store.
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: store returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewStoreError creates a StoreError.
func NewStoreError(op string, status int, format string, args ...any) *StoreError {
	return &StoreError{Op: op, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// IsStoreError returns true if err is or wraps a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsNotFound returns true if err is a StoreError for a missing resource.
func IsNotFound(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound
	}
	return false
}

// IsConflict returns true if err is a StoreError for a conflicting write.
func IsConflict(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusConflict
	}
	return false
}
