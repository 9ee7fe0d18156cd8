package geo

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a document fetch that returned a non-success response.
	ErrFetch = errors.New("fetch failed")
	// ErrParse marks a field whose sub-structure could not be parsed.
	ErrParse = errors.New("parse failed")
	// ErrCoercion marks a field value that cannot be cast to its column type.
	ErrCoercion = errors.New("coercion failed")
	// ErrStore marks a persistence failure.
	ErrStore = errors.New("store failed")
	// ErrNotFound is returned when no record exists for a study.
	ErrNotFound = errors.New("record not found")
)

// FetchError describes a failed document fetch for one accession.
type FetchError struct {
	Key        string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.Key, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.Key, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.Key)
	}
}

// Unwrap exposes the cause.
func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// CoercionError describes a single field that could not be converted.
type CoercionError struct {
	Field string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s: %v", e.Field, e.Err)
}

// Unwrap exposes the cause.
func (e *CoercionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCoercion.
func (e *CoercionError) Is(target error) bool { return target == ErrCoercion }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *StoreError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }
