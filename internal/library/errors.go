package library

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFoundLocally means an operation referenced an id absent from the
	// partition it expected.
	ErrNotFoundLocally = errors.New("book not found locally")
	ErrInvalidDraft    = errors.New("invalid book")
	ErrNoIdentity      = errors.New("no signed-in user")
	ErrStaleIdentity   = errors.New("identity changed while the operation was in flight")
	ErrEventWithoutID  = errors.New("change event without record id")

	// ErrRemoteNotFound is wrapped by RemoteStore implementations when a
	// record does not exist on the server.
	ErrRemoteNotFound = errors.New("book not found remotely")
)

// LoadError reports a failed bulk fetch. The in-memory sets are left as they were.
type LoadError struct {
	Owner string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load books for %s: %v", e.Owner, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// MutationError reports a rejected insert, update or delete.
type MutationError struct {
	Op  string
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s book: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s book %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// MappingError reports a record field that could not be decoded.
type MappingError struct {
	Field string
	Value any
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("field %q: %v (got %v)", e.Field, e.Err, e.Value)
}

func (e *MappingError) Unwrap() error { return e.Err }
