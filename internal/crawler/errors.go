package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCardLinks indicates an index page carried no detail-page links.
	ErrNoCardLinks = errors.New("no card links on index page")
	// ErrMissingURL rejects cards that have no identity.
	ErrMissingURL = errors.New("card url is required")
	// ErrQueueClosed is returned by Dequeue once a closed queue has drained.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchStatus     FetchErrorKind = "status"
	FetchTimeout    FetchErrorKind = "timeout"
	FetchNavigation FetchErrorKind = "navigation"
	FetchTransport  FetchErrorKind = "transport"
)

// FetchError reports a failed document fetch.
type FetchError struct {
	URL    string
	Kind   FetchErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceOp names the persistence operation that failed.
type PersistenceOp string

// Persistence operations.
const (
	PersistLoad  PersistenceOp = "load"
	PersistWrite PersistenceOp = "write"
)

// PersistenceError wraps a backend failure with the operation and backend name.
type PersistenceError struct {
	Op      PersistenceOp
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
