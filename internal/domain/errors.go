package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate reports an insert whose normalized URL is already
	// present in the target pool.
	ErrDuplicate = errors.New("article already present")

	// ErrNotFound reports a review operation on a URL that matches no
	// pooled record.
	ErrNotFound = errors.New("article not found")

	// ErrLockTimeout reports that the pipeline lock could not be
	// acquired before the deadline.
	ErrLockTimeout = errors.New("pipeline lock timeout")
)

// PersistenceError reports a failed snapshot read or write. The pool
// file on disk is left as it was.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pool %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotifierError reports a failed digest delivery attempt.
type NotifierError struct {
	Channel string
	Err     error
}

func (e *NotifierError) Error() string {
	return fmt.Sprintf("notifier %s: %v", e.Channel, e.Err)
}

func (e *NotifierError) Unwrap() error { return e.Err }
