// Copyright (c) 2017-2018 The nox developers

package database

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("database: key not found")

// Error wraps a failure of the underlying storage engine.  Anything of this
// type means the store itself misbehaved (I/O, corruption, closed handle) as
// opposed to a missing key.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

// Cause returns the underlying error for errors.Cause.
func (e *Error) Cause() error {
	return e.Err
}

// NewError wraps err as a storage engine failure of the named operation.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// IsStoreError reports whether err, or any error it wraps, is a storage
// engine failure.
func IsStoreError(err error) bool {
	for err != nil {
		if _, ok := err.(*Error); ok {
			return true
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		err = cause.Cause()
	}
	return false
}
