package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no blob exists for an id.
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Put when a blob is already stored for the id.
	ErrExists = errors.New("blob already exists")
	// ErrInvalidKey is returned for ids or extensions that cannot name a file under the root.
	ErrInvalidKey = errors.New("invalid blob key")
)

// IOError wraps a filesystem failure with the operation and id involved.
type IOError struct {
	Op  string
	ID  string
	Err error
}

func (e *IOError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("blob %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blob %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, ID: id, Err: err}
}
