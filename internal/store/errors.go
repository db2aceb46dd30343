package store

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("image not found")
	// ErrDuplicateID is returned when adding a record whose id is already stored.
	ErrDuplicateID = errors.New("image id already exists")
)

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
