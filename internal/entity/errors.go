package entity

import (
	"errors"
	"fmt"
)

var (
	// Comment errors
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("comment not found")

	// Storage errors
	ErrPersistence = errors.New("persistence error")
	ErrKeyNotFound = errors.New("key not found")
)

// PersistenceError reports a failed load or save of the serialized tree.
// It is recoverable: the in-memory tree stays usable.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
