package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("coalescer is closed")
	// ErrShortBatch is returned when a store answers with the wrong number
	// of values.
	ErrShortBatch = errors.New("store returned a mismatched batch")
)

type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("key not found: %s", e.Key)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// BatchError is delivered, as the same value, to every caller of a failed
// bulk call.
type BatchError struct {
	Op   string
	Size int
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to %s batch of %d: %v", e.Op, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
