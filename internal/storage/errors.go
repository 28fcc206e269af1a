package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record matches the lookup or the
	// filter of a conditional write.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey is returned when a write violates a unique constraint.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrTransient is returned for failures that may succeed on retry:
	// expired deadlines, busy databases, dropped connections.
	ErrTransient = errors.New("storage: transient failure")
)

// IsDeadline reports whether err was caused by an expired or canceled context.
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
