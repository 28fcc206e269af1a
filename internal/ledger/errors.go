package ledger

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mmynk/splitledger/internal/storage"
)

// Sentinel errors returned by the engine.
var (
	// ErrConflict reports a scoped uniqueness violation or a lost race on a
	// conditional update.
	ErrConflict = errors.New("ledger: conflict")

	// ErrNotFound reports a referenced entity that does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrForbidden reports an actor lacking the required relationship:
	// not the creator, or not a participant.
	ErrForbidden = errors.New("ledger: forbidden")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrTransient reports a store timeout or connection failure. The caller
	// may retry with backoff.
	ErrTransient = errors.New("ledger: transient store failure")
)

// ValidationError represents malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable returns true if the operation failed on a temporary store
// condition and can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// translate maps store sentinels onto the engine taxonomy.
// Errors that already belong to the taxonomy pass through.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrValidation), errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrDuplicateKey):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, storage.ErrTransient), storage.IsDeadline(err):
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// MinNameLength applies to usernames, group, topic and expense names.
const MinNameLength = 3

func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return "", invalid(field, "must be at least %d characters", MinNameLength)
	}
	return name, nil
}
