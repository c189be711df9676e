package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrEntryNotFound is returned when no entry carries the given ID.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrBatchNotFound is returned when no entry carries the given batch ID.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrInvalidKind is returned when appending an entry whose kind is
	// outside the closed set.
	ErrInvalidKind = errors.New("invalid entry kind")
)

type InvalidKindError struct {
	Kind Kind
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid entry kind %q", string(e.Kind))
}

func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }
