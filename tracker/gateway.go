/*
gateway.go - Persistence gateway contract

PURPOSE:
  The service treats persistence as an opaque snapshot store: Load once at
  startup, Save after every mutating operation. Implementations must make
  Save a full atomic overwrite (write-then-rename or a single database
  transaction) so a crash mid-write never corrupts the prior snapshot.

IOERROR POLICY:
  If Save fails after an in-memory mutation already succeeded, the service
  surfaces a retryable SaveError WITHOUT rolling back memory - the natural
  recovery is retry-and-save, and the window is kept small by saving on
  every single mutating call rather than batching writes.

IMPLEMENTATIONS:
  - store/memory: deep-copying in-memory gateway (tests/dev)
  - store/file:   JSON file with atomic write-then-rename
  - store/sqlite: SQLite, full overwrite in one transaction
*/
package tracker

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// GATEWAY
// =============================================================================

type Gateway interface {
	// Load returns the persisted snapshot, or ErrNoSnapshot if none
	// exists yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the whole snapshot as an atomic overwrite.
	Save(ctx context.Context, snap *Snapshot) error
}

// ErrNoSnapshot is returned by Load when nothing has been saved yet. The
// service starts from an empty snapshot in that case.
var ErrNoSnapshot = errors.New("no snapshot found")

// ErrSaveFailed classifies persistence failures. The in-memory state is
// already applied; the operation may simply be retried.
var ErrSaveFailed = errors.New("snapshot save failed")

// SaveError wraps a gateway failure that occurred after the in-memory
// mutation succeeded.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("mutation applied but snapshot save failed (retry persists it): %v", e.Err)
}

func (e *SaveError) Unwrap() error { return ErrSaveFailed }
