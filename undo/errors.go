/*
errors.go - Undo failure taxonomy

Every failure mode leaves both the ledger and the stock exactly as they
were before the call. Sentinels classify; structured types carry the
numbers the caller reports to the user.
*/
package undo

import (
	"errors"
	"fmt"
	"time"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEligibilityExpired is returned when an entry or batch is outside
	// the undo window or past the recency bound.
	ErrEligibilityExpired = errors.New("undo eligibility expired")

	// ErrWouldUnderflow is returned when the inverse effect would drive a
	// quantity negative. Nothing is applied.
	ErrWouldUnderflow = errors.New("undo would underflow stock")

	// ErrAlreadyUndone is returned for a repeat undo of the same batch.
	ErrAlreadyUndone = errors.New("batch already undone")

	// ErrInterference is returned when later out-of-batch activity has
	// built on the batch's resulting stock state.
	ErrInterference = errors.New("later activity interferes with batch undo")

	// ErrNotUndoable is returned for kinds with no inverse (return
	// transfers, system reset markers).
	ErrNotUndoable = errors.New("entry kind is not undoable")

	// ErrBatchMember is returned when a single-entry undo targets an
	// entry belonging to a batch. Batches are atomic: undo the batch.
	ErrBatchMember = errors.New("entry belongs to a batch; undo the whole batch")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ExpiredError explains which eligibility rule failed.
type ExpiredError struct {
	EntryID    ledger.EntryID
	BatchID    string
	Window     time.Duration
	MaxRecent  int
	RecordedAt time.Time
	Rank       int // recency rank when the recency bound failed, else 0
}

func (e *ExpiredError) Error() string {
	subject := fmt.Sprintf("entry %d", e.EntryID)
	if e.BatchID != "" {
		subject = fmt.Sprintf("batch %s", e.BatchID)
	}
	if e.Rank > 0 {
		return fmt.Sprintf("%s is outside the %d most recent entries (rank %d)", subject, e.MaxRecent, e.Rank)
	}
	return fmt.Sprintf("%s was recorded at %s, outside the %s undo window",
		subject, e.RecordedAt.Format(time.RFC3339), e.Window)
}

func (e *ExpiredError) Unwrap() error { return ErrEligibilityExpired }

// UnderflowError reports which product/variant the inverse would have
// driven negative, with the concrete numbers.
type UnderflowError struct {
	ProductID inventory.ProductID
	VariantID inventory.VariantID // empty for loose stock
	Cause     error
}

func (e *UnderflowError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("undoing would drive packed stock negative for %s/%s: %v",
			e.ProductID, e.VariantID, e.Cause)
	}
	return fmt.Sprintf("undoing would drive loose stock negative for %s: %v", e.ProductID, e.Cause)
}

func (e *UnderflowError) Unwrap() error { return ErrWouldUnderflow }

// InterferenceError names the later entry that blocks a batch undo.
type InterferenceError struct {
	BatchID   string
	EntryID   ledger.EntryID
	VariantID inventory.VariantID
}

func (e *InterferenceError) Error() string {
	return fmt.Sprintf("cannot undo batch %s: entry %d later touched variant %s",
		e.BatchID, e.EntryID, e.VariantID)
}

func (e *InterferenceError) Unwrap() error { return ErrInterference }

// NotUndoableError names the kind lacking an inverse.
type NotUndoableError struct {
	EntryID ledger.EntryID
	Kind    ledger.Kind
}

func (e *NotUndoableError) Error() string {
	return fmt.Sprintf("entry %d has kind %s, which has no inverse", e.EntryID, e.Kind)
}

func (e *NotUndoableError) Unwrap() error { return ErrNotUndoable }
