/*
errors.go - Centralized error types for inventory mutations

PURPOSE:
  All inventory-level errors in one place. Rejections carry the concrete
  numbers involved (available vs requested), not just a failure flag, so
  callers can report exactly which invariant would have been violated.

USAGE:
  Match categories with errors.Is:

    if errors.Is(err, inventory.ErrInsufficientStock) { ... }

  and details with errors.As:

    var short *inventory.InsufficientPackedError
    if errors.As(err, &short) {
        fmt.Printf("have %d, want %d", short.Available, short.Requested)
    }
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned for malformed input such as a
	// non-positive quantity or a negative absolute-set value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientStock is returned when a forward mutation would
	// drive loose or packed stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound is returned for an unknown product or variant reference.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the concrete numbers
// =============================================================================

type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// InsufficientLooseError reports a loose stock shortage in the product's unit.
type InsufficientLooseError struct {
	ProductID ProductID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientLooseError) Error() string {
	return fmt.Sprintf("insufficient loose stock for %s: available %s, requested %s",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientLooseError) Unwrap() error { return ErrInsufficientStock }

// InsufficientPackedError reports a packed unit shortage for one variant.
type InsufficientPackedError struct {
	ProductID ProductID
	VariantID VariantID
	Available int
	Requested int
}

func (e *InsufficientPackedError) Error() string {
	return fmt.Sprintf("insufficient packed stock for %s/%s: available %d, requested %d",
		e.ProductID, e.VariantID, e.Available, e.Requested)
}

func (e *InsufficientPackedError) Unwrap() error { return ErrInsufficientStock }

type NotFoundError struct {
	Kind string // "product", "variant"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
