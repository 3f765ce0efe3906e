/*
errors.go - Centralized error types for the inventory core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes; nothing inventory-
  affecting is ever swallowed.

ERROR CATEGORIES:
  1. Reference errors   - missing drug/patient/delivery
  2. Validation errors  - bad quantity, empty reason, bad status
  3. Stock errors       - decreases that would break the non-negative
                          invariant (for operations that reject)
  4. Storage errors     - contention (retryable) and hard failures

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) { ... }

  var stockErr *inventory.InsufficientStockError
  if errors.As(err, &stockErr) { ... stockErr.Available ... }
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDrugNotFound is returned when a referenced drug doesn't exist.
	ErrDrugNotFound = errors.New("drug not found")

	// ErrPatientNotFound is returned when a referenced patient doesn't exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrDeliveryNotFound is returned when a referenced delivery doesn't exist.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrInsufficientStock is returned by operations that reject (rather
	// than clamp) a decrease past available stock: RemoveStock, Reserve,
	// and any delivery transition that must re-reserve.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrZeroDelta is returned when a ledger record or adjustment is
	// requested with delta == 0. Zero deltas are a no-op error.
	ErrZeroDelta = errors.New("delta must be nonzero")

	// ErrInvalidQuantity is returned for zero/negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrEmptyReason is returned when a removal arrives without a reason.
	ErrEmptyReason = errors.New("reason required")

	// ErrInvalidStatus is returned for a status outside the allowed set.
	ErrInvalidStatus = errors.New("invalid delivery status")

	// ErrBusy is returned when storage contention prevented the
	// operation from acquiring its transaction in time. Safe to retry.
	ErrBusy = errors.New("storage busy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError details a rejected stock decrease.
type InsufficientStockError struct {
	DrugID    int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for drug %d: available %d, requested %d",
		e.DrugID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrZeroDelta) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrEmptyReason) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDrugNotFound) ||
		errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrDeliveryNotFound)
}
