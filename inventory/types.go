/*
Package inventory provides the stock consistency engine for the drug
delivery system.

PURPOSE:
  This package contains the types and rules that keep drug stock levels
  consistent with delivery lifecycle transitions. Every stock mutation
  (batch receipt, removal, adjustment, reservation, release) is paired
  with exactly one entry in an append-only transaction ledger, applied
  within the same atomic storage unit.

KEY CONCEPTS IN THIS FILE (types.go):
  - Drug:                 tracked item with current stock + reorder level
  - DeliveryRecord:       a scheduled delivery, possibly holding a
                          live stock reservation
  - InventoryTransaction: an immutable ledger entry (signed delta + reason)
  - DrugBatch/DrugRemoval: structured receipt / write-off events

DESIGN PRINCIPLES:
  1. Stock moves only through the Engine - never set directly.
  2. The ledger is the source of truth: stock is always reconstructable
     as the sum of all deltas for a drug.
  3. Reservations are reversible; at most one live reservation per
     delivery record.

SEE ALSO:
  - engine.go:   atomic stock operations
  - delivery.go: delivery lifecycle and its stock effects
  - ledger.go:   append-only recorder
*/
package inventory

import (
	"fmt"
	"time"
)

// =============================================================================
// DRUG - Tracked item with on-hand stock
// =============================================================================

// Drug is a registered medication. Stock and ReorderLevel are always
// non-negative; Stock is mutated exclusively by Engine operations.
type Drug struct {
	ID           int64
	Name         string
	Dosage       string
	Frequency    string
	Stock        int
	ReorderLevel int
}

// Patient is a delivery recipient. The inventory core only needs its
// identity for referential checks; full CRUD lives in the API layer.
type Patient struct {
	ID      int64
	Name    string
	Age     *int
	Contact *string
}

// =============================================================================
// DELIVERY - Scheduled delivery with reservation flag
// =============================================================================

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusMissed    DeliveryStatus = "missed"
	StatusCancelled DeliveryStatus = "cancelled"
)

// ValidStatus reports whether s is one of the four allowed statuses.
func ValidStatus(s DeliveryStatus) bool {
	switch s {
	case StatusPending, StatusDelivered, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// DeliveryRecord is one scheduled drug delivery.
//
// StockDecremented is true iff this record currently holds a live
// reservation against the drug's stock. The invariant: a record with
// StockDecremented=true has exactly one outstanding negative ledger
// entry reserving Quantity units.
type DeliveryRecord struct {
	ID               int64
	PatientID        int64
	DrugID           int64
	ScheduledFor     time.Time
	Quantity         int
	Status           DeliveryStatus
	StockDecremented bool
	Notes            *string
	CreatedAt        time.Time
}

// =============================================================================
// INVENTORY TRANSACTION - Append-only ledger entry
// =============================================================================

// InventoryTransaction records a single signed stock delta with a
// reason tag. Entries are never updated or deleted; corrections are
// new entries with the opposite sign.
type InventoryTransaction struct {
	ID             int64
	DrugID         int64
	Delta          int
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// BATCH / REMOVAL - Structured stock movement events
// =============================================================================

// BatchMeta carries provenance for a stock receipt.
type BatchMeta struct {
	BatchNo     string
	ISBN        string
	Producer    string
	Transporter string
	MfgDate     string
	ExpDate     string
	Notes       string
}

// DrugBatch is a recorded receipt. Each batch creation causes exactly
// one stock increase and one ledger entry.
type DrugBatch struct {
	ID        int64
	DrugID    int64
	Quantity  int
	Meta      BatchMeta
	CreatedAt time.Time
}

// DrugRemoval is a recorded write-off. Each removal causes exactly one
// stock decrease and one ledger entry; removals that would drive stock
// negative are rejected.
type DrugRemoval struct {
	ID        int64
	DrugID    int64
	BatchNo   string
	Reason    string
	Quantity  int
	Notes     *string
	CreatedAt time.Time
}

// =============================================================================
// REASON TAGS - Ledger reason formats
// =============================================================================

// Reason tags follow the wire format the dashboard expects:
// "batch:<ref>", "remove:<reason>", "reserve delivery #<id>", etc.

func BatchReason(batchNo string) string  { return "batch:" + batchNo }
func RemovalReason(reason string) string { return "remove:" + reason }

func ReserveReason(deliveryID int64) string {
	return fmt.Sprintf("reserve delivery #%d", deliveryID)
}
func ReleaseReason(deliveryID int64) string {
	return fmt.Sprintf("cancel delivery #%d", deliveryID)
}
func ReReserveReason(deliveryID int64) string {
	return fmt.Sprintf("re-reserve delivery #%d", deliveryID)
}
func DeleteReason(deliveryID int64) string {
	return fmt.Sprintf("delete delivery #%d", deliveryID)
}

// DefaultAdjustReason is used when an adjustment arrives without one.
const DefaultAdjustReason = "manual"
