/*
store.go - Persistence interfaces for the inventory core

PURPOSE:
  Defines the interface between the inventory logic and the database.
  Every Engine operation and every delivery transition runs inside one
  Tx so that the stock write, the ledger append, and any batch/removal/
  delivery row commit together or not at all.

APPEND-ONLY CONTRACT:
  The ledger (inventory_transactions) has exactly one write path:
  AppendTransaction. There is no update or delete for ledger rows;
  corrections are new entries with the opposite sign.

CONCURRENCY:
  Implementations must serialize concurrent write transactions against
  the same drug (row locking or an immediate/serializable transaction
  mode) so two reservations cannot both observe sufficient stock.
  Lock-wait timeouts surface as ErrBusy, which callers may retry.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store (also used by tests via an
    in-memory database)
*/
package inventory

import "context"

// =============================================================================
// TX - One atomic unit of storage work
// =============================================================================

// Tx is the storage handle passed to the function given to WithTx.
// Lookups returning a nil pointer with a nil error mean "no such row";
// callers translate that into the appropriate NotFound error.
type Tx interface {
	// Drugs
	GetDrug(ctx context.Context, id int64) (*Drug, error)
	UpdateDrugStock(ctx context.Context, id int64, stock int) error

	// Ledger (append-only; the ONLY write operation on the ledger)
	AppendTransaction(ctx context.Context, tx InventoryTransaction) (int64, error)

	// Structured stock movements
	InsertBatch(ctx context.Context, b DrugBatch) (int64, error)
	InsertRemoval(ctx context.Context, r DrugRemoval) (int64, error)

	// Deliveries
	InsertDelivery(ctx context.Context, d DeliveryRecord) (int64, error)
	GetDelivery(ctx context.Context, id int64) (*DeliveryRecord, error)
	SetDeliveryState(ctx context.Context, id int64, status DeliveryStatus, stockDecremented bool) error
	DeleteDelivery(ctx context.Context, id int64) error

	// Referential checks
	PatientExists(ctx context.Context, id int64) (bool, error)
}

// =============================================================================
// TXSTORE - Transaction boundary
// =============================================================================

// TxStore opens atomic units. If fn returns an error the unit is
// rolled back; otherwise it is committed.
type TxStore interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// INVALIDATOR - Write-through cache invalidation hook
// =============================================================================

// Invalidator is notified after every successful mutation so that
// read caches (insights) never serve stale aggregates. A nil
// Invalidator is allowed.
type Invalidator interface {
	Invalidate()
}
