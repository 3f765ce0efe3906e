/*
ledger.go - Append-only transaction recorder

PURPOSE:
  Mirrors every stock mutation into the inventory_transactions ledger.
  The ledger is the source of truth for reconstructing stock history:
  for every drug, stock == sum of all recorded deltas since creation.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete. Ever.
  2. PAIRED 1:1: every stock mutation records exactly one entry, inside
     the same transaction as the stock write.
  3. NONZERO: zero deltas are rejected as a no-op error.

IDEMPOTENCY:
  Each entry carries a generated idempotency key, unique-indexed in the
  store, so a replayed commit cannot double-record a mutation.
*/
package inventory

import (
	"context"

	"github.com/google/uuid"
)

// record appends one ledger entry within tx and returns its ID.
// The reason is free text; callers build tags via the helpers in
// types.go. Empty reasons are allowed.
func record(ctx context.Context, tx Tx, drugID int64, delta int, reason string) (int64, error) {
	if delta == 0 {
		return 0, ErrZeroDelta
	}
	return tx.AppendTransaction(ctx, InventoryTransaction{
		DrugID:         drugID,
		Delta:          delta,
		Reason:         reason,
		IdempotencyKey: uuid.NewString(),
	})
}
