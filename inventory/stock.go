/*
stock.go - Stock accessor

PURPOSE:
  The single place where a drug's stock value is read and rewritten.
  applyDelta computes the new stock from the current one:

    decrease: newStock = max(0, current + delta)   (clamp to zero)
    increase: newStock = current + delta           (always additive)

CLAMP vs REJECT:
  Clamping on decrease is deliberate. Operations that must reject
  instead of clamp (RemoveStock, Reserve) pre-validate
  current >= requested inside the same transaction before calling
  applyDelta.

NOT ATOMIC BY ITSELF:
  applyDelta is always invoked inside an Engine transaction together
  with the ledger append; it is never a standalone mutation.
*/
package inventory

import "context"

// applyDelta reads, recomputes, and writes a drug's stock within tx.
// Returns the new stock value. ErrDrugNotFound if the drug is missing.
func applyDelta(ctx context.Context, tx Tx, drugID int64, delta int) (int, error) {
	drug, err := tx.GetDrug(ctx, drugID)
	if err != nil {
		return 0, err
	}
	if drug == nil {
		return 0, ErrDrugNotFound
	}

	newStock := drug.Stock + delta
	if delta < 0 && newStock < 0 {
		newStock = 0
	}

	if err := tx.UpdateDrugStock(ctx, drugID, newStock); err != nil {
		return 0, err
	}
	return newStock, nil
}
