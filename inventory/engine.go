/*
engine.go - Inventory Engine

PURPOSE:
  Orchestrates all stock mutations. Each exported operation is one
  atomic storage unit combining:
    1. the stock write (stock accessor, stock.go)
    2. the ledger append (recorder, ledger.go)
    3. any structured event row (batch / removal)
  Either all of them commit or none do.

OPERATIONS:
  ReceiveBatch  +quantity, creates a batch row,   reason "batch:<ref>"
  RemoveStock   -quantity, creates a removal row, reason "remove:<reason>",
                REJECTS when stock < quantity
  Adjust        signed delta, CLAMPS decreases at zero, ledger records
                the requested delta even when clamped
  Reserve       -quantity tied to a delivery, REJECTS when stock < quantity
  Release       +quantity, always succeeds (additive)

CLAMP vs REJECT:
  The asymmetry is intentional: manual corrections (Adjust) must not be
  blocked by a stale operator number, while structured removals and
  delivery reservations enforce the non-negative invariant strictly.

CACHE:
  Every successful mutation fires Cache.Invalidate() so the insights
  aggregator never serves stale numbers.
*/
package inventory

import (
	"context"

	"github.com/rs/zerolog"
)

// Engine performs atomic stock operations against a TxStore.
type Engine struct {
	Store TxStore
	Cache Invalidator
	Log   zerolog.Logger
}

// NewEngine creates an Engine. cache may be nil.
func NewEngine(store TxStore, cache Invalidator, log zerolog.Logger) *Engine {
	return &Engine{Store: store, Cache: cache, Log: log}
}

func (e *Engine) invalidate() {
	if e.Cache != nil {
		e.Cache.Invalidate()
	}
}

// =============================================================================
// BATCH RECEIPT
// =============================================================================

// ReceiveBatch records a stock-increasing receipt: one batch row, one
// stock increase, one ledger entry, atomically.
// Returns the batch ID and the new stock level.
func (e *Engine) ReceiveBatch(ctx context.Context, drugID int64, quantity int, meta BatchMeta) (int64, int, error) {
	if quantity <= 0 {
		return 0, 0, ErrInvalidQuantity
	}

	var batchID int64
	var newStock int
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		newStock, err = applyDelta(ctx, tx, drugID, quantity)
		if err != nil {
			return err
		}
		batchID, err = tx.InsertBatch(ctx, DrugBatch{DrugID: drugID, Quantity: quantity, Meta: meta})
		if err != nil {
			return err
		}
		_, err = record(ctx, tx, drugID, quantity, BatchReason(meta.BatchNo))
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	e.invalidate()
	e.Log.Info().Int64("drug_id", drugID).Int("quantity", quantity).
		Int64("batch_id", batchID).Int("stock", newStock).Msg("batch received")
	return batchID, newStock, nil
}

// =============================================================================
// REMOVAL
// =============================================================================

// RemoveStock records a stock-decreasing write-off. Unlike Adjust, a
// removal past available stock is rejected with InsufficientStock -
// no clamping, no partial effect.
func (e *Engine) RemoveStock(ctx context.Context, drugID int64, quantity int, reason, batchNo string) (int64, int, error) {
	if quantity <= 0 {
		return 0, 0, ErrInvalidQuantity
	}
	if reason == "" {
		return 0, 0, ErrEmptyReason
	}

	var removalID int64
	var newStock int
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		drug, err := tx.GetDrug(ctx, drugID)
		if err != nil {
			return err
		}
		if drug == nil {
			return ErrDrugNotFound
		}
		if drug.Stock < quantity {
			return &InsufficientStockError{DrugID: drugID, Available: drug.Stock, Requested: quantity}
		}

		newStock, err = applyDelta(ctx, tx, drugID, -quantity)
		if err != nil {
			return err
		}
		removalID, err = tx.InsertRemoval(ctx, DrugRemoval{DrugID: drugID, BatchNo: batchNo, Reason: reason, Quantity: quantity})
		if err != nil {
			return err
		}
		_, err = record(ctx, tx, drugID, -quantity, RemovalReason(reason))
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	e.invalidate()
	e.Log.Info().Int64("drug_id", drugID).Int("quantity", quantity).
		Str("reason", reason).Int("stock", newStock).Msg("stock removed")
	return removalID, newStock, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

// Adjust applies a signed manual correction. Decreases past available
// stock clamp at zero rather than failing; the ledger entry still
// records the requested delta. An empty reason defaults to "manual".
func (e *Engine) Adjust(ctx context.Context, drugID int64, delta int, reason string) (int64, int, error) {
	if delta == 0 {
		return 0, 0, ErrZeroDelta
	}
	if reason == "" {
		reason = DefaultAdjustReason
	}

	var txID int64
	var newStock int
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		newStock, err = applyDelta(ctx, tx, drugID, delta)
		if err != nil {
			return err
		}
		txID, err = record(ctx, tx, drugID, delta, reason)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	e.invalidate()
	e.Log.Info().Int64("drug_id", drugID).Int("delta", delta).
		Str("reason", reason).Int("stock", newStock).Msg("stock adjusted")
	return txID, newStock, nil
}

// =============================================================================
// RESERVE / RELEASE - Used by the delivery state machine
// =============================================================================

// Reserve holds quantity units against a drug's stock. Rejected
// atomically with InsufficientStock if the stock is not available.
func (e *Engine) Reserve(ctx context.Context, drugID int64, quantity int, reasonTag string) error {
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		return e.reserveTx(ctx, tx, drugID, quantity, reasonTag)
	})
	if err != nil {
		return err
	}
	e.invalidate()
	return nil
}

// Release returns quantity units to a drug's stock. Always additive.
func (e *Engine) Release(ctx context.Context, drugID int64, quantity int, reasonTag string) error {
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		return e.releaseTx(ctx, tx, drugID, quantity, reasonTag)
	})
	if err != nil {
		return err
	}
	e.invalidate()
	return nil
}

// reserveTx is the in-transaction reservation primitive. The delivery
// state machine calls it inside its own transaction so the status
// write commits with the stock effect.
func (e *Engine) reserveTx(ctx context.Context, tx Tx, drugID int64, quantity int, reasonTag string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	drug, err := tx.GetDrug(ctx, drugID)
	if err != nil {
		return err
	}
	if drug == nil {
		return ErrDrugNotFound
	}
	if drug.Stock < quantity {
		return &InsufficientStockError{DrugID: drugID, Available: drug.Stock, Requested: quantity}
	}
	if _, err := applyDelta(ctx, tx, drugID, -quantity); err != nil {
		return err
	}
	_, err = record(ctx, tx, drugID, -quantity, reasonTag)
	return err
}

func (e *Engine) releaseTx(ctx context.Context, tx Tx, drugID int64, quantity int, reasonTag string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if _, err := applyDelta(ctx, tx, drugID, quantity); err != nil {
		return err
	}
	_, err := record(ctx, tx, drugID, quantity, reasonTag)
	return err
}
