/*
delivery.go - Delivery lifecycle and its stock effects

PURPOSE:
  Governs delivery status transitions (pending/delivered/missed/
  cancelled) and decides, per transition, whether stock must be
  released back or re-reserved. Each transition commits the status
  write and its stock+ledger effect as one unit.

LIFECYCLE:
  ┌─────────────────────────────────────────────────────────────┐
  │  Schedule ──▶ pending (reservation held)                    │
  │                                                             │
  │  pending/delivered/missed ──▶ cancelled : release, clear    │
  │  cancelled ──▶ pending/delivered/missed : re-reserve or     │
  │                                           abort on shortage │
  │  transitions within {pending,delivered,missed} : status     │
  │                                           write only        │
  │  Delete (any state) : release live reservation, remove row  │
  └─────────────────────────────────────────────────────────────┘

RESERVATION FLAG:
  StockDecremented tracks whether the record holds a live reservation.
  The stock effect of a transition depends on the flag, not on the
  previous status, so the flag and the ledger can never disagree.

TERMINAL STATES:
  delivered and missed are not enforced as terminal; any transition is
  accepted and its stock effect follows the flag.
*/
package inventory

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DeliveryService is the delivery state machine. It delegates stock
// effects to the Engine's in-transaction primitives so that status and
// stock commit together.
type DeliveryService struct {
	Store  TxStore
	Engine *Engine
	Log    zerolog.Logger
}

// NewDeliveryService creates a DeliveryService sharing the Engine's store.
func NewDeliveryService(engine *Engine, log zerolog.Logger) *DeliveryService {
	return &DeliveryService{Store: engine.Store, Engine: engine, Log: log}
}

// =============================================================================
// SCHEDULE - Creation reserves stock
// =============================================================================

// Schedule creates a pending delivery and reserves its quantity. If
// the reservation fails (insufficient stock, missing drug/patient) the
// whole creation is aborted and no record is persisted.
func (s *DeliveryService) Schedule(ctx context.Context, patientID, drugID int64, scheduledFor time.Time, quantity int, notes *string) (*DeliveryRecord, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var created *DeliveryRecord
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.PatientExists(ctx, patientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPatientNotFound
		}
		// The drug must be resolved before the insert: the delivery row
		// references it, and an unknown drug has to surface as a domain
		// error rather than a constraint failure.
		drug, err := tx.GetDrug(ctx, drugID)
		if err != nil {
			return err
		}
		if drug == nil {
			return ErrDrugNotFound
		}

		rec := DeliveryRecord{
			PatientID:        patientID,
			DrugID:           drugID,
			ScheduledFor:     scheduledFor,
			Quantity:         quantity,
			Status:           StatusPending,
			StockDecremented: true,
			Notes:            notes,
		}
		id, err := tx.InsertDelivery(ctx, rec)
		if err != nil {
			return err
		}
		if err := s.Engine.reserveTx(ctx, tx, drugID, quantity, ReserveReason(id)); err != nil {
			return err
		}
		rec.ID = id
		created = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Engine.invalidate()
	s.Log.Info().Int64("delivery_id", created.ID).Int64("patient_id", patientID).
		Int64("drug_id", drugID).Int("quantity", quantity).Msg("delivery scheduled")
	return created, nil
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// UpdateStatus moves a delivery to newStatus and applies the required
// stock effect:
//   - entering cancelled with a live reservation releases it
//   - leaving cancelled (no live reservation) re-reserves, aborting
//     the transition on insufficient stock
//   - anything else writes the status only
func (s *DeliveryService) UpdateStatus(ctx context.Context, deliveryID int64, newStatus DeliveryStatus) (*DeliveryRecord, error) {
	if !ValidStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var updated *DeliveryRecord
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		rec, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrDeliveryNotFound
		}

		reserved := rec.StockDecremented
		switch {
		case newStatus == StatusCancelled && reserved:
			if err := s.Engine.releaseTx(ctx, tx, rec.DrugID, rec.Quantity, ReleaseReason(rec.ID)); err != nil {
				return err
			}
			reserved = false
		case newStatus != StatusCancelled && !reserved:
			if err := s.Engine.reserveTx(ctx, tx, rec.DrugID, rec.Quantity, ReReserveReason(rec.ID)); err != nil {
				return err
			}
			reserved = true
		}

		if err := tx.SetDeliveryState(ctx, rec.ID, newStatus, reserved); err != nil {
			return err
		}
		rec.Status = newStatus
		rec.StockDecremented = reserved
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Engine.invalidate()
	s.Log.Info().Int64("delivery_id", deliveryID).Str("status", string(newStatus)).
		Bool("reserved", updated.StockDecremented).Msg("delivery status updated")
	return updated, nil
}

// =============================================================================
// DELETION
// =============================================================================

// Delete removes a delivery record, releasing its reservation first if
// one is live.
func (s *DeliveryService) Delete(ctx context.Context, deliveryID int64) error {
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		rec, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrDeliveryNotFound
		}
		if rec.StockDecremented {
			if err := s.Engine.releaseTx(ctx, tx, rec.DrugID, rec.Quantity, DeleteReason(rec.ID)); err != nil {
				return err
			}
		}
		return tx.DeleteDelivery(ctx, rec.ID)
	})
	if err != nil {
		return err
	}

	s.Engine.invalidate()
	s.Log.Info().Int64("delivery_id", deliveryID).Msg("delivery deleted")
	return nil
}
