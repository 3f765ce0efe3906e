package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpal/delivery-engine/inventory"
	"github.com/medpal/delivery-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedDrug(t *testing.T, store *sqlite.Store, stock int) int64 {
	t.Helper()
	id, err := store.CreateDrug(context.Background(), inventory.Drug{
		Name: "Amoxicillin", Dosage: "500mg", Frequency: "2x daily", Stock: stock,
	})
	require.NoError(t, err)
	return id
}

func seedPatient(t *testing.T, store *sqlite.Store, name string) int64 {
	t.Helper()
	id, err := store.CreatePatient(context.Background(), inventory.Patient{Name: name})
	require.NoError(t, err)
	return id
}

func seedDelivery(t *testing.T, store *sqlite.Store, patientID, drugID int64, day string, status inventory.DeliveryStatus) int64 {
	t.Helper()
	scheduled, err := time.Parse(time.DateOnly, day)
	require.NoError(t, err)

	var id int64
	err = store.WithTx(context.Background(), func(tx inventory.Tx) error {
		var err error
		id, err = tx.InsertDelivery(context.Background(), inventory.DeliveryRecord{
			PatientID: patientID, DrugID: drugID,
			ScheduledFor: scheduled, Quantity: 1, Status: inventory.StatusPending,
		})
		if err != nil {
			return err
		}
		if status != inventory.StatusPending {
			return tx.SetDeliveryState(context.Background(), id, status, false)
		}
		return nil
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes stock and a ledger entry
	// WHEN: The callback returns an error
	// THEN: Neither write survives

	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx inventory.Tx) error {
		if err := tx.UpdateDrugStock(ctx, drugID, 99); err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, inventory.InventoryTransaction{
			DrugID: drugID, Delta: 89, Reason: "manual", IdempotencyKey: "k-1",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	drug, err := store.GetDrugByID(ctx, drugID)
	require.NoError(t, err)
	assert.Equal(t, 10, drug.Stock)

	entries, err := store.ListTransactions(ctx, &drugID, 300)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithTx_GetDrugReturnsNilForMissing(t *testing.T) {
	store := newStore(t)
	err := store.WithTx(context.Background(), func(tx inventory.Tx) error {
		drug, err := tx.GetDrug(context.Background(), 999)
		require.NoError(t, err)
		assert.Nil(t, drug)
		return nil
	})
	require.NoError(t, err)
}

func TestAppendTransaction_RejectsDuplicateIdempotencyKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)

	appendWithKey := func(key string) error {
		return store.WithTx(ctx, func(tx inventory.Tx) error {
			_, err := tx.AppendTransaction(ctx, inventory.InventoryTransaction{
				DrugID: drugID, Delta: 1, IdempotencyKey: key,
			})
			return err
		})
	}
	require.NoError(t, appendWithKey("k-dup"))
	assert.Error(t, appendWithKey("k-dup"))
}

// =============================================================================
// CASCADES
// =============================================================================

func TestDeleteDrug_CascadesDependentRows(t *testing.T) {
	// GIVEN: A drug with a delivery and a ledger entry
	// WHEN: The drug is deleted
	// THEN: Its deliveries and ledger entries are gone too

	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	patientID := seedPatient(t, store, "Ada Osei")
	seedDelivery(t, store, patientID, drugID, "2026-09-01", inventory.StatusPending)

	err := store.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AppendTransaction(ctx, inventory.InventoryTransaction{
			DrugID: drugID, Delta: 10, Reason: "batch:B-1", IdempotencyKey: "k-1",
		})
		return err
	})
	require.NoError(t, err)

	n, err := store.DeleteDrug(ctx, drugID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	deliveries, err := store.ListDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	entries, err := store.ListTransactions(ctx, nil, 300)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// SPARSE DRUG UPDATE
// =============================================================================

func TestUpdateDrug_EmptyPatchIsNoOp(t *testing.T) {
	store := newStore(t)
	drugID := seedDrug(t, store, 10)

	n, err := store.UpdateDrug(context.Background(), drugID, sqlite.DrugUpdate{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateDrug_AppliesOnlyPresentFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)

	dosage := "250mg"
	n, err := store.UpdateDrug(ctx, drugID, sqlite.DrugUpdate{Dosage: &dosage})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	drug, err := store.GetDrugByID(ctx, drugID)
	require.NoError(t, err)
	assert.Equal(t, "250mg", drug.Dosage)
	assert.Equal(t, "Amoxicillin", drug.Name)
	assert.Equal(t, 10, drug.Stock)
}

// =============================================================================
// INSIGHTS READER QUERIES
// =============================================================================

func TestDeliveryStatusCounts_WindowFiltered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	patientID := seedPatient(t, store, "Ada Osei")

	seedDelivery(t, store, patientID, drugID, "2026-08-20", inventory.StatusDelivered)
	seedDelivery(t, store, patientID, drugID, "2026-08-22", inventory.StatusMissed)
	seedDelivery(t, store, patientID, drugID, "2026-08-25", inventory.StatusPending)
	// Outside the window
	seedDelivery(t, store, patientID, drugID, "2026-07-01", inventory.StatusDelivered)

	from, _ := time.Parse(time.DateOnly, "2026-08-15")
	to, _ := time.Parse(time.DateOnly, "2026-08-31")
	counts, err := store.DeliveryStatusCounts(ctx, from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Delivered)
	assert.Equal(t, 1, counts.Missed)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 0, counts.Cancelled)
}

func TestOverduePendingCount(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	patientID := seedPatient(t, store, "Ada Osei")

	seedDelivery(t, store, patientID, drugID, "2026-08-20", inventory.StatusPending) // overdue
	seedDelivery(t, store, patientID, drugID, "2026-09-05", inventory.StatusPending) // future
	seedDelivery(t, store, patientID, drugID, "2026-08-21", inventory.StatusDelivered)

	from, _ := time.Parse(time.DateOnly, "2026-08-15")
	asOf, _ := time.Parse(time.DateOnly, "2026-08-31")
	n, err := store.OverduePendingCount(ctx, from, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPatientDeliveryCounts_RankedByMissed(t *testing.T) {
	// GIVEN: Two patients with missed deliveries and one without
	// WHEN: Counts are ranked
	// THEN: Most missed first; the clean patient is excluded

	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	worst := seedPatient(t, store, "Worst")
	mid := seedPatient(t, store, "Mid")
	clean := seedPatient(t, store, "Clean")

	seedDelivery(t, store, worst, drugID, "2026-08-20", inventory.StatusMissed)
	seedDelivery(t, store, worst, drugID, "2026-08-21", inventory.StatusMissed)
	seedDelivery(t, store, mid, drugID, "2026-08-20", inventory.StatusMissed)
	seedDelivery(t, store, mid, drugID, "2026-08-21", inventory.StatusDelivered)
	seedDelivery(t, store, clean, drugID, "2026-08-20", inventory.StatusDelivered)

	from, _ := time.Parse(time.DateOnly, "2026-08-01")
	to, _ := time.Parse(time.DateOnly, "2026-08-31")
	rows, err := store.PatientDeliveryCounts(ctx, from, to, 5)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, worst, rows[0].PatientID)
	assert.Equal(t, 2, rows[0].Missed)
	assert.Equal(t, mid, rows[1].PatientID)
	assert.Equal(t, 1, rows[1].Delivered)
}

func TestPendingQuantities_OnlyReservedRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	patientID := seedPatient(t, store, "Ada Osei")

	// One pending with a live reservation, one pending without
	scheduled, _ := time.Parse(time.DateOnly, "2026-09-01")
	err := store.WithTx(ctx, func(tx inventory.Tx) error {
		if _, err := tx.InsertDelivery(ctx, inventory.DeliveryRecord{
			PatientID: patientID, DrugID: drugID, ScheduledFor: scheduled,
			Quantity: 3, Status: inventory.StatusPending, StockDecremented: true,
		}); err != nil {
			return err
		}
		_, err := tx.InsertDelivery(ctx, inventory.DeliveryRecord{
			PatientID: patientID, DrugID: drugID, ScheduledFor: scheduled,
			Quantity: 2, Status: inventory.StatusPending, StockDecremented: false,
		})
		return err
	})
	require.NoError(t, err)

	pending, err := store.PendingQuantities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending[drugID])
}

// =============================================================================
// STATS
// =============================================================================

func TestGetStats(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	drugID := seedDrug(t, store, 10)
	patientID := seedPatient(t, store, "Ada Osei")

	today, _ := time.Parse(time.DateOnly, "2026-08-31")
	seedDelivery(t, store, patientID, drugID, "2026-08-31", inventory.StatusDelivered)
	seedDelivery(t, store, patientID, drugID, "2026-08-20", inventory.StatusMissed)
	seedDelivery(t, store, patientID, drugID, "2026-09-05", inventory.StatusPending)

	stats, err := store.GetStats(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPatients)
	assert.Equal(t, 1, stats.TotalDrugs)
	assert.Equal(t, 1, stats.PendingDeliveries)
	assert.Equal(t, 1, stats.CompletedToday)
	assert.Equal(t, 1, stats.MissedDeliveries)
	assert.Equal(t, 1, stats.UpcomingDeliveries)
}
