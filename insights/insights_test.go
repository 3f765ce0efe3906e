package insights_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpal/delivery-engine/insights"
	"github.com/medpal/delivery-engine/inventory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeReader serves canned aggregate data and counts queries so tests
// can observe cache behavior.
type fakeReader struct {
	drugs       []inventory.Drug
	counts      insights.StatusCounts
	overdue     int
	delivered   map[int64]int
	pending     map[int64]int
	patients    []insights.PatientDeliveryCount
	statusCalls int
}

func (f *fakeReader) ListDrugs(ctx context.Context) ([]inventory.Drug, error) {
	return f.drugs, nil
}

func (f *fakeReader) DeliveryStatusCounts(ctx context.Context, from, to time.Time) (insights.StatusCounts, error) {
	f.statusCalls++
	return f.counts, nil
}

func (f *fakeReader) OverduePendingCount(ctx context.Context, from, asOf time.Time) (int, error) {
	return f.overdue, nil
}

func (f *fakeReader) DeliveredQuantities(ctx context.Context, since time.Time) (map[int64]int, error) {
	return f.delivered, nil
}

func (f *fakeReader) PendingQuantities(ctx context.Context) (map[int64]int, error) {
	return f.pending, nil
}

func (f *fakeReader) PatientDeliveryCounts(ctx context.Context, from, to time.Time, limit int) ([]insights.PatientDeliveryCount, error) {
	if len(f.patients) > limit {
		return f.patients[:limit], nil
	}
	return f.patients, nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)
}

func newAggregator(reader *fakeReader, cache *insights.Cache) *insights.Aggregator {
	agg := insights.NewAggregator(reader, cache)
	agg.Now = fixedNow
	return agg
}

func alertFor(report *insights.Report, drugID int64) *insights.DrugAlert {
	for i := range report.DrugAlerts {
		if report.DrugAlerts[i].DrugID == drugID {
			return &report.DrugAlerts[i]
		}
	}
	return nil
}

// =============================================================================
// ADHERENCE
// =============================================================================

func TestAdherence_RatesFromWindowCounts(t *testing.T) {
	// GIVEN: 3 delivered, 1 missed, 1 cancelled, 0 overdue pending
	// WHEN: The report is computed
	// THEN: overall 75.0, effective 75.0, broad 60.0

	reader := &fakeReader{
		counts: insights.StatusCounts{Delivered: 3, Missed: 1, Cancelled: 1},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	require.NotNil(t, report.Adherence.Overall)
	assert.Equal(t, 75.0, *report.Adherence.Overall)
	require.NotNil(t, report.Adherence.Effective)
	assert.Equal(t, 75.0, *report.Adherence.Effective)
	require.NotNil(t, report.Adherence.Broad)
	assert.Equal(t, 60.0, *report.Adherence.Broad)
	assert.Equal(t, insights.DefaultHorizonDays, report.HorizonDays)
}

func TestAdherence_OverduePendingDilutesEffective(t *testing.T) {
	// GIVEN: 3 delivered, 0 missed, 1 overdue pending
	// WHEN: The report is computed
	// THEN: overall is 100.0 but effective drops to 75.0

	reader := &fakeReader{
		counts:  insights.StatusCounts{Delivered: 3},
		overdue: 1,
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 100.0, *report.Adherence.Overall)
	assert.Equal(t, 75.0, *report.Adherence.Effective)
	assert.Equal(t, 7, report.HorizonDays)
}

func TestAdherence_NilWhenNoData(t *testing.T) {
	// GIVEN: No deliveries in the window at all
	// THEN: All three rates are nil, not zero

	report, err := newAggregator(&fakeReader{}, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	assert.Nil(t, report.Adherence.Overall)
	assert.Nil(t, report.Adherence.Effective)
	assert.Nil(t, report.Adherence.Broad)
}

func TestAdherence_OneDecimalRounding(t *testing.T) {
	// 2 of 3 delivered -> 66.7, not 66.66666
	reader := &fakeReader{counts: insights.StatusCounts{Delivered: 2, Missed: 1}}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 66.7, *report.Adherence.Overall)
}

// =============================================================================
// DRUG SEVERITY
// =============================================================================

func TestDrugAlerts_CriticalWithoutConsumptionSignal(t *testing.T) {
	// GIVEN: A drug at/below its reorder level with no deliveries in 30d
	// THEN: CRITICAL, recommendation falls back to twice the reorder level

	reader := &fakeReader{
		drugs: []inventory.Drug{{ID: 1, Name: "Metformin", Stock: 2, ReorderLevel: 5}},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	alert := alertFor(report, 1)
	require.NotNil(t, alert)
	assert.Equal(t, insights.SeverityCritical, alert.Severity)
	assert.Nil(t, alert.DailyAvg)
	assert.Nil(t, alert.DaysSupply)
	assert.Equal(t, 10, alert.Recommended)
}

func TestDrugAlerts_CriticalFallbackWhenNoReorderLevel(t *testing.T) {
	reader := &fakeReader{
		drugs: []inventory.Drug{{ID: 1, Name: "Insulin", Stock: 0, ReorderLevel: 0}},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	alert := alertFor(report, 1)
	require.NotNil(t, alert)
	assert.Equal(t, insights.SeverityCritical, alert.Severity)
	assert.Equal(t, 10, alert.Recommended)
}

func TestDrugAlerts_CriticalWhenSupplyRunsShort(t *testing.T) {
	// GIVEN: 30 units delivered over 30d (1/day) and only 4 in stock
	// THEN: CRITICAL with a recommendation covering the 21-day buffer

	reader := &fakeReader{
		drugs:     []inventory.Drug{{ID: 1, Name: "Lisinopril", Stock: 4, ReorderLevel: 2}},
		delivered: map[int64]int{1: 30},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	alert := alertFor(report, 1)
	require.NotNil(t, alert)
	assert.Equal(t, insights.SeverityCritical, alert.Severity)
	require.NotNil(t, alert.DailyAvg)
	assert.Equal(t, 1.0, *alert.DailyAvg)
	require.NotNil(t, alert.DaysSupply)
	assert.Equal(t, 4.0, *alert.DaysSupply)
	assert.Equal(t, 17, alert.Recommended) // ceil(1*21) - 4
}

func TestDrugAlerts_LowWhenAtReorderWithRunway(t *testing.T) {
	// GIVEN: Stock at the reorder level but 8 days of supply left
	// THEN: LOW, no recommendation

	reader := &fakeReader{
		drugs:     []inventory.Drug{{ID: 1, Name: "Atorvastatin", Stock: 8, ReorderLevel: 10}},
		delivered: map[int64]int{1: 30},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)

	alert := alertFor(report, 1)
	require.NotNil(t, alert)
	assert.Equal(t, insights.SeverityLow, alert.Severity)
	assert.Equal(t, 0, alert.Recommended)
}

func TestDrugAlerts_HealthyDrugNotListed(t *testing.T) {
	reader := &fakeReader{
		drugs:     []inventory.Drug{{ID: 1, Name: "Aspirin", Stock: 100, ReorderLevel: 10}},
		delivered: map[int64]int{1: 30},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, alertFor(report, 1))
}

// =============================================================================
// PATIENT RISK
// =============================================================================

func TestPatientRisks_CappedAtFive(t *testing.T) {
	reader := &fakeReader{
		patients: []insights.PatientDeliveryCount{
			{PatientID: 1, Name: "a", Missed: 9},
			{PatientID: 2, Name: "b", Missed: 8},
			{PatientID: 3, Name: "c", Missed: 7},
			{PatientID: 4, Name: "d", Missed: 6},
			{PatientID: 5, Name: "e", Missed: 5},
			{PatientID: 6, Name: "f", Missed: 4},
		},
	}
	report, err := newAggregator(reader, nil).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, report.PatientRisks, 5)
	assert.Equal(t, int64(1), report.PatientRisks[0].PatientID)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummary_CombinesStockPendingAndConsumption(t *testing.T) {
	reader := &fakeReader{
		drugs: []inventory.Drug{
			{ID: 1, Name: "Metformin", Dosage: "850mg", Frequency: "daily", Stock: 60, ReorderLevel: 20},
			{ID: 2, Name: "Insulin", Dosage: "10IU", Frequency: "daily", Stock: 5, ReorderLevel: 3},
		},
		delivered: map[int64]int{1: 15},
		pending:   map[int64]int{1: 6},
	}
	rows, err := newAggregator(reader, nil).Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 6, rows[0].PendingQuantity)
	require.NotNil(t, rows[0].DailyAvg)
	assert.Equal(t, 0.5, *rows[0].DailyAvg)
	require.NotNil(t, rows[0].DaysSupply)
	assert.Equal(t, 120.0, *rows[0].DaysSupply)

	assert.Equal(t, 0, rows[1].PendingQuantity)
	assert.Nil(t, rows[1].DailyAvg)
	assert.Nil(t, rows[1].DaysSupply)
}

// =============================================================================
// CACHE
// =============================================================================

func TestReport_ServedFromCacheUntilInvalidated(t *testing.T) {
	// GIVEN: A cached report
	// WHEN: The same horizon is requested again
	// THEN: The store is not re-queried until Invalidate()

	reader := &fakeReader{counts: insights.StatusCounts{Delivered: 1}}
	cache := insights.NewCache(time.Minute)
	agg := newAggregator(reader, cache)

	_, err := agg.Report(context.Background(), 14)
	require.NoError(t, err)
	_, err = agg.Report(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.statusCalls)

	// Different horizon is a different cache key
	_, err = agg.Report(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.statusCalls)

	cache.Invalidate()
	_, err = agg.Report(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, 3, reader.statusCalls)
}

func TestCache_GetMissesAfterInvalidate(t *testing.T) {
	cache := insights.NewCache(0) // default TTL
	cache.Put(14, &insights.Report{HorizonDays: 14})

	got, ok := cache.Get(14)
	require.True(t, ok)
	assert.Equal(t, 14, got.HorizonDays)

	cache.Invalidate()
	_, ok = cache.Get(14)
	assert.False(t, ok)
}
