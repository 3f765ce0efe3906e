/*
Package insights computes read-only analytics over the delivery and
inventory data: adherence rates, per-drug stock severity with reorder
recommendations, and patient risk ranking.

PURPOSE:
  Everything here is derived - the package never writes to the store.
  Reports are cached with a short TTL (cache.go); the inventory engine
  invalidates the cache on every successful mutation, so a report can
  never outlive the data it was computed from by more than one request.

ADHERENCE (percentages over the horizon window, default 14 days):
  overall   = delivered / (delivered + missed)
  effective = delivered / (delivered + missed + overdue pending)
  broad     = delivered / (delivered + missed + cancelled + overdue pending)
  A rate with a zero denominator is nil, not zero: "no data" and
  "0% adherence" are different answers.

SEVERITY:
  Consumption is estimated from delivered quantities over the last 30
  days. A drug is CRITICAL when it is at/below its reorder level with
  no usable runway, or when its projected days of supply drop under 5;
  LOW when merely at/below the reorder level. Recommendations target a
  21-day buffer.
*/
package insights

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medpal/delivery-engine/inventory"
)

// DefaultHorizonDays is the adherence window used when the caller does
// not specify one.
const DefaultHorizonDays = 14

// consumptionWindowDays is the lookback for the daily consumption
// estimate, independent of the adherence horizon.
const consumptionWindowDays = 30

// bufferDays is the stock runway a reorder recommendation aims for.
const bufferDays = 21

// riskLimit caps the patient risk ranking.
const riskLimit = 5

// Severity levels for drug stock alerts.
const (
	SeverityCritical = "CRITICAL"
	SeverityLow      = "LOW"
)

// Reader is the read-only query surface the aggregator needs. The
// SQLite store implements it.
type Reader interface {
	ListDrugs(ctx context.Context) ([]inventory.Drug, error)
	DeliveryStatusCounts(ctx context.Context, from, to time.Time) (StatusCounts, error)
	OverduePendingCount(ctx context.Context, from, asOf time.Time) (int, error)
	DeliveredQuantities(ctx context.Context, since time.Time) (map[int64]int, error)
	PendingQuantities(ctx context.Context) (map[int64]int, error)
	PatientDeliveryCounts(ctx context.Context, from, to time.Time, limit int) ([]PatientDeliveryCount, error)
}

// StatusCounts holds per-status delivery counts for a window.
type StatusCounts struct {
	Delivered int
	Missed    int
	Cancelled int
	Pending   int
}

// PatientDeliveryCount is one row of the patient risk ranking source.
type PatientDeliveryCount struct {
	PatientID int64
	Name      string
	Delivered int
	Missed    int
}

// Adherence carries the three adherence rates as percentages (0-100,
// one decimal). A nil rate means its denominator was zero.
type Adherence struct {
	Overall   *float64 `json:"overall"`
	Effective *float64 `json:"effective"`
	Broad     *float64 `json:"broad"`
}

// DrugAlert is one entry of the stock severity report.
type DrugAlert struct {
	DrugID       int64    `json:"drugId"`
	Name         string   `json:"name"`
	Stock        int      `json:"stock"`
	ReorderLevel int      `json:"reorderLevel"`
	Severity     string   `json:"severity"`
	DailyAvg     *float64 `json:"dailyAvg"`
	DaysSupply   *float64 `json:"daysSupply"`
	Recommended  int      `json:"recommended"`
}

// PatientRisk is one entry of the missed-delivery ranking.
type PatientRisk struct {
	PatientID int64  `json:"patientId"`
	Name      string `json:"name"`
	Delivered int    `json:"delivered"`
	Missed    int    `json:"missed"`
}

// Report is the full insights payload.
type Report struct {
	HorizonDays  int           `json:"horizonDays"`
	GeneratedAt  time.Time     `json:"generatedAt"`
	Adherence    Adherence     `json:"adherence"`
	StatusCounts StatusCounts  `json:"statusCounts"`
	DrugAlerts   []DrugAlert   `json:"drugAlerts"`
	PatientRisks []PatientRisk `json:"patientRisks"`
}

// SummaryRow is one drug's inventory position, with its consumption
// estimate and pending reservations.
type SummaryRow struct {
	DrugID          int64    `json:"drugId"`
	Name            string   `json:"name"`
	Dosage          string   `json:"dosage"`
	Frequency       string   `json:"frequency"`
	Stock           int      `json:"stock"`
	ReorderLevel    int      `json:"reorderLevel"`
	PendingQuantity int      `json:"pendingQuantity"`
	DailyAvg        *float64 `json:"dailyAvg"`
	DaysSupply      *float64 `json:"daysSupply"`
}

// Aggregator computes insight reports from a Reader, serving cached
// copies while they are fresh.
type Aggregator struct {
	Store Reader
	Cache *Cache
	Now   func() time.Time
}

// NewAggregator creates an Aggregator. cache may be nil to disable
// caching (tests).
func NewAggregator(store Reader, cache *Cache) *Aggregator {
	return &Aggregator{Store: store, Cache: cache, Now: time.Now}
}

// =============================================================================
// REPORT
// =============================================================================

// Report computes (or serves from cache) the insights report for the
// given horizon. horizonDays <= 0 selects the default.
func (a *Aggregator) Report(ctx context.Context, horizonDays int) (*Report, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	if a.Cache != nil {
		if cached, ok := a.Cache.Get(horizonDays); ok {
			return cached, nil
		}
	}

	report, err := a.compute(ctx, horizonDays)
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		a.Cache.Put(horizonDays, report)
	}
	return report, nil
}

func (a *Aggregator) compute(ctx context.Context, horizonDays int) (*Report, error) {
	now := a.Now()
	from := now.AddDate(0, 0, -horizonDays)

	counts, err := a.Store.DeliveryStatusCounts(ctx, from, now)
	if err != nil {
		return nil, err
	}
	overdue, err := a.Store.OverduePendingCount(ctx, from, now)
	if err != nil {
		return nil, err
	}

	alerts, err := a.drugAlerts(ctx, now)
	if err != nil {
		return nil, err
	}

	risks, err := a.Store.PatientDeliveryCounts(ctx, from, now, riskLimit)
	if err != nil {
		return nil, err
	}
	patientRisks := make([]PatientRisk, len(risks))
	for i, r := range risks {
		patientRisks[i] = PatientRisk{PatientID: r.PatientID, Name: r.Name, Delivered: r.Delivered, Missed: r.Missed}
	}

	return &Report{
		HorizonDays:  horizonDays,
		GeneratedAt:  now,
		Adherence:    computeAdherence(counts, overdue),
		StatusCounts: counts,
		DrugAlerts:   alerts,
		PatientRisks: patientRisks,
	}, nil
}

func computeAdherence(c StatusCounts, overdue int) Adherence {
	return Adherence{
		Overall:   percentage(c.Delivered, c.Delivered+c.Missed),
		Effective: percentage(c.Delivered, c.Delivered+c.Missed+overdue),
		Broad:     percentage(c.Delivered, c.Delivered+c.Missed+c.Cancelled+overdue),
	}
}

// percentage returns num/denom as a percent rounded to one decimal, or
// nil when the denominator is zero.
func percentage(num, denom int) *float64 {
	if denom == 0 {
		return nil
	}
	pct, _ := decimal.NewFromInt(int64(num) * 100).
		Div(decimal.NewFromInt(int64(denom))).
		Round(1).Float64()
	return &pct
}

// =============================================================================
// DRUG SEVERITY
// =============================================================================

func (a *Aggregator) drugAlerts(ctx context.Context, now time.Time) ([]DrugAlert, error) {
	drugs, err := a.Store.ListDrugs(ctx)
	if err != nil {
		return nil, err
	}
	delivered, err := a.Store.DeliveredQuantities(ctx, now.AddDate(0, 0, -consumptionWindowDays))
	if err != nil {
		return nil, err
	}

	var alerts []DrugAlert
	for _, drug := range drugs {
		daily, supply := consumption(delivered[drug.ID], drug.Stock)
		severity := classify(drug, daily, supply)
		if severity == "" {
			continue
		}
		alert := DrugAlert{
			DrugID:       drug.ID,
			Name:         drug.Name,
			Stock:        drug.Stock,
			ReorderLevel: drug.ReorderLevel,
			Severity:     severity,
			DailyAvg:     daily,
			DaysSupply:   supply,
		}
		if severity == SeverityCritical {
			alert.Recommended = recommend(drug, daily)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// consumption derives the daily consumption estimate and the projected
// days of supply. Both are nil-able: daily is nil when nothing was
// delivered in the window, supply is nil when daily is nil or zero.
func consumption(deliveredQty, stock int) (daily, supply *float64) {
	if deliveredQty <= 0 {
		return nil, nil
	}
	d, _ := decimal.NewFromInt(int64(deliveredQty)).
		Div(decimal.NewFromInt(consumptionWindowDays)).
		Round(2).Float64()
	daily = &d
	if d > 0 {
		s, _ := decimal.NewFromInt(int64(stock)).
			Div(decimal.NewFromFloat(d)).
			Round(1).Float64()
		supply = &s
	}
	return daily, supply
}

// classify returns the severity for a drug, or "" when no alert applies.
func classify(drug inventory.Drug, daily, supply *float64) string {
	atReorder := drug.Stock <= drug.ReorderLevel
	switch {
	case atReorder && (daily == nil || (supply != nil && *supply < 3)):
		return SeverityCritical
	case supply != nil && *supply < 5:
		return SeverityCritical
	case atReorder:
		return SeverityLow
	}
	return ""
}

// recommend sizes a reorder to cover the buffer window. Without a
// consumption signal it falls back to twice the reorder level, with a
// floor for drugs that never had one configured.
func recommend(drug inventory.Drug, daily *float64) int {
	if daily != nil && *daily > 0 {
		need := int(decimal.NewFromFloat(*daily).
			Mul(decimal.NewFromInt(bufferDays)).
			Ceil().IntPart())
		if rec := need - drug.Stock; rec > 0 {
			return rec
		}
		return 0
	}
	if drug.ReorderLevel > 0 {
		return drug.ReorderLevel * 2
	}
	return 10
}

// =============================================================================
// INVENTORY SUMMARY
// =============================================================================

// Summary returns per-drug inventory positions. Not cached: it is
// cheap, and callers expect it to reflect the latest mutation.
func (a *Aggregator) Summary(ctx context.Context) ([]SummaryRow, error) {
	drugs, err := a.Store.ListDrugs(ctx)
	if err != nil {
		return nil, err
	}
	delivered, err := a.Store.DeliveredQuantities(ctx, a.Now().AddDate(0, 0, -consumptionWindowDays))
	if err != nil {
		return nil, err
	}
	pending, err := a.Store.PendingQuantities(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]SummaryRow, len(drugs))
	for i, drug := range drugs {
		daily, supply := consumption(delivered[drug.ID], drug.Stock)
		rows[i] = SummaryRow{
			DrugID:          drug.ID,
			Name:            drug.Name,
			Dosage:          drug.Dosage,
			Frequency:       drug.Frequency,
			Stock:           drug.Stock,
			ReorderLevel:    drug.ReorderLevel,
			PendingQuantity: pending[drug.ID],
			DailyAvg:        daily,
			DaysSupply:      supply,
		}
	}
	return rows, nil
}
