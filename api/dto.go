/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing field renaming and API evolution without touching the
  domain packages.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATE FORMATS:
  scheduled_for travels as an ISO date (2006-01-02); timestamps as
  RFC3339. Nullable fields are pointers and serialize as JSON null.

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - insights package: report types serialized as-is
*/
package api

import (
	"time"

	"github.com/medpal/delivery-engine/inventory"
)

// =============================================================================
// PATIENTS
// =============================================================================

// PatientDTO represents a patient in API responses.
type PatientDTO struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Contact *string `json:"contact"`
}

// CreatePatientRequest is the body for POST /api/patients.
type CreatePatientRequest struct {
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Contact *string `json:"contact"`
}

func toPatientDTO(p inventory.Patient) PatientDTO {
	return PatientDTO{ID: p.ID, Name: p.Name, Age: p.Age, Contact: p.Contact}
}

// =============================================================================
// DRUGS
// =============================================================================

// DrugDTO represents a drug in API responses.
type DrugDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorderLevel"`
}

// CreateDrugRequest is the body for POST /api/drugs.
type CreateDrugRequest struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorderLevel"`
}

// UpdateDrugRequest is the sparse body for PATCH /api/drugs/{id}.
// Absent fields are left untouched. Stock is deliberately not here:
// it moves only through inventory operations.
type UpdateDrugRequest struct {
	Name         *string `json:"name"`
	Dosage       *string `json:"dosage"`
	Frequency    *string `json:"frequency"`
	ReorderLevel *int    `json:"reorderLevel"`
}

func toDrugDTO(d inventory.Drug) DrugDTO {
	return DrugDTO{
		ID: d.ID, Name: d.Name, Dosage: d.Dosage, Frequency: d.Frequency,
		Stock: d.Stock, ReorderLevel: d.ReorderLevel,
	}
}

// =============================================================================
// DELIVERIES
// =============================================================================

// DeliveryDTO represents a delivery record in API responses.
type DeliveryDTO struct {
	ID               int64   `json:"id"`
	PatientID        int64   `json:"patientId"`
	DrugID           int64   `json:"drugId"`
	ScheduledFor     string  `json:"scheduledFor"`
	Quantity         int     `json:"quantity"`
	Status           string  `json:"status"`
	StockDecremented bool    `json:"stockDecremented"`
	Notes            *string `json:"notes"`
	CreatedAt        string  `json:"createdAt"`
}

// CreateDeliveryRequest is the body for POST /api/deliveries.
// ScheduledFor is an ISO date. Quantity defaults to 1 when omitted.
type CreateDeliveryRequest struct {
	PatientID    int64   `json:"patientId"`
	DrugID       int64   `json:"drugId"`
	ScheduledFor string  `json:"scheduledFor"`
	Quantity     *int    `json:"quantity"`
	Notes        *string `json:"notes"`
}

// UpdateDeliveryStatusRequest is the body for PATCH /api/deliveries/{id}/status.
type UpdateDeliveryStatusRequest struct {
	Status string `json:"status"`
}

func toDeliveryDTO(d inventory.DeliveryRecord) DeliveryDTO {
	return DeliveryDTO{
		ID:               d.ID,
		PatientID:        d.PatientID,
		DrugID:           d.DrugID,
		ScheduledFor:     d.ScheduledFor.Format(time.DateOnly),
		Quantity:         d.Quantity,
		Status:           string(d.Status),
		StockDecremented: d.StockDecremented,
		Notes:            d.Notes,
		CreatedAt:        d.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// INVENTORY
// =============================================================================

// BatchDTO represents a stock receipt in API responses.
type BatchDTO struct {
	ID          int64  `json:"id"`
	DrugID      int64  `json:"drugId"`
	BatchNo     string `json:"batchNo"`
	ISBN        string `json:"isbn"`
	Producer    string `json:"producer"`
	Transporter string `json:"transporter"`
	MfgDate     string `json:"mfgDate"`
	ExpDate     string `json:"expDate"`
	Quantity    int    `json:"quantity"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"createdAt"`
}

// CreateBatchRequest is the body for POST /api/drug_batches.
type CreateBatchRequest struct {
	DrugID      int64  `json:"drugId"`
	BatchNo     string `json:"batchNo"`
	ISBN        string `json:"isbn"`
	Producer    string `json:"producer"`
	Transporter string `json:"transporter"`
	MfgDate     string `json:"mfgDate"`
	ExpDate     string `json:"expDate"`
	Quantity    int    `json:"quantity"`
	Notes       string `json:"notes"`
}

func toBatchDTO(b inventory.DrugBatch) BatchDTO {
	return BatchDTO{
		ID:          b.ID,
		DrugID:      b.DrugID,
		BatchNo:     b.Meta.BatchNo,
		ISBN:        b.Meta.ISBN,
		Producer:    b.Meta.Producer,
		Transporter: b.Meta.Transporter,
		MfgDate:     b.Meta.MfgDate,
		ExpDate:     b.Meta.ExpDate,
		Quantity:    b.Quantity,
		Notes:       b.Meta.Notes,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
	}
}

// RemovalDTO represents a stock write-off in API responses.
type RemovalDTO struct {
	ID        int64   `json:"id"`
	DrugID    int64   `json:"drugId"`
	BatchNo   string  `json:"batchNo"`
	Reason    string  `json:"reason"`
	Quantity  int     `json:"quantity"`
	Notes     *string `json:"notes"`
	CreatedAt string  `json:"createdAt"`
}

// CreateRemovalRequest is the body for POST /api/drug_removals.
type CreateRemovalRequest struct {
	DrugID   int64  `json:"drugId"`
	BatchNo  string `json:"batchNo"`
	Reason   string `json:"reason"`
	Quantity int    `json:"quantity"`
}

func toRemovalDTO(r inventory.DrugRemoval) RemovalDTO {
	return RemovalDTO{
		ID:        r.ID,
		DrugID:    r.DrugID,
		BatchNo:   r.BatchNo,
		Reason:    r.Reason,
		Quantity:  r.Quantity,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// AdjustRequest is the body for POST /api/inventory/adjust.
type AdjustRequest struct {
	DrugID int64  `json:"drugId"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// AdjustResponse reports the effect of a manual adjustment.
type AdjustResponse struct {
	TransactionID int64 `json:"transactionId"`
	Stock         int   `json:"stock"`
}

// TransactionDTO represents one ledger entry in API responses.
type TransactionDTO struct {
	ID        int64  `json:"id"`
	DrugID    int64  `json:"drugId"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"createdAt"`
}

func toTransactionDTO(t inventory.InventoryTransaction) TransactionDTO {
	return TransactionDTO{
		ID:        t.ID,
		DrugID:    t.DrugID,
		Delta:     t.Delta,
		Reason:    t.Reason,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// STATS / ERRORS
// =============================================================================

// StatsDTO is the dashboard counters payload.
type StatsDTO struct {
	TotalPatients      int `json:"totalPatients"`
	TotalDrugs         int `json:"totalDrugs"`
	PendingDeliveries  int `json:"pendingDeliveries"`
	CompletedToday     int `json:"completedToday"`
	MissedDeliveries   int `json:"missedDeliveries"`
	UpcomingDeliveries int `json:"upcomingDeliveries"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
