/*
handlers.go - HTTP API handlers for the drug delivery engine

PURPOSE:
  Exposes the inventory engine, delivery state machine, and insights
  aggregator via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Patients:
    GET    /api/patients                    List patients
    POST   /api/patients                    Create patient

  Drugs:
    GET    /api/drugs                       List drugs
    POST   /api/drugs                       Create drug
    PATCH  /api/drugs/{id}                  Sparse update (no stock)
    DELETE /api/drugs/{id}                  Delete (cascades)

  Deliveries:
    GET    /api/deliveries                  List deliveries
    POST   /api/deliveries                  Schedule (reserves stock)
    PATCH  /api/deliveries/{id}/status      Transition status
    DELETE /api/deliveries/{id}             Delete (releases stock)
    GET    /api/deliveries/patient/{id}     Patient history

  Inventory:
    POST   /api/drug_batches                Receive batch (+stock)
    GET    /api/drug_batches                List receipts
    POST   /api/drug_removals               Write off stock (-stock)
    GET    /api/drug_removals               List write-offs
    POST   /api/inventory/adjust            Manual adjustment
    GET    /api/inventory/transactions      Ledger entries
    GET    /api/inventory/summary           Per-drug positions

  Insights / meta:
    GET    /api/insights                    Adherence + alerts report
    GET    /api/stats                       Dashboard counters
    GET    /api/health                      Liveness probe

ERROR HANDLING:
  Domain errors are mapped uniformly by writeDomainError:
  - 400: invalid input, insufficient stock
  - 404: unknown patient/drug/delivery
  - 503: store busy (caller should retry)
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public; deploy behind a gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/medpal/delivery-engine/insights"
	"github.com/medpal/delivery-engine/inventory"
	"github.com/medpal/delivery-engine/store/sqlite"
)

// History and ledger listings are capped; the UI pages past data from
// exports, not from these endpoints.
const (
	maxTransactionRows = 300
	maxEventRows       = 200
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Engine     *inventory.Engine
	Deliveries *inventory.DeliveryService
	Insights   *insights.Aggregator
	Log        zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, engine *inventory.Engine, deliveries *inventory.DeliveryService, agg *insights.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{Store: store, Engine: engine, Deliveries: deliveries, Insights: agg, Log: log}
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns all patients.
// GET /api/patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list patients", err)
		return
	}
	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = toPatientDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePatient creates a patient.
// POST /api/patients
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	patient := inventory.Patient{Name: req.Name, Age: req.Age, Contact: req.Contact}
	id, err := h.Store.CreatePatient(r.Context(), patient)
	if err != nil {
		h.internalError(w, "Failed to create patient", err)
		return
	}
	patient.ID = id
	writeJSON(w, http.StatusCreated, toPatientDTO(patient))
}

// =============================================================================
// DRUG HANDLERS
// =============================================================================

// ListDrugs returns all drugs.
// GET /api/drugs
func (h *Handler) ListDrugs(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.Store.ListDrugs(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list drugs", err)
		return
	}
	dtos := make([]DrugDTO, len(drugs))
	for i, d := range drugs {
		dtos[i] = toDrugDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDrug creates a drug, optionally with an initial stock level.
// POST /api/drugs
func (h *Handler) CreateDrug(w http.ResponseWriter, r *http.Request) {
	var req CreateDrugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Dosage == "" || req.Frequency == "" {
		writeError(w, http.StatusBadRequest, "name, dosage and frequency are required", nil)
		return
	}
	if req.Stock < 0 || req.ReorderLevel < 0 {
		writeError(w, http.StatusBadRequest, "stock and reorderLevel must be non-negative", nil)
		return
	}

	drug := inventory.Drug{
		Name: req.Name, Dosage: req.Dosage, Frequency: req.Frequency,
		Stock: req.Stock, ReorderLevel: req.ReorderLevel,
	}
	id, err := h.Store.CreateDrug(r.Context(), drug)
	if err != nil {
		h.internalError(w, "Failed to create drug", err)
		return
	}
	drug.ID = id
	writeJSON(w, http.StatusCreated, toDrugDTO(drug))
}

// UpdateDrug applies a sparse update; absent fields are untouched and
// stock is never accepted here.
// PATCH /api/drugs/{id}
func (h *Handler) UpdateDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDrugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	n, err := h.Store.UpdateDrug(r.Context(), id, sqlite.DrugUpdate{
		Name:         req.Name,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		h.internalError(w, "Failed to update drug", err)
		return
	}
	if n == 0 {
		// Distinguish a missing drug from an empty patch.
		drug, err := h.Store.GetDrugByID(r.Context(), id)
		if err != nil {
			h.internalError(w, "Failed to update drug", err)
			return
		}
		if drug == nil {
			writeError(w, http.StatusNotFound, "Drug not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, toDrugDTO(*drug))
		return
	}

	drug, err := h.Store.GetDrugByID(r.Context(), id)
	if err != nil || drug == nil {
		h.internalError(w, "Failed to reload drug", err)
		return
	}
	writeJSON(w, http.StatusOK, toDrugDTO(*drug))
}

// DeleteDrug removes a drug and, via cascade, its deliveries, ledger
// entries, batches, and removals.
// DELETE /api/drugs/{id}
func (h *Handler) DeleteDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.Store.DeleteDrug(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to delete drug", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Drug not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// ListDeliveries returns all deliveries, newest first.
// GET /api/deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListDeliveries(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list deliveries", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryDTOs(records))
}

// ScheduleDelivery creates a pending delivery, reserving stock. A
// failed reservation aborts the creation entirely.
// POST /api/deliveries
func (h *Handler) ScheduleDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	scheduledFor, err := time.Parse(time.DateOnly, req.ScheduledFor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scheduledFor must be a date (YYYY-MM-DD)", err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	rec, err := h.Deliveries.Schedule(r.Context(), req.PatientID, req.DrugID, scheduledFor, quantity, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeliveryDTO(*rec))
}

// UpdateDeliveryStatus transitions a delivery, releasing or
// re-reserving stock as the transition requires.
// PATCH /api/deliveries/{id}/status
func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDeliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Deliveries.UpdateStatus(r.Context(), id, inventory.DeliveryStatus(req.Status))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*rec))
}

// DeleteDelivery removes a delivery, releasing any live reservation.
// DELETE /api/deliveries/{id}
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Deliveries.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatientHistory returns a patient's deliveries, most recent first.
// GET /api/deliveries/patient/{id}
func (h *Handler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	records, err := h.Store.DeliveryHistory(r.Context(), id)
	if err != nil {
		h.internalError(w, "Failed to fetch history", err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryDTOs(records))
}

func deliveryDTOs(records []inventory.DeliveryRecord) []DeliveryDTO {
	dtos := make([]DeliveryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toDeliveryDTO(rec)
	}
	return dtos
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ReceiveBatch records a stock receipt.
// POST /api/drug_batches
func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	meta := inventory.BatchMeta{
		BatchNo: req.BatchNo, ISBN: req.ISBN, Producer: req.Producer,
		Transporter: req.Transporter, MfgDate: req.MfgDate,
		ExpDate: req.ExpDate, Notes: req.Notes,
	}
	batchID, stock, err := h.Engine.ReceiveBatch(r.Context(), req.DrugID, req.Quantity, meta)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": batchID, "stock": stock})
}

// ListBatches returns stock receipts, optionally filtered by drug.
// GET /api/drug_batches?drug_id=&limit=
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	drugID := queryDrugID(r)
	limit := queryLimit(r, maxEventRows)

	batches, err := h.Store.ListBatches(r.Context(), drugID, limit)
	if err != nil {
		h.internalError(w, "Failed to list batches", err)
		return
	}
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RemoveStock records a stock write-off.
// POST /api/drug_removals
func (h *Handler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req CreateRemovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	removalID, stock, err := h.Engine.RemoveStock(r.Context(), req.DrugID, req.Quantity, req.Reason, req.BatchNo)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": removalID, "stock": stock})
}

// ListRemovals returns stock write-offs, optionally filtered by drug.
// GET /api/drug_removals?drug_id=&limit=
func (h *Handler) ListRemovals(w http.ResponseWriter, r *http.Request) {
	drugID := queryDrugID(r)
	limit := queryLimit(r, maxEventRows)

	removals, err := h.Store.ListRemovals(r.Context(), drugID, limit)
	if err != nil {
		h.internalError(w, "Failed to list removals", err)
		return
	}
	dtos := make([]RemovalDTO, len(removals))
	for i, rem := range removals {
		dtos[i] = toRemovalDTO(rem)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Adjust applies a manual stock correction. Decreases clamp at zero.
// POST /api/inventory/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	txID, stock, err := h.Engine.Adjust(r.Context(), req.DrugID, req.Delta, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustResponse{TransactionID: txID, Stock: stock})
}

// ListTransactions returns ledger entries, newest first.
// GET /api/inventory/transactions?drug_id=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	drugID := queryDrugID(r)
	limit := queryLimit(r, maxTransactionRows)

	entries, err := h.Store.ListTransactions(r.Context(), drugID, limit)
	if err != nil {
		h.internalError(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTransactionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// InventorySummary returns per-drug inventory positions.
// GET /api/inventory/summary
func (h *Handler) InventorySummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Insights.Summary(r.Context())
	if err != nil {
		h.internalError(w, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// =============================================================================
// INSIGHTS / STATS
// =============================================================================

// GetInsights returns the adherence and severity report.
// GET /api/insights?horizon_days=N
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	horizon := 0
	if raw := r.URL.Query().Get("horizon_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "horizon_days must be a non-negative integer", err)
			return
		}
		horizon = n
	}

	report, err := h.Insights.Report(r.Context(), horizon)
	if err != nil {
		h.internalError(w, "Failed to compute insights", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetStats returns the dashboard counters.
// GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetStats(r.Context(), time.Now())
	if err != nil {
		h.internalError(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		TotalPatients:      stats.TotalPatients,
		TotalDrugs:         stats.TotalDrugs,
		PendingDeliveries:  stats.PendingDeliveries,
		CompletedToday:     stats.CompletedToday,
		MissedDeliveries:   stats.MissedDeliveries,
		UpcomingDeliveries: stats.UpcomingDeliveries,
	})
}

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func queryDrugID(r *http.Request) *int64 {
	raw := r.URL.Query().Get("drug_id")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func queryLimit(r *http.Request, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return max
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// internalError logs an unexpected failure and answers 500. Client and
// domain errors never pass through here.
func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.Log.Error().Err(err).Msg(message)
	writeError(w, http.StatusInternalServerError, message, err)
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case inventory.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case inventory.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case inventory.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Store busy, retry shortly", err)
	default:
		h.internalError(w, "Internal error", err)
	}
}
