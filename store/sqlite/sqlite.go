/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements inventory.TxStore/Tx (atomic stock + ledger writes), the
  CRUD surface the API layer needs, and insights.Reader (read-only
  aggregate queries) on a single Store struct. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for inventory_transactions.
  Corrections are new entries with the opposite sign. Every entry
  carries a unique idempotency key.

KEY TABLES:
  patients, drugs:         master records
  delivery_logs:           deliveries with status + reservation flag
  inventory_transactions:  immutable ledger of all stock deltas
  drug_batches:            stock receipts
  drug_removals:           stock write-offs

CONCURRENCY:
  Opened with WAL, foreign keys on, a bounded busy timeout, and
  _txlock=immediate so write transactions take the write lock at BEGIN.
  Two concurrent reservations against the same drug therefore
  serialize; a lock-wait timeout surfaces as inventory.ErrBusy
  (retryable).

USAGE:
  store, err := sqlite.New("./data/medpal.db")
  ...
  engine := inventory.NewEngine(store, cache, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/medpal/delivery-engine/insights"
	"github.com/medpal/delivery-engine/inventory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (and migrates) a SQLite store at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: keeps lock waits bounded and predictable.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INTEGER,
		contact TEXT
	);

	CREATE TABLE IF NOT EXISTS drugs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		frequency TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK(stock >= 0),
		reorder_level INTEGER NOT NULL DEFAULT 0 CHECK(reorder_level >= 0)
	);

	CREATE TABLE IF NOT EXISTS delivery_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL,
		drug_id INTEGER NOT NULL,
		scheduled_for TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1 CHECK(quantity > 0),
		status TEXT NOT NULL CHECK(status IN ('pending','delivered','missed','cancelled')),
		stock_decremented INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY(patient_id) REFERENCES patients(id) ON DELETE CASCADE,
		FOREIGN KEY(drug_id) REFERENCES drugs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_patient
		ON delivery_logs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_status_date
		ON delivery_logs(status, scheduled_for);
	CREATE INDEX IF NOT EXISTS idx_deliveries_drug
		ON delivery_logs(drug_id);

	-- Append-only ledger. No UPDATE/DELETE path exists for this table.
	CREATE TABLE IF NOT EXISTS inventory_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drug_id INTEGER NOT NULL,
		delta INTEGER NOT NULL CHECK(delta != 0),
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL,
		FOREIGN KEY(drug_id) REFERENCES drugs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_drug
		ON inventory_transactions(drug_id, id DESC);

	CREATE TABLE IF NOT EXISTS drug_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drug_id INTEGER NOT NULL,
		batch_no TEXT,
		isbn TEXT,
		producer TEXT,
		transporter TEXT,
		mfg_date TEXT,
		exp_date TEXT,
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		notes TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY(drug_id) REFERENCES drugs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_batches_drug
		ON drug_batches(drug_id, id DESC);

	CREATE TABLE IF NOT EXISTS drug_removals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		drug_id INTEGER NOT NULL,
		batch_no TEXT,
		reason TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		notes TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY(drug_id) REFERENCES drugs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_removals_drug
		ON drug_removals(drug_id, id DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW TYPES - sqlx scanning
// =============================================================================

type drugRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Dosage       string `db:"dosage"`
	Frequency    string `db:"frequency"`
	Stock        int    `db:"stock"`
	ReorderLevel int    `db:"reorder_level"`
}

func (r drugRow) toDomain() inventory.Drug {
	return inventory.Drug{
		ID: r.ID, Name: r.Name, Dosage: r.Dosage, Frequency: r.Frequency,
		Stock: r.Stock, ReorderLevel: r.ReorderLevel,
	}
}

type patientRow struct {
	ID      int64          `db:"id"`
	Name    string         `db:"name"`
	Age     sql.NullInt64  `db:"age"`
	Contact sql.NullString `db:"contact"`
}

func (r patientRow) toDomain() inventory.Patient {
	p := inventory.Patient{ID: r.ID, Name: r.Name}
	if r.Age.Valid {
		age := int(r.Age.Int64)
		p.Age = &age
	}
	if r.Contact.Valid {
		contact := r.Contact.String
		p.Contact = &contact
	}
	return p
}

type deliveryRow struct {
	ID               int64          `db:"id"`
	PatientID        int64          `db:"patient_id"`
	DrugID           int64          `db:"drug_id"`
	ScheduledFor     string         `db:"scheduled_for"`
	Quantity         int            `db:"quantity"`
	Status           string         `db:"status"`
	StockDecremented bool           `db:"stock_decremented"`
	Notes            sql.NullString `db:"notes"`
	CreatedAt        string         `db:"created_at"`
}

func (r deliveryRow) toDomain() inventory.DeliveryRecord {
	rec := inventory.DeliveryRecord{
		ID:               r.ID,
		PatientID:        r.PatientID,
		DrugID:           r.DrugID,
		Quantity:         r.Quantity,
		Status:           inventory.DeliveryStatus(r.Status),
		StockDecremented: r.StockDecremented,
	}
	rec.ScheduledFor, _ = time.Parse(time.DateOnly, r.ScheduledFor)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	if r.Notes.Valid {
		notes := r.Notes.String
		rec.Notes = &notes
	}
	return rec
}

type transactionRow struct {
	ID             int64          `db:"id"`
	DrugID         int64          `db:"drug_id"`
	Delta          int            `db:"delta"`
	Reason         sql.NullString `db:"reason"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      string         `db:"created_at"`
}

func (r transactionRow) toDomain() inventory.InventoryTransaction {
	tx := inventory.InventoryTransaction{
		ID:             r.ID,
		DrugID:         r.DrugID,
		Delta:          r.Delta,
		Reason:         r.Reason.String,
		IdempotencyKey: r.IdempotencyKey.String,
	}
	tx.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	return tx
}

type batchRow struct {
	ID          int64          `db:"id"`
	DrugID      int64          `db:"drug_id"`
	BatchNo     sql.NullString `db:"batch_no"`
	ISBN        sql.NullString `db:"isbn"`
	Producer    sql.NullString `db:"producer"`
	Transporter sql.NullString `db:"transporter"`
	MfgDate     sql.NullString `db:"mfg_date"`
	ExpDate     sql.NullString `db:"exp_date"`
	Quantity    int            `db:"quantity"`
	Notes       sql.NullString `db:"notes"`
	CreatedAt   string         `db:"created_at"`
}

func (r batchRow) toDomain() inventory.DrugBatch {
	b := inventory.DrugBatch{
		ID:       r.ID,
		DrugID:   r.DrugID,
		Quantity: r.Quantity,
		Meta: inventory.BatchMeta{
			BatchNo:     r.BatchNo.String,
			ISBN:        r.ISBN.String,
			Producer:    r.Producer.String,
			Transporter: r.Transporter.String,
			MfgDate:     r.MfgDate.String,
			ExpDate:     r.ExpDate.String,
			Notes:       r.Notes.String,
		},
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	return b
}

type removalRow struct {
	ID        int64          `db:"id"`
	DrugID    int64          `db:"drug_id"`
	BatchNo   sql.NullString `db:"batch_no"`
	Reason    string         `db:"reason"`
	Quantity  int            `db:"quantity"`
	Notes     sql.NullString `db:"notes"`
	CreatedAt string         `db:"created_at"`
}

func (r removalRow) toDomain() inventory.DrugRemoval {
	rem := inventory.DrugRemoval{
		ID:       r.ID,
		DrugID:   r.DrugID,
		BatchNo:  r.BatchNo.String,
		Reason:   r.Reason,
		Quantity: r.Quantity,
	}
	rem.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	if r.Notes.Valid {
		notes := r.Notes.String
		rem.Notes = &notes
	}
	return rem
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn within an immediate database transaction.
// Lock-wait timeouts are surfaced as inventory.ErrBusy.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return inventory.ErrBusy
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&storeTx{tx: sqlTx}); err != nil {
		if isBusyError(err) {
			return inventory.ErrBusy
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return inventory.ErrBusy
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// storeTx implements inventory.Tx over an open sqlx transaction.
type storeTx struct {
	tx *sqlx.Tx
}

func (t *storeTx) GetDrug(ctx context.Context, id int64) (*inventory.Drug, error) {
	var row drugRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT id, name, dosage, frequency, stock, reorder_level FROM drugs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drug: %w", err)
	}
	drug := row.toDomain()
	return &drug, nil
}

func (t *storeTx) UpdateDrugStock(ctx context.Context, id int64, stock int) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE drugs SET stock = ? WHERE id = ?", stock, id)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

func (t *storeTx) AppendTransaction(ctx context.Context, entry inventory.InventoryTransaction) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO inventory_transactions (drug_id, delta, reason, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.DrugID, entry.Delta, entry.Reason,
		nullString(entry.IdempotencyKey), now())
	if err != nil {
		return 0, fmt.Errorf("failed to append transaction: %w", err)
	}
	return res.LastInsertId()
}

func (t *storeTx) InsertBatch(ctx context.Context, b inventory.DrugBatch) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO drug_batches (drug_id, batch_no, isbn, producer, transporter, mfg_date, exp_date, quantity, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.DrugID, nullString(b.Meta.BatchNo), nullString(b.Meta.ISBN),
		nullString(b.Meta.Producer), nullString(b.Meta.Transporter),
		nullString(b.Meta.MfgDate), nullString(b.Meta.ExpDate),
		b.Quantity, nullString(b.Meta.Notes), now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	return res.LastInsertId()
}

func (t *storeTx) InsertRemoval(ctx context.Context, r inventory.DrugRemoval) (int64, error) {
	var notes any
	if r.Notes != nil {
		notes = *r.Notes
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO drug_removals (drug_id, batch_no, reason, quantity, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.DrugID, nullString(r.BatchNo), r.Reason, r.Quantity, notes, now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert removal: %w", err)
	}
	return res.LastInsertId()
}

func (t *storeTx) InsertDelivery(ctx context.Context, d inventory.DeliveryRecord) (int64, error) {
	var notes any
	if d.Notes != nil {
		notes = *d.Notes
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO delivery_logs (patient_id, drug_id, scheduled_for, quantity, status, stock_decremented, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.PatientID, d.DrugID, d.ScheduledFor.Format(time.DateOnly),
		d.Quantity, string(d.Status), d.StockDecremented, notes, now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert delivery: %w", err)
	}
	return res.LastInsertId()
}

func (t *storeTx) GetDelivery(ctx context.Context, id int64) (*inventory.DeliveryRecord, error) {
	var row deliveryRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT id, patient_id, drug_id, scheduled_for, quantity, status, stock_decremented, notes, created_at
		 FROM delivery_logs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	rec := row.toDomain()
	return &rec, nil
}

func (t *storeTx) SetDeliveryState(ctx context.Context, id int64, status inventory.DeliveryStatus, stockDecremented bool) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE delivery_logs SET status = ?, stock_decremented = ? WHERE id = ?",
		string(status), stockDecremented, id)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return nil
}

func (t *storeTx) DeleteDelivery(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM delivery_logs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete delivery: %w", err)
	}
	return nil
}

func (t *storeTx) PatientExists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := t.tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM patients WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to check patient: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// PATIENT CRUD
// =============================================================================

// CreatePatient inserts a patient and returns its ID.
func (s *Store) CreatePatient(ctx context.Context, p inventory.Patient) (int64, error) {
	var age, contact any
	if p.Age != nil {
		age = *p.Age
	}
	if p.Contact != nil {
		contact = *p.Contact
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO patients (name, age, contact) VALUES (?, ?, ?)", p.Name, age, contact)
	if err != nil {
		return 0, fmt.Errorf("failed to create patient: %w", err)
	}
	return res.LastInsertId()
}

// ListPatients returns all patients ordered by ID.
func (s *Store) ListPatients(ctx context.Context) ([]inventory.Patient, error) {
	var rows []patientRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, name, age, contact FROM patients ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	patients := make([]inventory.Patient, len(rows))
	for i, r := range rows {
		patients[i] = r.toDomain()
	}
	return patients, nil
}

// =============================================================================
// DRUG CRUD
// =============================================================================

// CreateDrug inserts a drug (with optional initial stock) and returns its ID.
func (s *Store) CreateDrug(ctx context.Context, d inventory.Drug) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO drugs (name, dosage, frequency, stock, reorder_level) VALUES (?, ?, ?, ?, ?)",
		d.Name, d.Dosage, d.Frequency, d.Stock, d.ReorderLevel)
	if err != nil {
		return 0, fmt.Errorf("failed to create drug: %w", err)
	}
	return res.LastInsertId()
}

// GetDrugByID returns a drug outside any transaction, or nil if missing.
func (s *Store) GetDrugByID(ctx context.Context, id int64) (*inventory.Drug, error) {
	var row drugRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, name, dosage, frequency, stock, reorder_level FROM drugs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drug: %w", err)
	}
	drug := row.toDomain()
	return &drug, nil
}

// DrugUpdate is a sparse patch: only present fields are applied.
// Stock is deliberately absent - it moves only through the Engine.
type DrugUpdate struct {
	Name         *string
	Dosage       *string
	Frequency    *string
	ReorderLevel *int
}

// UpdateDrug applies the present fields of u. Returns the number of
// rows updated (0 when the drug does not exist or u is empty).
func (s *Store) UpdateDrug(ctx context.Context, id int64, u DrugUpdate) (int64, error) {
	sets := []string{}
	args := []any{}
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Dosage != nil {
		sets = append(sets, "dosage = ?")
		args = append(args, *u.Dosage)
	}
	if u.Frequency != nil {
		sets = append(sets, "frequency = ?")
		args = append(args, *u.Frequency)
	}
	if u.ReorderLevel != nil {
		sets = append(sets, "reorder_level = ?")
		args = append(args, *u.ReorderLevel)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE drugs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update drug: %w", err)
	}
	return res.RowsAffected()
}

// DeleteDrug removes a drug; deliveries, batches, removals, and ledger
// entries cascade. Returns the number of rows deleted.
func (s *Store) DeleteDrug(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drugs WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete drug: %w", err)
	}
	return res.RowsAffected()
}

// ListDrugs returns all drugs ordered by ID.
func (s *Store) ListDrugs(ctx context.Context) ([]inventory.Drug, error) {
	var rows []drugRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, name, dosage, frequency, stock, reorder_level FROM drugs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list drugs: %w", err)
	}
	drugs := make([]inventory.Drug, len(rows))
	for i, r := range rows {
		drugs[i] = r.toDomain()
	}
	return drugs, nil
}

// =============================================================================
// DELIVERY QUERIES
// =============================================================================

const deliveryColumns = "id, patient_id, drug_id, scheduled_for, quantity, status, stock_decremented, notes, created_at"

// GetDeliveryByID returns a delivery outside any transaction.
func (s *Store) GetDeliveryByID(ctx context.Context, id int64) (*inventory.DeliveryRecord, error) {
	var row deliveryRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+deliveryColumns+" FROM delivery_logs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	rec := row.toDomain()
	return &rec, nil
}

// ListDeliveries returns all deliveries, newest first.
func (s *Store) ListDeliveries(ctx context.Context) ([]inventory.DeliveryRecord, error) {
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+deliveryColumns+" FROM delivery_logs ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveriesFromRows(rows), nil
}

// DeliveryHistory returns a patient's deliveries, most recent first.
func (s *Store) DeliveryHistory(ctx context.Context, patientID int64) ([]inventory.DeliveryRecord, error) {
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+deliveryColumns+` FROM delivery_logs
		 WHERE patient_id = ? ORDER BY scheduled_for DESC, id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return deliveriesFromRows(rows), nil
}

func deliveriesFromRows(rows []deliveryRow) []inventory.DeliveryRecord {
	records := make([]inventory.DeliveryRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toDomain()
	}
	return records
}

// =============================================================================
// LEDGER / BATCH / REMOVAL QUERIES (read-only)
// =============================================================================

// ListTransactions returns ledger entries newest-first, optionally
// filtered by drug.
func (s *Store) ListTransactions(ctx context.Context, drugID *int64, limit int) ([]inventory.InventoryTransaction, error) {
	query := `SELECT id, drug_id, delta, reason, idempotency_key, created_at
		 FROM inventory_transactions`
	args := []any{}
	if drugID != nil {
		query += " WHERE drug_id = ?"
		args = append(args, *drugID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	entries := make([]inventory.InventoryTransaction, len(rows))
	for i, r := range rows {
		entries[i] = r.toDomain()
	}
	return entries, nil
}

// SumDeltas returns the sum of all ledger deltas for a drug. This is
// the reconstruction the stock invariant is checked against.
func (s *Store) SumDeltas(ctx context.Context, drugID int64) (int, error) {
	var sum sql.NullInt64
	err := s.db.GetContext(ctx, &sum,
		"SELECT SUM(delta) FROM inventory_transactions WHERE drug_id = ?", drugID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum deltas: %w", err)
	}
	return int(sum.Int64), nil
}

// ListBatches returns batch receipts newest-first, optionally filtered by drug.
func (s *Store) ListBatches(ctx context.Context, drugID *int64, limit int) ([]inventory.DrugBatch, error) {
	query := `SELECT id, drug_id, batch_no, isbn, producer, transporter, mfg_date, exp_date, quantity, notes, created_at
		 FROM drug_batches`
	args := []any{}
	if drugID != nil {
		query += " WHERE drug_id = ?"
		args = append(args, *drugID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []batchRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	batches := make([]inventory.DrugBatch, len(rows))
	for i, r := range rows {
		batches[i] = r.toDomain()
	}
	return batches, nil
}

// ListRemovals returns write-offs newest-first, optionally filtered by drug.
func (s *Store) ListRemovals(ctx context.Context, drugID *int64, limit int) ([]inventory.DrugRemoval, error) {
	query := `SELECT id, drug_id, batch_no, reason, quantity, notes, created_at
		 FROM drug_removals`
	args := []any{}
	if drugID != nil {
		query += " WHERE drug_id = ?"
		args = append(args, *drugID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []removalRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list removals: %w", err)
	}
	removals := make([]inventory.DrugRemoval, len(rows))
	for i, r := range rows {
		removals[i] = r.toDomain()
	}
	return removals, nil
}

// =============================================================================
// DASHBOARD STATS
// =============================================================================

// Stats holds the dashboard counters.
type Stats struct {
	TotalPatients      int
	TotalDrugs         int
	PendingDeliveries  int
	CompletedToday     int
	MissedDeliveries   int
	UpcomingDeliveries int
}

// GetStats computes dashboard counters as of the given day.
func (s *Store) GetStats(ctx context.Context, today time.Time) (Stats, error) {
	var st Stats
	day := today.Format(time.DateOnly)

	queries := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&st.TotalPatients, "SELECT COUNT(*) FROM patients", nil},
		{&st.TotalDrugs, "SELECT COUNT(*) FROM drugs", nil},
		{&st.PendingDeliveries, "SELECT COUNT(*) FROM delivery_logs WHERE status = 'pending'", nil},
		{&st.CompletedToday, "SELECT COUNT(*) FROM delivery_logs WHERE status = 'delivered' AND scheduled_for = ?", []any{day}},
		{&st.MissedDeliveries, "SELECT COUNT(*) FROM delivery_logs WHERE status = 'missed'", nil},
		{&st.UpcomingDeliveries, "SELECT COUNT(*) FROM delivery_logs WHERE status = 'pending' AND scheduled_for >= ?", []any{day}},
	}
	for _, q := range queries {
		if err := s.db.GetContext(ctx, q.dest, q.query, q.args...); err != nil {
			return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
		}
	}
	return st, nil
}

// =============================================================================
// INSIGHTS READER (insights.Reader interface)
// =============================================================================

// DeliveryStatusCounts counts deliveries scheduled within [from, to].
func (s *Store) DeliveryStatusCounts(ctx context.Context, from, to time.Time) (insights.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM delivery_logs
		 WHERE scheduled_for >= ? AND scheduled_for <= ?
		 GROUP BY status`,
		from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return insights.StatusCounts{}, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	var counts insights.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return insights.StatusCounts{}, err
		}
		switch inventory.DeliveryStatus(status) {
		case inventory.StatusDelivered:
			counts.Delivered = n
		case inventory.StatusMissed:
			counts.Missed = n
		case inventory.StatusCancelled:
			counts.Cancelled = n
		case inventory.StatusPending:
			counts.Pending = n
		}
	}
	return counts, rows.Err()
}

// OverduePendingCount counts pending deliveries scheduled within
// [from, asOf) whose date has already passed.
func (s *Store) OverduePendingCount(ctx context.Context, from, asOf time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM delivery_logs
		 WHERE status = 'pending' AND scheduled_for >= ? AND scheduled_for < ?`,
		from.Format(time.DateOnly), asOf.Format(time.DateOnly))
	if err != nil {
		return 0, fmt.Errorf("failed to count overdue pending: %w", err)
	}
	return n, nil
}

// DeliveredQuantities sums delivered quantities per drug since the
// given date.
func (s *Store) DeliveredQuantities(ctx context.Context, since time.Time) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT drug_id, SUM(quantity) FROM delivery_logs
		 WHERE status = 'delivered' AND scheduled_for >= ?
		 GROUP BY drug_id`,
		since.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to sum delivered quantities: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]int)
	for rows.Next() {
		var drugID int64
		var qty int
		if err := rows.Scan(&drugID, &qty); err != nil {
			return nil, err
		}
		result[drugID] = qty
	}
	return result, rows.Err()
}

// PendingQuantities sums reserved quantities of pending deliveries per drug.
func (s *Store) PendingQuantities(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT drug_id, SUM(quantity) FROM delivery_logs
		 WHERE status = 'pending' AND stock_decremented = 1
		 GROUP BY drug_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending quantities: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]int)
	for rows.Next() {
		var drugID int64
		var qty int
		if err := rows.Scan(&drugID, &qty); err != nil {
			return nil, err
		}
		result[drugID] = qty
	}
	return result, rows.Err()
}

// PatientDeliveryCounts returns per-patient delivered/missed counts for
// deliveries scheduled within [from, to], restricted to patients with
// at least one missed delivery, ranked missed desc then delivered asc.
func (s *Store) PatientDeliveryCounts(ctx context.Context, from, to time.Time, limit int) ([]insights.PatientDeliveryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name,
		        SUM(CASE WHEN dl.status = 'delivered' THEN 1 ELSE 0 END) AS delivered,
		        SUM(CASE WHEN dl.status = 'missed' THEN 1 ELSE 0 END) AS missed
		 FROM delivery_logs dl
		 JOIN patients p ON p.id = dl.patient_id
		 WHERE dl.scheduled_for >= ? AND dl.scheduled_for <= ?
		 GROUP BY p.id, p.name
		 HAVING missed >= 1
		 ORDER BY missed DESC, delivered ASC
		 LIMIT ?`,
		from.Format(time.DateOnly), to.Format(time.DateOnly), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank patients: %w", err)
	}
	defer rows.Close()

	var result []insights.PatientDeliveryCount
	for rows.Next() {
		var c insights.PatientDeliveryCount
		if err := rows.Scan(&c.PatientID, &c.Name, &c.Delivered, &c.Missed); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
