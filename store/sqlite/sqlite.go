/*
Package sqlite provides a SQLite-backed implementation of the energy stores.

PURPOSE:
  Implements energy.TariffStore and energy.QuoteStore using SQLite. This is
  the default store for single-node deployments and for the demo server.
  store/postgres implements the same interfaces for a shared database.

INTERFACES IMPLEMENTED:
  energy.TariffRepository: Tax tables, operators, network fee rows (read)
  energy.TariffWriter:     Seed loader upserts (write)
  energy.QuoteStore:       Frozen quotes (append-only)

APPEND-ONLY ENFORCEMENT:
  The quotes table is never updated or deleted from:
  - Saving an existing quote ID fails
  - Repricing creates a comparison, never a new version of the row

KEY TABLES:
  tax_tables:      One row per year, brackets stored as JSON
  operators:       Network operators
  postcode_ranges: Inclusive postcode ranges per commodity
  network_fees:    Fee per (operator, year, commodity, capacity)
  quotes:          Frozen calculations

DECIMALS:
  Amounts and rates are stored as TEXT and parsed back with
  decimal.NewFromString, so no value ever passes through float64.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL the database
  handles this instead.

USAGE:
  store, err := sqlite.New("./data/energy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - energy/repository.go: Interface definitions
  - energy/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// Store implements the tariff and quote stores using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

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

// Ping checks the connection, for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Government tax tables, one active row per year
	CREATE TABLE IF NOT EXISTS tax_tables (
		year INTEGER PRIMARY KEY,
		electricity_json TEXT NOT NULL,
		gas_json TEXT NOT NULL,
		electricity_rebate TEXT NOT NULL,
		vat_percent TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);

	-- Network operators
	CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- Postcode ranges, inclusive on both ends
	CREATE TABLE IF NOT EXISTS postcode_ranges (
		from_postcode TEXT NOT NULL,
		to_postcode TEXT NOT NULL,
		commodity TEXT NOT NULL,
		operator_id TEXT NOT NULL REFERENCES operators(id),
		PRIMARY KEY (from_postcode, to_postcode, commodity)
	);

	CREATE INDEX IF NOT EXISTS idx_postcode_ranges_lookup
		ON postcode_ranges(commodity, from_postcode, to_postcode);

	-- Network operator fees
	CREATE TABLE IF NOT EXISTS network_fees (
		operator_id TEXT NOT NULL REFERENCES operators(id),
		year INTEGER NOT NULL,
		commodity TEXT NOT NULL,
		capacity TEXT NOT NULL,
		amount TEXT NOT NULL,
		period TEXT NOT NULL,
		PRIMARY KEY (operator_id, year, commodity, capacity)
	);

	-- Frozen quotes (append-only)
	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		reference TEXT,
		contract_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		input_json TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		snapshot_hash TEXT NOT NULL,
		annual_incl_vat TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_reference
		ON quotes(reference) WHERE reference IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_quotes_created_at
		ON quotes(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TAX TABLES
// =============================================================================

// SaveTaxTable upserts the active tax table for its year.
func (s *Store) SaveTaxTable(ctx context.Context, table energy.TaxTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	electricityJSON, err := json.Marshal(table.Electricity)
	if err != nil {
		return fmt.Errorf("failed to encode electricity brackets: %w", err)
	}
	gasJSON, err := json.Marshal(table.Gas)
	if err != nil {
		return fmt.Errorf("failed to encode gas brackets: %w", err)
	}

	query := `
		INSERT INTO tax_tables (year, electricity_json, gas_json, electricity_rebate, vat_percent, active, updated_at)
		VALUES (?, ?, ?, ?, ?, TRUE, ?)
		ON CONFLICT(year) DO UPDATE SET
			electricity_json = excluded.electricity_json,
			gas_json = excluded.gas_json,
			electricity_rebate = excluded.electricity_rebate,
			vat_percent = excluded.vat_percent,
			active = TRUE,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		table.Year,
		string(electricityJSON),
		string(gasJSON),
		table.ElectricityRebate.String(),
		table.VATPercent.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save tax table %d: %w", table.Year, err)
	}
	return nil
}

// ActiveTaxTable returns the active table for exactly this year.
func (s *Store) ActiveTaxTable(ctx context.Context, year int) (*energy.TaxTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var electricityJSON, gasJSON, rebate, vat string
	err := s.db.QueryRowContext(ctx,
		`SELECT electricity_json, gas_json, electricity_rebate, vat_percent
		 FROM tax_tables WHERE year = ? AND active`,
		year,
	).Scan(&electricityJSON, &gasJSON, &rebate, &vat)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t := energy.TaxTable{Year: year}
	if err := json.Unmarshal([]byte(electricityJSON), &t.Electricity); err != nil {
		return nil, fmt.Errorf("tax table %d: corrupt electricity brackets: %w", year, err)
	}
	if err := json.Unmarshal([]byte(gasJSON), &t.Gas); err != nil {
		return nil, fmt.Errorf("tax table %d: corrupt gas brackets: %w", year, err)
	}
	if t.ElectricityRebate, err = decimal.NewFromString(rebate); err != nil {
		return nil, fmt.Errorf("tax table %d: corrupt rebate: %w", year, err)
	}
	if t.VATPercent, err = decimal.NewFromString(vat); err != nil {
		return nil, fmt.Errorf("tax table %d: corrupt VAT: %w", year, err)
	}
	return &t, nil
}

// TaxTableYears returns the years with an active table, ascending.
func (s *Store) TaxTableYears(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT year FROM tax_tables WHERE active ORDER BY year")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// OPERATORS AND POSTCODE RANGES
// =============================================================================

// SaveOperator upserts an operator.
func (s *Store) SaveOperator(ctx context.Context, op energy.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		op.ID, op.Name,
	)
	return err
}

// ListOperators returns all operators ordered by ID.
func (s *Store) ListOperators(ctx context.Context) ([]energy.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM operators ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []energy.Operator
	for rows.Next() {
		var op energy.Operator
		if err := rows.Scan(&op.ID, &op.Name); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// SavePostcodeRange upserts a range keyed by its bounds and commodity.
func (s *Store) SavePostcodeRange(ctx context.Context, r energy.PostcodeRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO postcode_ranges (from_postcode, to_postcode, commodity, operator_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(from_postcode, to_postcode, commodity) DO UPDATE SET
			operator_id = excluded.operator_id`,
		r.From, r.To, r.Commodity, r.OperatorID,
	)
	return err
}

// OperatorForPostcode returns the operator whose range contains the postcode.
// Overlapping ranges resolve to the one with the lowest lower bound.
func (s *Store) OperatorForPostcode(ctx context.Context, postcode string, commodity energy.Commodity) (*energy.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var op energy.Operator
	err := s.db.QueryRowContext(ctx,
		`SELECT o.id, o.name
		 FROM postcode_ranges r JOIN operators o ON o.id = r.operator_id
		 WHERE r.commodity = ? AND r.from_postcode <= ? AND r.to_postcode >= ?
		 ORDER BY r.from_postcode
		 LIMIT 1`,
		commodity, postcode, postcode,
	).Scan(&op.ID, &op.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// =============================================================================
// NETWORK FEES
// =============================================================================

// SaveNetworkFee upserts a fee row.
func (s *Store) SaveNetworkFee(ctx context.Context, row energy.NetworkFeeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO network_fees (operator_id, year, commodity, capacity, amount, period)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(operator_id, year, commodity, capacity) DO UPDATE SET
			amount = excluded.amount,
			period = excluded.period
	`

	_, err := s.db.ExecContext(ctx, query,
		row.OperatorID, row.Year, row.Commodity, row.Capacity,
		row.Amount.String(), row.Period,
	)
	return err
}

// NetworkFee returns the fee row for one capacity code.
func (s *Store) NetworkFee(ctx context.Context, operatorID energy.OperatorID, year int, commodity energy.Commodity, capacity energy.CapacityCode) (*energy.NetworkFeeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := energy.NetworkFeeRow{OperatorID: operatorID, Year: year, Commodity: commodity, Capacity: capacity}
	var amount string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, period FROM network_fees
		 WHERE operator_id = ? AND year = ? AND commodity = ? AND capacity = ?`,
		operatorID, year, commodity, capacity,
	).Scan(&amount, &row.Period)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if row.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("network fee %s/%d/%s/%s: corrupt amount: %w", operatorID, year, commodity, capacity, err)
	}
	return &row, nil
}

// =============================================================================
// QUOTE STORE (append-only)
// =============================================================================

// SaveQuote inserts a frozen quote. There is no upsert.
func (s *Store) SaveQuote(ctx context.Context, q energy.QuoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO quotes
		(id, reference, contract_type, year, input_json, snapshot_json, breakdown_json,
		 snapshot_hash, annual_incl_vat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		q.ID,
		nullString(q.Reference),
		q.ContractType,
		q.Year,
		string(q.InputJSON),
		string(q.SnapshotJSON),
		string(q.BreakdownJSON),
		q.SnapshotHash,
		q.AnnualInclVAT,
		q.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("quote %s already exists", q.ID)
		}
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

const quoteColumns = `id, reference, contract_type, year, input_json, snapshot_json, breakdown_json,
	snapshot_hash, annual_incl_vat, created_at`

// GetQuote retrieves a quote by ID.
func (s *Store) GetQuote(ctx context.Context, id energy.QuoteID) (*energy.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryQuote(ctx, "SELECT "+quoteColumns+" FROM quotes WHERE id = ?", id)
}

// GetQuoteByReference retrieves the latest quote frozen for a reference.
func (s *Store) GetQuoteByReference(ctx context.Context, reference string) (*energy.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryQuote(ctx,
		"SELECT "+quoteColumns+" FROM quotes WHERE reference = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		reference,
	)
}

// ListQuotes returns the most recent quotes first. limit <= 0 means all.
func (s *Store) ListQuotes(ctx context.Context, limit int) ([]energy.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + quoteColumns + " FROM quotes ORDER BY created_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []energy.QuoteRecord
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (s *Store) queryQuote(ctx context.Context, query string, args ...any) (*energy.QuoteRecord, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(row scanner) (energy.QuoteRecord, error) {
	var q energy.QuoteRecord
	var reference sql.NullString
	var input, snapshot, breakdown, createdAt string

	err := row.Scan(&q.ID, &reference, &q.ContractType, &q.Year,
		&input, &snapshot, &breakdown, &q.SnapshotHash, &q.AnnualInclVAT, &createdAt)
	if err != nil {
		return q, err
	}

	q.Reference = reference.String
	q.InputJSON = []byte(input)
	q.SnapshotJSON = []byte(snapshot)
	q.BreakdownJSON = []byte(breakdown)
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return q, fmt.Errorf("quote %s: created_at: %w", q.ID, err)
	}
	return q, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears the tariff tables (for tests and a full reload). Quotes are
// never cleared.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"network_fees", "postcode_ranges", "operators", "tax_tables"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
