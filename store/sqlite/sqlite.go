/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One database holds everything the payroll engine reads and writes: the
  HR inputs it consumes, the pay runs it produces, the loan ledger and the
  audit trail. In production the same patterns apply to PostgreSQL with
  minor dialect differences.

INTERFACES IMPLEMENTED:
  Store:
    payrun.Repository:         pay runs and their lines
    payrun.EmployeeDirectory:  active employees per organization
    payrun.CompensationSource: effective-dated compensation configs
    payrun.AttendanceSource:   monthly attendance summaries
    payrun.AdjustmentSource:   one-off additions and deductions
    rates.Loader:              stored rate configurations
  Store.Ledger():
    deduction.Repository:      accounts + append-only ledger entries
  Store.Audit():
    audit.Log:                 append-only audit entries

APPEND-ONLY ENFORCEMENT:
  ledger_entries and audit_entries are only ever INSERTed. There is no
  code path that updates or deletes them.

KEY TABLES:
  ledger_entries:      immutable history of account balance changes
  accounts:            current projection of each loan or advance
  pay_runs, pay_lines: orchestrator output
  audit_entries:       audit trail
  employees, compensation_configs, attendance_summaries, adjustments,
  rate_configurations: inputs

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Transactions hold the write lock
  and run every statement on the *sql.Tx, never through the Store.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := deduction.NewLedger(store.Ledger())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - ledger.go, runs.go, sources.go, audit.go, rates.go
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
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

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		delta TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
		ON ledger_entries(account_id, period);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference
		ON ledger_entries(reference_id) WHERE reference_id IS NOT NULL;

	-- Loan and advance accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		emi TEXT NOT NULL,
		penalty_rate TEXT NOT NULL,
		start_period TEXT NOT NULL,
		recovered TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		schedule_json TEXT NOT NULL,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_employee
		ON accounts(employee_id);

	-- Pay runs
	CREATE TABLE IF NOT EXISTS pay_runs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		period TEXT NOT NULL,
		revision INTEGER NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		run_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(org_id, period, revision)
	);

	-- At most one run per period that is still in flight
	CREATE UNIQUE INDEX IF NOT EXISTS idx_pay_runs_active
		ON pay_runs(org_id, period) WHERE status NOT IN ('cancelled', 'paid');

	CREATE INDEX IF NOT EXISTS idx_pay_runs_org
		ON pay_runs(org_id, period);

	-- Pay lines
	CREATE TABLE IF NOT EXISTS pay_lines (
		run_id TEXT NOT NULL REFERENCES pay_runs(id),
		employee_id TEXT NOT NULL,
		line_id TEXT NOT NULL,
		checksum TEXT NOT NULL,
		line_json TEXT NOT NULL,
		PRIMARY KEY (run_id, employee_id)
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		action TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		run_id TEXT,
		period TEXT,
		actor TEXT,
		from_status TEXT,
		to_status TEXT,
		payload TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_entries(entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_run
		ON audit_entries(run_id) WHERE run_id IS NOT NULL;

	-- Employees (owned by employee-record management)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		department TEXT,
		designation TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		joined_period TEXT NOT NULL,
		left_period TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_org
		ON employees(org_id, active);

	-- Compensation configs (effective-dated)
	CREATE TABLE IF NOT EXISTS compensation_configs (
		employee_id TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, effective_from)
	);

	-- Attendance summaries
	CREATE TABLE IF NOT EXISTS attendance_summaries (
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, period)
	);

	-- One-off adjustments
	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		period TEXT NOT NULL,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		label TEXT NOT NULL,
		amount TEXT NOT NULL,
		taxable BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_employee_period
		ON adjustments(employee_id, period);

	-- Rate configurations (versioned)
	CREATE TABLE IF NOT EXISTS rate_configurations (
		version TEXT PRIMARY KEY,
		effective_from TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"pay_lines", "pay_runs", "ledger_entries", "accounts", "audit_entries",
		"adjustments", "attendance_summaries", "compensation_configs", "employees",
		"rate_configurations",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout has a fixed-width fraction so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
