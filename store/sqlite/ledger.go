package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// LEDGER REPOSITORY - deduction.Repository on top of the Store
// =============================================================================

// LedgerRepo implements deduction.Repository. Obtain it with Store.Ledger.
type LedgerRepo struct {
	s *Store
}

// Ledger returns the loan and advance repository.
func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{s: s}
}

func (r *LedgerRepo) Append(ctx context.Context, tx generic.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return ledgerView{q: r.s.db}.Append(ctx, tx)
}

// AppendBatch persists multiple transactions atomically.
func (r *LedgerRepo) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	dbTx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := (ledgerView{q: dbTx}).AppendBatch(ctx, txs); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (r *LedgerRepo) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.Load(ctx, id)
}

func (r *LedgerRepo) LoadRange(ctx context.Context, id generic.AccountID, from, to generic.Period) ([]generic.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.LoadRange(ctx, id, from, to)
}

func (r *LedgerRepo) Exists(ctx context.Context, key string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.Exists(ctx, key)
}

func (r *LedgerRepo) Find(ctx context.Context, key string) (generic.Transaction, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.Find(ctx, key)
}

func (r *LedgerRepo) SaveAccount(ctx context.Context, a *deduction.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return ledgerView{q: r.s.db}.SaveAccount(ctx, a)
}

func (r *LedgerRepo) GetAccount(ctx context.Context, id generic.AccountID) (*deduction.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.GetAccount(ctx, id)
}

func (r *LedgerRepo) ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]*deduction.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return ledgerView{q: r.s.db}.ListAccounts(ctx, employeeID)
}

// WithTx runs fn inside one database transaction holding the write lock.
func (r *LedgerRepo) WithTx(ctx context.Context, fn func(deduction.Repository) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	dbTx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(ledgerView{q: dbTx}); err != nil {
		return err
	}
	return dbTx.Commit()
}

// =============================================================================
// LEDGER VIEW - statements against a querier, no locking
// =============================================================================

type ledgerView struct {
	q querier
}

func (v ledgerView) Append(ctx context.Context, tx generic.Transaction) error {
	return appendEntry(ctx, v.q, tx)
}

func (v ledgerView) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := appendEntry(ctx, v.q, tx); err != nil {
			return err
		}
	}
	return nil
}

func (v ledgerView) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY seq
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (v ledgerView) LoadRange(ctx context.Context, id generic.AccountID, from, to generic.Period) ([]generic.Transaction, error) {
	// Periods are stored as YYYY-MM so string order is period order.
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = ? AND period >= ? AND period <= ?
		ORDER BY seq
	`, string(id), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (v ledgerView) Exists(ctx context.Context, key string) (bool, error) {
	var count int
	err := v.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?", key).Scan(&count)
	return count > 0, err
}

func (v ledgerView) Find(ctx context.Context, key string) (generic.Transaction, bool, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE idempotency_key = ?
	`, key)
	if err != nil {
		return generic.Transaction{}, false, err
	}
	defer rows.Close()

	txs, err := scanEntries(rows)
	if err != nil || len(txs) == 0 {
		return generic.Transaction{}, false, err
	}
	return txs[0], true, nil
}

func (v ledgerView) SaveAccount(ctx context.Context, a *deduction.Account) error {
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO accounts (id, employee_id, kind, principal, annual_rate, installment_count,
			emi, penalty_rate, start_period, recovered, balance, status, schedule_json,
			reason, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			installment_count = excluded.installment_count,
			emi = excluded.emi,
			recovered = excluded.recovered,
			balance = excluded.balance,
			status = excluded.status,
			schedule_json = excluded.schedule_json,
			updated_at = excluded.updated_at
	`,
		string(a.ID), string(a.EmployeeID), string(a.Kind),
		a.Principal.String(), a.AnnualRate.String(), a.InstallmentCount,
		a.EMI.String(), a.PenaltyRate.String(), a.StartPeriod.String(),
		a.Recovered.String(), a.Balance.String(), string(a.Status), string(schedule),
		nullString(a.Reason), nullString(a.CreatedBy),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return err
}

func (v ledgerView) GetAccount(ctx context.Context, id generic.AccountID) (*deduction.Account, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ?
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %w", deduction.ErrAccountNotFound, &generic.NotFoundError{Kind: "account", ID: string(id)})
	}
	return accounts[0], nil
}

func (v ledgerView) ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]*deduction.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts"
	var args []any
	if employeeID != "" {
		query += " WHERE employee_id = ?"
		args = append(args, string(employeeID))
	}
	query += " ORDER BY id"

	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (v ledgerView) WithTx(_ context.Context, fn func(deduction.Repository) error) error {
	return fn(v)
}

// =============================================================================
// ROW MAPPING
// =============================================================================

const entryColumns = `id, account_id, employee_id, period, tx_type, amount, delta, balance_after,
	reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

const accountColumns = `id, employee_id, kind, principal, annual_rate, installment_count, emi,
	penalty_rate, start_period, recovered, balance, status, schedule_json,
	reason, created_by, created_at, updated_at`

func appendEntry(ctx context.Context, q querier, tx generic.Transaction) error {
	var metadata sql.NullString
	if len(tx.Metadata) > 0 {
		b, err := json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, employee_id, period, tx_type, amount, delta,
			balance_after, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(tx.ID), string(tx.AccountID), string(tx.EmployeeID), tx.Period.String(),
		string(tx.Type), tx.Amount.String(), tx.Delta.String(), tx.BalanceAfter.String(),
		nullString(tx.ReferenceID), nullString(tx.Reason), nullString(tx.IdempotencyKey),
		metadata, nullString(tx.CreatedBy), formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]generic.Transaction, error) {
	var txs []generic.Transaction
	for rows.Next() {
		var (
			tx                                 generic.Transaction
			id, accountID, employeeID, period  string
			txType, amount, delta, balanceAfter string
			referenceID, reason, key, metadata sql.NullString
			createdBy                          sql.NullString
			createdAt                          string
		)
		if err := rows.Scan(&id, &accountID, &employeeID, &period, &txType, &amount, &delta,
			&balanceAfter, &referenceID, &reason, &key, &metadata, &createdBy, &createdAt); err != nil {
			return nil, err
		}

		p, err := generic.ParsePeriod(period)
		if err != nil {
			return nil, err
		}
		tx.ID = generic.TransactionID(id)
		tx.AccountID = generic.AccountID(accountID)
		tx.EmployeeID = generic.EmployeeID(employeeID)
		tx.Period = p
		tx.Type = generic.TransactionType(txType)
		tx.Amount = parseDecimal(amount)
		tx.Delta = parseDecimal(delta)
		tx.BalanceAfter = parseDecimal(balanceAfter)
		tx.ReferenceID = referenceID.String
		tx.Reason = reason.String
		tx.IdempotencyKey = key.String
		tx.CreatedBy = createdBy.String
		tx.CreatedAt = parseTime(createdAt)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &tx.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
			}
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanAccounts(rows *sql.Rows) ([]*deduction.Account, error) {
	var out []*deduction.Account
	for rows.Next() {
		var (
			a                                       deduction.Account
			id, employeeID, kind                    string
			principal, annualRate, emi, penaltyRate string
			startPeriod, recovered, balance, status string
			schedule                                string
			reason, createdBy                       sql.NullString
			createdAt, updatedAt                    string
		)
		if err := rows.Scan(&id, &employeeID, &kind, &principal, &annualRate, &a.InstallmentCount,
			&emi, &penaltyRate, &startPeriod, &recovered, &balance, &status, &schedule,
			&reason, &createdBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		start, err := generic.ParsePeriod(startPeriod)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(schedule), &a.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule of %s: %w", id, err)
		}
		a.ID = generic.AccountID(id)
		a.EmployeeID = generic.EmployeeID(employeeID)
		a.Kind = deduction.Kind(kind)
		a.Principal = parseDecimal(principal)
		a.AnnualRate = parseDecimal(annualRate)
		a.EMI = parseDecimal(emi)
		a.PenaltyRate = parseDecimal(penaltyRate)
		a.StartPeriod = start
		a.Recovered = parseDecimal(recovered)
		a.Balance = parseDecimal(balance)
		a.Status = deduction.Status(status)
		a.Reason = reason.String
		a.CreatedBy = createdBy.String
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

var _ deduction.Repository = (*LedgerRepo)(nil)
var _ deduction.Repository = ledgerView{}

// errNoRows keeps single-row lookups uniform.
func errNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
