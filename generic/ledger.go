/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the immutable history of every balance change on a loan or
  advance account: disbursement, recoveries, prepayments, write-offs. The
  account record holds the current projection; the ledger explains it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A mistaken recovery is not edited. A later pay-run revision or a
  prepayment entry records the correction, and both entries remain.

SEE ALSO:
  - store.go: Low-level persistence interface
  - deduction/ledger.go: Loan/advance ledger with once-per-period recovery
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for account balance changes.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, transactions cannot be modified.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for an account, in order.
	Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// TransactionsInRange returns transactions with from <= Period <= to.
	TransactionsInRange(ctx context.Context, accountID AccountID, from, to Period) ([]Transaction, error)

	// Lookup returns the transaction recorded under an idempotency key.
	Lookup(ctx context.Context, idempotencyKey string) (Transaction, bool, error)

	// Outstanding replays the account's deltas.
	Outstanding(ctx context.Context, accountID AccountID) (decimal.Decimal, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	// Check all idempotency keys first
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error) {
	return l.Store.Load(ctx, accountID)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, accountID AccountID, from, to Period) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, accountID, from, to)
}

func (l *DefaultLedger) Lookup(ctx context.Context, idempotencyKey string) (Transaction, bool, error) {
	return l.Store.Find(ctx, idempotencyKey)
}

func (l *DefaultLedger) Outstanding(ctx context.Context, accountID AccountID) (decimal.Decimal, error) {
	txs, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, tx := range txs {
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}
