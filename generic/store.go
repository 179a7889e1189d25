/*
store.go - Persistence interface for ledger transactions

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  handles persistence while maintaining append-only semantics. The SQLite
  store and the in-memory store both implement it.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every recovery carries the key "recovery:<account>:<period>". If the key
  already exists the write is rejected, and Find returns the existing entry
  so the caller can answer with the amount that was already committed.

ATOMIC BATCHES:
  Paying a run commits the dues of many accounts. The deduction repository's
  WithTx wraps a Store so the whole batch is all-or-nothing.

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - store/memory.go: In-memory implementation
  - store/sqlite: SQLite implementation
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if
	// the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions of an account in insertion order.
	Load(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// LoadRange returns the account's transactions with from <= Period <= to.
	LoadRange(ctx context.Context, accountID AccountID, from, to Period) ([]Transaction, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// Find returns the transaction stored under an idempotency key.
	Find(ctx context.Context, idempotencyKey string) (Transaction, bool, error)
}
