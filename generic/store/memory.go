// Package store provides an in-memory generic.Store for tests and the
// deduction package's memory repository.
package store

import (
	"context"
	"sync"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[generic.AccountID][]generic.Transaction
	idempotency  map[string]generic.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[generic.AccountID][]generic.Transaction),
		idempotency:  make(map[string]generic.Transaction),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendBatchLocked(txs)
}

func (m *Memory) appendBatchLocked(txs []generic.Transaction) error {
	// Check all idempotency keys first (atomic check), including within the batch
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if _, ok := m.idempotency[tx.IdempotencyKey]; ok || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) error {
	if tx.IdempotencyKey != "" {
		if _, ok := m.idempotency[tx.IdempotencyKey]; ok {
			return generic.ErrDuplicateIdempotencyKey
		}
		m.idempotency[tx.IdempotencyKey] = tx
	}
	m.transactions[tx.AccountID] = append(m.transactions[tx.AccountID], tx)
	return nil
}

func (m *Memory) Load(_ context.Context, accountID generic.AccountID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(accountID), nil
}

func (m *Memory) loadLocked(accountID generic.AccountID) []generic.Transaction {
	result := make([]generic.Transaction, len(m.transactions[accountID]))
	copy(result, m.transactions[accountID])
	return result
}

func (m *Memory) LoadRange(_ context.Context, accountID generic.AccountID, from, to generic.Period) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRangeLocked(accountID, from, to), nil
}

func (m *Memory) loadRangeLocked(accountID generic.AccountID, from, to generic.Period) []generic.Transaction {
	var result []generic.Transaction
	for _, tx := range m.transactions[accountID] {
		if from.BeforeOrEqual(tx.Period) && tx.Period.BeforeOrEqual(to) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.idempotency[idempotencyKey]
	return ok, nil
}

func (m *Memory) Find(_ context.Context, idempotencyKey string) (generic.Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.idempotency[idempotencyKey]
	return tx, ok, nil
}

// =============================================================================
// SNAPSHOTS - rollback support for composite stores
// =============================================================================

// Snapshot and Restore let composite stores (see deduction.MemoryRepository)
// roll back the ledger together with their own state. The caller serializes
// access around them.
func (m *Memory) Snapshot() MemorySnapshot { return m.snapshot() }
func (m *Memory) Restore(s MemorySnapshot) { m.restore(s) }

func (m *Memory) snapshot() MemorySnapshot {
	txsCopy := make(map[generic.AccountID][]generic.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[string]generic.Transaction, len(m.idempotency))
	for k, v := range m.idempotency {
		idempCopy[k] = v
	}
	return MemorySnapshot{transactions: txsCopy, idempotency: idempCopy}
}

func (m *Memory) restore(s MemorySnapshot) {
	m.transactions = s.transactions
	m.idempotency = s.idempotency
}

type MemorySnapshot struct {
	transactions map[generic.AccountID][]generic.Transaction
	idempotency  map[string]generic.Transaction
}
