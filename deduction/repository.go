package deduction

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
)

// Repository persists accounts and their entries. Entries go through the
// embedded append-only generic.Store.
type Repository interface {
	generic.Store

	SaveAccount(ctx context.Context, a *Account) error
	// GetAccount returns an error wrapping generic.ErrNotFound when absent.
	GetAccount(ctx context.Context, id generic.AccountID) (*Account, error)
	ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]*Account, error)

	// WithTx runs fn atomically. The Repository passed to fn must be used
	// for every read and write inside the transaction.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// =============================================================================
// MEMORY REPOSITORY - for tests and the demo server
// =============================================================================

type MemoryRepository struct {
	mu       sync.Mutex
	entries  *store.Memory
	accounts map[generic.AccountID]*Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries:  store.NewMemory(),
		accounts: make(map[generic.AccountID]*Account),
	}
}

func (m *MemoryRepository) view() *memoryView { return &memoryView{m: m} }

func (m *MemoryRepository) Append(ctx context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Append(ctx, tx)
}

func (m *MemoryRepository) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendBatch(ctx, txs)
}

func (m *MemoryRepository) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Load(ctx, id)
}

func (m *MemoryRepository) LoadRange(ctx context.Context, id generic.AccountID, from, to generic.Period) ([]generic.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().LoadRange(ctx, id, from, to)
}

func (m *MemoryRepository) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Exists(ctx, key)
}

func (m *MemoryRepository) Find(ctx context.Context, key string) (generic.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Find(ctx, key)
}

func (m *MemoryRepository) SaveAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveAccount(ctx, a)
}

func (m *MemoryRepository) GetAccount(ctx context.Context, id generic.AccountID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetAccount(ctx, id)
}

func (m *MemoryRepository) ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListAccounts(ctx, employeeID)
}

// WithTx snapshots both entries and accounts and restores them if fn fails.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries.Snapshot()
	accounts := make(map[generic.AccountID]*Account, len(m.accounts))
	for id, a := range m.accounts {
		accounts[id] = a.Clone()
	}

	if err := fn(m.view()); err != nil {
		m.entries.Restore(entries)
		m.accounts = accounts
		return err
	}
	return nil
}

// memoryView runs with m.mu already held.
type memoryView struct {
	m *MemoryRepository
}

func (v *memoryView) Append(ctx context.Context, tx generic.Transaction) error {
	return v.m.entries.Append(ctx, tx)
}

func (v *memoryView) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return v.m.entries.AppendBatch(ctx, txs)
}

func (v *memoryView) Load(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	return v.m.entries.Load(ctx, id)
}

func (v *memoryView) LoadRange(ctx context.Context, id generic.AccountID, from, to generic.Period) ([]generic.Transaction, error) {
	return v.m.entries.LoadRange(ctx, id, from, to)
}

func (v *memoryView) Exists(ctx context.Context, key string) (bool, error) {
	return v.m.entries.Exists(ctx, key)
}

func (v *memoryView) Find(ctx context.Context, key string) (generic.Transaction, bool, error) {
	return v.m.entries.Find(ctx, key)
}

func (v *memoryView) SaveAccount(_ context.Context, a *Account) error {
	v.m.accounts[a.ID] = a.Clone()
	return nil
}

func (v *memoryView) GetAccount(_ context.Context, id generic.AccountID) (*Account, error) {
	a, ok := v.m.accounts[id]
	if !ok {
		return nil, notFound(id)
	}
	return a.Clone(), nil
}

func (v *memoryView) ListAccounts(_ context.Context, employeeID generic.EmployeeID) ([]*Account, error) {
	var out []*Account
	for _, a := range v.m.accounts {
		if employeeID == "" || a.EmployeeID == employeeID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memoryView) WithTx(ctx context.Context, fn func(Repository) error) error {
	return fn(v)
}
