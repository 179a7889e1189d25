/*
Package audit keeps the append-only trail of everything that changes money.

PURPOSE:
  Every computed pay line, every pay-run state transition and every ledger
  mutation gets an entry. Entries are never updated or deleted; the Log
  interface has no way to do either.

SEE ALSO:
  - payrun/orchestrator.go: records lines and transitions
  - deduction/ledger.go: records ledger mutations
  - store/sqlite/audit.go: persistent Log
*/
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

type Action string

const (
	ActionLineComputed   Action = "line_computed"
	ActionTransition     Action = "run_transition"
	ActionLedgerMutation Action = "ledger_mutation"
)

type EntityKind string

const (
	EntityPayRun  EntityKind = "pay_run"
	EntityPayLine EntityKind = "pay_line"
	EntityAccount EntityKind = "account"
)

// Entry is one audit record. Payload holds the action-specific snapshot as
// JSON.
type Entry struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	EntityKind EntityKind      `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	RunID      string          `json:"run_id,omitempty"`
	Period     generic.Period  `json:"period,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	From       string          `json:"from,omitempty"`
	To         string          `json:"to,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Action   Action
	EntityID string
	RunID    string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f Filter) Matches(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if !f.Since.IsZero() && e.At.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.At.After(f.Until) {
		return false
	}
	return true
}

// Log is append-only storage for entries. Query returns entries oldest first.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// =============================================================================
// RECORDER
// =============================================================================

// LedgerChange describes one ledger mutation.
type LedgerChange struct {
	AccountID    generic.AccountID       `json:"account_id"`
	EmployeeID   generic.EmployeeID      `json:"employee_id"`
	Period       generic.Period          `json:"period"`
	Type         generic.TransactionType `json:"type"`
	Amount       decimal.Decimal         `json:"amount"`
	BalanceAfter decimal.Decimal         `json:"balance_after"`
	Reference    string                  `json:"reference,omitempty"`
	Actor        string                  `json:"actor,omitempty"`
}

// Recorder builds entries and writes them to a Log. A nil *Recorder records
// nothing, so components can run without an audit trail in tests.
type Recorder struct {
	log Log
	now func() time.Time
}

func NewRecorder(log Log) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// WithClock replaces the time source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// LineComputed stores the full JSON snapshot of a computed pay line.
func (r *Recorder) LineComputed(ctx context.Context, runID, lineID string, period generic.Period, line any) error {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal pay line %s: %w", lineID, err)
	}
	return r.append(ctx, Entry{
		Action:     ActionLineComputed,
		EntityKind: EntityPayLine,
		EntityID:   lineID,
		RunID:      runID,
		Period:     period,
		Payload:    payload,
	})
}

// Transition records a pay-run state change.
func (r *Recorder) Transition(ctx context.Context, runID string, period generic.Period, from, to, actor string) error {
	if r == nil {
		return nil
	}
	return r.append(ctx, Entry{
		Action:     ActionTransition,
		EntityKind: EntityPayRun,
		EntityID:   runID,
		RunID:      runID,
		Period:     period,
		Actor:      actor,
		From:       from,
		To:         to,
	})
}

// LedgerMutation records a balance change on a loan or advance account.
func (r *Recorder) LedgerMutation(ctx context.Context, c LedgerChange) error {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal ledger change: %w", err)
	}
	return r.append(ctx, Entry{
		Action:     ActionLedgerMutation,
		EntityKind: EntityAccount,
		EntityID:   string(c.AccountID),
		RunID:      c.Reference,
		Period:     c.Period,
		Actor:      c.Actor,
		To:         string(c.Type),
		Payload:    payload,
	})
}

func (r *Recorder) append(ctx context.Context, e Entry) error {
	e.ID = uuid.NewString()
	e.At = r.now().UTC()
	if err := r.log.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// MEMORY LOG
// =============================================================================

type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryLog) Query(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
