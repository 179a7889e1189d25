/*
ledger.go - Loan and advance ledger with once-per-period recovery

PURPOSE:
  Wraps the generic append-only ledger with account rules: schedules,
  dues, and the guarantee that a period is recovered at most once per
  account no matter how often a payment is retried.

DUES:
  DueForPeriod is read-only. It returns the installment scheduled for the
  period, plus every uncommitted installment from earlier periods with an
  overdue penalty, or the committed amount if the period is already done.

COMMITS:
  Each recovery entry carries the idempotency key recovery:<account>:<period>.
  A second commit for the same key returns the first one's amount and
  balance with Duplicate set. A commit whose amount differs from the fresh
  due is rejected with DueMismatchError: the caller's numbers are stale.
  Commits to one account are serialized; batches take their account locks
  in id order and run in one repository transaction.

PINNED DUES:
  Once a pay run is in review its recorded dues must still be what the
  ledger computes when the run is paid. With a PinChecker configured,
  Prepay and WriteOff refuse accounts whose dues a run holds, and Hold lets
  the run take the same account locks while it checks and pins them.

SEE ALSO:
  - schedule.go: amortization
  - generic/ledger.go: the entry log
  - payrun/orchestrator.go: the only caller that commits recoveries
*/
package deduction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/generic"
)

// Ledger manages loan and advance accounts.
type Ledger struct {
	repo      Repository
	precision generic.Precision
	recorder  *audit.Recorder
	now       func() time.Time
	pins      PinChecker
	locks     accountLocks
}

// PinChecker reports the pay run, if any, that holds an account's dues.
// An empty run id means the account is free.
type PinChecker interface {
	PinnedBy(ctx context.Context, id generic.AccountID) (string, error)
}

type Option func(*Ledger)

func WithPrecision(p generic.Precision) Option {
	return func(l *Ledger) { l.precision = p }
}

// WithRecorder writes every mutation to the audit trail.
func WithRecorder(r *audit.Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPins makes Prepay and WriteOff refuse accounts held by a pay run.
func WithPins(p PinChecker) Option {
	return func(l *Ledger) { l.pins = p }
}

func NewLedger(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:      repo,
		precision: generic.DefaultPrecision,
		now:       time.Now,
		locks:     accountLocks{held: make(map[generic.AccountID]*lockEntry)},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecoveryKey is the idempotency key of a period's recovery entry.
func RecoveryKey(id generic.AccountID, period generic.Period) string {
	return "recovery:" + string(id) + ":" + period.String()
}

// =============================================================================
// OPENING ACCOUNTS
// =============================================================================

// CreateLoan opens a loan with a level-EMI schedule starting at StartPeriod.
func (l *Ledger) CreateLoan(ctx context.Context, req LoanRequest) (*Account, error) {
	switch {
	case req.EmployeeID == "":
		return nil, fmt.Errorf("%w: employee is required", ErrInvalidRequest)
	case !req.Principal.IsPositive():
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidRequest)
	case req.AnnualRate.IsNegative():
		return nil, fmt.Errorf("%w: negative interest rate", ErrInvalidRequest)
	case req.InstallmentCount <= 0:
		return nil, fmt.Errorf("%w: installment count must be positive", ErrInvalidRequest)
	case req.PenaltyRate.IsNegative():
		return nil, fmt.Errorf("%w: negative penalty rate", ErrInvalidRequest)
	case req.StartPeriod.IsZero():
		return nil, fmt.Errorf("%w: start period is required", ErrInvalidRequest)
	}

	principal := l.precision.Round(req.Principal)
	emi, schedule := BuildSchedule(l.precision, principal, req.AnnualRate,
		Periods(req.StartPeriod, req.InstallmentCount), decimal.Zero, 1)

	return l.open(ctx, &Account{
		ID:               newAccountID(KindLoan),
		EmployeeID:       req.EmployeeID,
		Kind:             KindLoan,
		Principal:        principal,
		AnnualRate:       req.AnnualRate,
		InstallmentCount: req.InstallmentCount,
		EMI:              emi,
		PenaltyRate:      req.PenaltyRate,
		StartPeriod:      req.StartPeriod,
		Schedule:         schedule,
		Reason:           req.Reason,
		CreatedBy:        req.Actor,
	})
}

// CreateAdvance opens an interest-free advance, either over a number of
// periods or at a fixed recovery per period.
func (l *Ledger) CreateAdvance(ctx context.Context, req AdvanceRequest) (*Account, error) {
	switch {
	case req.EmployeeID == "":
		return nil, fmt.Errorf("%w: employee is required", ErrInvalidRequest)
	case !req.Principal.IsPositive():
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidRequest)
	case req.InstallmentCount > 0 && req.Recovery.IsPositive():
		return nil, fmt.Errorf("%w: give an installment count or a recovery amount, not both", ErrInvalidRequest)
	case req.InstallmentCount <= 0 && !req.Recovery.IsPositive():
		return nil, fmt.Errorf("%w: installment count or recovery amount is required", ErrInvalidRequest)
	case req.PenaltyRate.IsNegative():
		return nil, fmt.Errorf("%w: negative penalty rate", ErrInvalidRequest)
	case req.StartPeriod.IsZero():
		return nil, fmt.Errorf("%w: start period is required", ErrInvalidRequest)
	}

	principal := l.precision.Round(req.Principal)
	count := req.InstallmentCount
	fixed := decimal.Zero
	if req.Recovery.IsPositive() {
		fixed = l.precision.Round(req.Recovery)
		count = installmentsFor(principal, fixed)
	}
	emi, schedule := BuildSchedule(l.precision, principal, decimal.Zero,
		Periods(req.StartPeriod, count), fixed, 1)

	return l.open(ctx, &Account{
		ID:               newAccountID(KindAdvance),
		EmployeeID:       req.EmployeeID,
		Kind:             KindAdvance,
		Principal:        principal,
		AnnualRate:       decimal.Zero,
		InstallmentCount: count,
		EMI:              emi,
		PenaltyRate:      req.PenaltyRate,
		StartPeriod:      req.StartPeriod,
		Schedule:         schedule,
		Reason:           req.Reason,
		CreatedBy:        req.Actor,
	})
}

func (l *Ledger) open(ctx context.Context, acct *Account) (*Account, error) {
	now := l.now().UTC()
	acct.Balance = acct.Principal
	acct.Recovered = decimal.Zero
	acct.Status = StatusActive
	acct.CreatedAt = now
	acct.UpdatedAt = now

	entry := generic.Transaction{
		ID:             newEntryID(),
		AccountID:      acct.ID,
		EmployeeID:     acct.EmployeeID,
		Period:         acct.StartPeriod,
		Type:           generic.TxDisbursement,
		Amount:         acct.Principal,
		Delta:          acct.Principal,
		BalanceAfter:   acct.Principal,
		Reason:         acct.Reason,
		IdempotencyKey: "disbursement:" + string(acct.ID),
		Metadata:       map[string]string{"kind": string(acct.Kind)},
		CreatedBy:      acct.CreatedBy,
		CreatedAt:      now,
	}

	err := l.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		return generic.NewLedger(tx).Append(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s account: %w", acct.Kind, err)
	}

	if err := l.record(ctx, entry, acct.CreatedBy); err != nil {
		return acct, err
	}
	return acct, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Account(ctx context.Context, id generic.AccountID) (*Account, error) {
	return l.repo.GetAccount(ctx, id)
}

// Accounts lists an employee's accounts by id. An empty employee id lists all.
func (l *Ledger) Accounts(ctx context.Context, employeeID generic.EmployeeID) ([]*Account, error) {
	return l.repo.ListAccounts(ctx, employeeID)
}

// Entries returns the account's append-only history, oldest first.
func (l *Ledger) Entries(ctx context.Context, id generic.AccountID) ([]generic.Transaction, error) {
	if _, err := l.repo.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return generic.NewLedger(l.repo).Transactions(ctx, id)
}

// Outstanding replays the entry log. It always equals the account's Balance;
// a difference means the account record and its history diverged.
func (l *Ledger) Outstanding(ctx context.Context, id generic.AccountID) (decimal.Decimal, error) {
	return generic.NewLedger(l.repo).Outstanding(ctx, id)
}

// DueForPeriod reports what the account owes in period without changing
// anything.
func (l *Ledger) DueForPeriod(ctx context.Context, id generic.AccountID, period generic.Period) (Due, error) {
	acct, err := l.repo.GetAccount(ctx, id)
	if err != nil {
		return Due{}, err
	}
	return l.dueFrom(ctx, l.repo, acct, period)
}

// DuesForEmployee returns the non-zero dues of all the employee's accounts,
// ordered by account id.
func (l *Ledger) DuesForEmployee(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]Due, error) {
	accounts, err := l.repo.ListAccounts(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	var dues []Due
	for _, acct := range accounts {
		due, err := l.dueFrom(ctx, l.repo, acct, period)
		if err != nil {
			return nil, err
		}
		if !due.Amount.IsZero() {
			dues = append(dues, due)
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].AccountID < dues[j].AccountID })
	return dues, nil
}

func (l *Ledger) dueFrom(ctx context.Context, s generic.Store, acct *Account, period generic.Period) (Due, error) {
	entry, found, err := s.Find(ctx, RecoveryKey(acct.ID, period))
	if err != nil {
		return Due{}, err
	}
	if found {
		return Due{
			AccountID:    acct.ID,
			EmployeeID:   acct.EmployeeID,
			Kind:         acct.Kind,
			Period:       period,
			Amount:       entry.Amount,
			Principal:    metaDecimal(entry.Metadata, "principal"),
			Interest:     metaDecimal(entry.Metadata, "interest"),
			Penalty:      metaDecimal(entry.Metadata, "penalty"),
			Installments: metaInts(entry.Metadata, "installments"),
			Committed:    true,
		}, nil
	}
	return l.computeDue(acct, period), nil
}

// computeDue sums every uncommitted installment scheduled up to period.
// Installments from earlier periods carry a penalty of
// amount x penalty rate / 100 x months overdue.
func (l *Ledger) computeDue(acct *Account, period generic.Period) Due {
	due := Due{
		AccountID:  acct.ID,
		EmployeeID: acct.EmployeeID,
		Kind:       acct.Kind,
		Period:     period,
		Amount:     decimal.Zero,
		Principal:  decimal.Zero,
		Interest:   decimal.Zero,
		Penalty:    decimal.Zero,
	}
	if !acct.IsActive() {
		return due
	}
	for _, inst := range acct.Schedule {
		if inst.Committed || inst.Period.After(period) {
			continue
		}
		due.Principal = due.Principal.Add(inst.Principal)
		due.Interest = due.Interest.Add(inst.Interest)
		due.Penalty = due.Penalty.Add(l.penalty(acct, inst, period))
		due.Installments = append(due.Installments, inst.Number)
	}
	due.Amount = generic.Sum(due.Principal, due.Interest, due.Penalty)
	return due
}

func (l *Ledger) penalty(acct *Account, inst Installment, period generic.Period) decimal.Decimal {
	months := period.MonthsSince(inst.Period)
	if months <= 0 || !acct.PenaltyRate.IsPositive() {
		return decimal.Zero
	}
	return l.precision.Round(inst.Amount.Mul(acct.PenaltyRate).Div(generic.Hundred).Mul(decimal.NewFromInt(int64(months))))
}

// =============================================================================
// COMMITS
// =============================================================================

// Commit recovers amount from the account for period.
func (l *Ledger) Commit(ctx context.Context, id generic.AccountID, period generic.Period, amount decimal.Decimal, ref Ref) (Result, error) {
	results, err := l.CommitBatch(ctx, period, []Recovery{{AccountID: id, Amount: amount}}, ref)
	if len(results) == 0 {
		return Result{}, err
	}
	return results[0], err
}

// CommitBatch commits all recoveries in one transaction. Either every
// non-duplicate recovery is applied or none is. Results come back in
// account id order.
func (l *Ledger) CommitBatch(ctx context.Context, period generic.Period, recoveries []Recovery, ref Ref) ([]Result, error) {
	recs := append([]Recovery(nil), recoveries...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].AccountID < recs[j].AccountID })

	ids := make([]generic.AccountID, 0, len(recs))
	for _, rec := range recs {
		if rec.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: negative recovery for %s", generic.ErrInvalidAmount, rec.AccountID)
		}
		ids = append(ids, rec.AccountID)
	}

	unlock := l.locks.lock(ids)
	defer unlock()

	var (
		results []Result
		entries []generic.Transaction
	)
	err := l.repo.WithTx(ctx, func(tx Repository) error {
		results, entries = results[:0], entries[:0]
		for _, rec := range recs {
			res, entry, err := l.commitOne(ctx, tx, rec, period, ref)
			if err != nil {
				return err
			}
			results = append(results, res)
			if entry != nil {
				entries = append(entries, *entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if err := l.record(ctx, entry, ref.Actor); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (l *Ledger) commitOne(ctx context.Context, tx Repository, rec Recovery, period generic.Period, ref Ref) (Result, *generic.Transaction, error) {
	key := RecoveryKey(rec.AccountID, period)

	acct, err := tx.GetAccount(ctx, rec.AccountID)
	if err != nil {
		return Result{}, nil, err
	}

	existing, found, err := tx.Find(ctx, key)
	if err != nil {
		return Result{}, nil, err
	}
	if found {
		return Result{
			AccountID:    acct.ID,
			Period:       period,
			Amount:       existing.Amount,
			BalanceAfter: existing.BalanceAfter,
			Status:       acct.Status,
			EntryID:      existing.ID,
			Duplicate:    true,
		}, nil, nil
	}

	due := l.computeDue(acct, period)
	if !rec.Amount.Equal(due.Amount) {
		return Result{}, nil, &DueMismatchError{AccountID: acct.ID, Period: period, Expected: due.Amount, Got: rec.Amount}
	}
	if due.Amount.IsZero() {
		return Result{AccountID: acct.ID, Period: period, Amount: decimal.Zero, BalanceAfter: acct.Balance, Status: acct.Status}, nil, nil
	}

	now := l.now().UTC()
	settled := make(map[int]bool, len(due.Installments))
	for _, n := range due.Installments {
		settled[n] = true
	}
	for i := range acct.Schedule {
		inst := &acct.Schedule[i]
		if !settled[inst.Number] {
			continue
		}
		inst.Penalty = l.penalty(acct, *inst, period)
		inst.Committed = true
		inst.CommittedIn = period
	}

	acct.Balance = generic.NonNegative(acct.Balance.Sub(due.Principal))
	acct.Recovered = acct.Recovered.Add(due.Amount)
	if acct.Balance.IsZero() {
		acct.Status = StatusCompleted
	}
	acct.UpdatedAt = now

	entry := generic.Transaction{
		ID:             newEntryID(),
		AccountID:      acct.ID,
		EmployeeID:     acct.EmployeeID,
		Period:         period,
		Type:           generic.TxRecovery,
		Amount:         due.Amount,
		Delta:          due.Principal.Neg(),
		BalanceAfter:   acct.Balance,
		ReferenceID:    ref.ID,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"principal":    due.Principal.String(),
			"interest":     due.Interest.String(),
			"penalty":      due.Penalty.String(),
			"installments": joinInts(due.Installments),
		},
		CreatedBy: ref.Actor,
		CreatedAt: now,
	}
	if err := generic.NewLedger(tx).Append(ctx, entry); err != nil {
		return Result{}, nil, err
	}
	if err := tx.SaveAccount(ctx, acct); err != nil {
		return Result{}, nil, err
	}

	return Result{
		AccountID:    acct.ID,
		Period:       period,
		Amount:       due.Amount,
		BalanceAfter: acct.Balance,
		Status:       acct.Status,
		EntryID:      entry.ID,
	}, &entry, nil
}

// =============================================================================
// PREPAYMENT AND WRITE-OFF
// =============================================================================

// Prepay reduces the outstanding principal outside payroll. The uncommitted
// installments keep their count and periods and get a new, smaller EMI;
// committed installments are untouched. Paying the whole balance forecloses
// the account.
//
// A non-empty ref.ID makes the call idempotent: repeating it fails with
// generic.ErrDuplicateIdempotencyKey.
func (l *Ledger) Prepay(ctx context.Context, id generic.AccountID, period generic.Period, amount decimal.Decimal, ref Ref) (*Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: prepayment must be positive", generic.ErrInvalidAmount)
	}
	amount = l.precision.Round(amount)

	unlock := l.locks.lock([]generic.AccountID{id})
	defer unlock()
	if err := l.checkPinned(ctx, id); err != nil {
		return nil, err
	}

	var (
		acct  *Account
		entry generic.Transaction
	)
	err := l.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		acct, err = tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return fmt.Errorf("%w: %s is %s", ErrAccountNotActive, id, acct.Status)
		}
		if amount.GreaterThan(acct.Balance) {
			return fmt.Errorf("%w: %s > %s", ErrPrepaymentExceedsBalance, amount, acct.Balance)
		}

		now := l.now().UTC()
		acct.Balance = acct.Balance.Sub(amount)
		acct.Recovered = acct.Recovered.Add(amount)
		acct.UpdatedAt = now
		l.reschedule(acct)

		entry = generic.Transaction{
			ID:           newEntryID(),
			AccountID:    acct.ID,
			EmployeeID:   acct.EmployeeID,
			Period:       period,
			Type:         generic.TxPrepayment,
			Amount:       amount,
			Delta:        amount.Neg(),
			BalanceAfter: acct.Balance,
			ReferenceID:  ref.ID,
			CreatedBy:    ref.Actor,
			CreatedAt:    now,
		}
		if ref.ID != "" {
			entry.IdempotencyKey = "prepayment:" + string(acct.ID) + ":" + ref.ID
		}
		if err := generic.NewLedger(tx).Append(ctx, entry); err != nil {
			return err
		}
		return tx.SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	if err := l.record(ctx, entry, ref.Actor); err != nil {
		return acct, err
	}
	return acct, nil
}

// reschedule rebuilds the uncommitted tail after the balance changed.
func (l *Ledger) reschedule(acct *Account) {
	var kept []Installment
	var periods []generic.Period
	first := 0
	for _, inst := range acct.Schedule {
		if inst.Committed {
			kept = append(kept, inst)
			continue
		}
		if first == 0 {
			first = inst.Number
		}
		periods = append(periods, inst.Period)
	}

	if acct.Balance.IsZero() {
		acct.Schedule = kept
		acct.Status = StatusForeclosed
		return
	}

	emi, tail := BuildSchedule(l.precision, acct.Balance, acct.AnnualRate, periods, decimal.Zero, first)
	acct.EMI = emi
	acct.Schedule = append(kept, tail...)
}

// WriteOff abandons the outstanding balance. The account stops producing
// dues.
func (l *Ledger) WriteOff(ctx context.Context, id generic.AccountID, reason string, ref Ref) (*Account, error) {
	unlock := l.locks.lock([]generic.AccountID{id})
	defer unlock()
	if err := l.checkPinned(ctx, id); err != nil {
		return nil, err
	}

	var (
		acct  *Account
		entry generic.Transaction
	)
	err := l.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		acct, err = tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return fmt.Errorf("%w: %s is %s", ErrAccountNotActive, id, acct.Status)
		}

		now := l.now().UTC()
		abandoned := acct.Balance
		acct.Balance = decimal.Zero
		acct.Status = StatusWrittenOff
		acct.UpdatedAt = now

		entry = generic.Transaction{
			ID:             newEntryID(),
			AccountID:      acct.ID,
			EmployeeID:     acct.EmployeeID,
			Period:         generic.PeriodOf(now),
			Type:           generic.TxWriteOff,
			Amount:         abandoned,
			Delta:          abandoned.Neg(),
			BalanceAfter:   decimal.Zero,
			ReferenceID:    ref.ID,
			Reason:         reason,
			IdempotencyKey: "write_off:" + string(acct.ID),
			CreatedBy:      ref.Actor,
			CreatedAt:      now,
		}
		if err := generic.NewLedger(tx).Append(ctx, entry); err != nil {
			return err
		}
		return tx.SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	if err := l.record(ctx, entry, ref.Actor); err != nil {
		return acct, err
	}
	return acct, nil
}

// Hold takes the locks Prepay, WriteOff and commits take on ids and returns
// the release function. The caller must not mutate those accounts through
// the ledger until it releases them.
func (l *Ledger) Hold(ids []generic.AccountID) func() {
	return l.locks.lock(ids)
}

func (l *Ledger) checkPinned(ctx context.Context, id generic.AccountID) error {
	if l.pins == nil {
		return nil
	}
	runID, err := l.pins.PinnedBy(ctx, id)
	if err != nil {
		return fmt.Errorf("check pay runs holding %s: %w", id, err)
	}
	if runID != "" {
		return &PinnedError{AccountID: id, RunID: runID}
	}
	return nil
}

func (l *Ledger) record(ctx context.Context, entry generic.Transaction, actor string) error {
	err := l.recorder.LedgerMutation(ctx, audit.LedgerChange{
		AccountID:    entry.AccountID,
		EmployeeID:   entry.EmployeeID,
		Period:       entry.Period,
		Type:         entry.Type,
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		Reference:    entry.ReferenceID,
		Actor:        actor,
	})
	if err != nil {
		return fmt.Errorf("audit %s on %s: %w", entry.Type, entry.AccountID, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// accountLocks serializes mutations per account. Locks are always taken in
// id order so two batches touching the same accounts cannot deadlock. An
// entry lives only while someone holds or waits for it.
type accountLocks struct {
	mu   sync.Mutex
	held map[generic.AccountID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (a *accountLocks) lock(ids []generic.AccountID) func() {
	uniq := make([]generic.AccountID, 0, len(ids))
	seen := make(map[generic.AccountID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	a.mu.Lock()
	entries := make([]*lockEntry, len(uniq))
	for i, id := range uniq {
		e, ok := a.held[id]
		if !ok {
			e = &lockEntry{}
			a.held[id] = e
		}
		e.refs++
		entries[i] = e
	}
	a.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}
	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		a.mu.Lock()
		for i, id := range uniq {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(a.held, id)
			}
		}
		a.mu.Unlock()
	}
}

// size reports how many accounts have a live lock entry.
func (a *accountLocks) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held)
}

func newAccountID(kind Kind) generic.AccountID {
	return generic.AccountID(string(kind) + "-" + uuid.NewString())
}

func newEntryID() generic.TransactionID {
	return generic.TransactionID(uuid.NewString())
}

func metaDecimal(meta map[string]string, key string) decimal.Decimal {
	d, err := decimal.NewFromString(meta[key])
	if err != nil {
		return decimal.Zero
	}
	return d
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func metaInts(meta map[string]string, key string) []int {
	raw := meta[key]
	if raw == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// IsDuplicate reports a repeated idempotent mutation.
func IsDuplicate(err error) bool {
	return errors.Is(err, generic.ErrDuplicateIdempotencyKey)
}
