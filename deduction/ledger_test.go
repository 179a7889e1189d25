package deduction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var jan2025 = generic.NewPeriod(2025, time.January)

func dec(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func newLedger(opts ...deduction.Option) *deduction.Ledger {
	clock := func() time.Time { return time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC) }
	return deduction.NewLedger(deduction.NewMemoryRepository(), append([]deduction.Option{deduction.WithClock(clock)}, opts...)...)
}

func openLoan(t *testing.T, l *deduction.Ledger, principal, rate string, n int, penalty string) *deduction.Account {
	t.Helper()
	acct, err := l.CreateLoan(context.Background(), deduction.LoanRequest{
		EmployeeID:       "emp-1",
		Principal:        dec(principal),
		AnnualRate:       dec(rate),
		InstallmentCount: n,
		PenaltyRate:      dec(penalty),
		StartPeriod:      jan2025,
		Actor:            "hr-1",
	})
	require.NoError(t, err)
	return acct
}

func commitDue(t *testing.T, l *deduction.Ledger, id generic.AccountID, period generic.Period) deduction.Result {
	t.Helper()
	ctx := context.Background()
	due, err := l.DueForPeriod(ctx, id, period)
	require.NoError(t, err)
	res, err := l.Commit(ctx, id, period, due.Amount, deduction.Ref{ID: "run-" + period.String(), Actor: "payroll"})
	require.NoError(t, err)
	return res
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestCreateLoan_ZeroInterest_EvenInstallments(t *testing.T) {
	// GIVEN: 55,000 over 12 installments at 0%
	l := newLedger()

	// WHEN: opening the loan
	acct := openLoan(t, l, "55000", "0", 12, "0")

	// THEN: EMI is 4,583.33 and principal sums back exactly
	assertMoney(t, "4583.33", acct.EMI)
	require.Len(t, acct.Schedule, 12)

	principal := decimal.Zero
	amounts := decimal.Zero
	for i, inst := range acct.Schedule {
		if i < 11 {
			assertMoney(t, "4583.33", inst.Amount)
		}
		assert.True(t, inst.Interest.IsZero())
		principal = principal.Add(inst.Principal)
		amounts = amounts.Add(inst.Amount)
	}
	assertMoney(t, "55000.00", principal)
	assert.True(t, amounts.Sub(acct.EMI.Mul(decimal.NewFromInt(12))).Abs().LessThanOrEqual(dec("0.11")))
	assert.Equal(t, generic.NewPeriod(2025, time.December), acct.Schedule[11].Period)
	assertMoney(t, "55000.00", acct.Balance)
	assert.Equal(t, deduction.StatusActive, acct.Status)
}

func TestCreateLoan_WithInterest_Amortizes(t *testing.T) {
	// GIVEN: 100,000 at 12% a year over 12 months (1% a month)
	l := newLedger()

	acct := openLoan(t, l, "100000", "12", 12, "0")

	// THEN: level EMI with interest on the opening balance
	assertMoney(t, "8884.88", acct.EMI)
	assertMoney(t, "1000.00", acct.Schedule[0].Interest)
	assertMoney(t, "7884.88", acct.Schedule[0].Principal)
	assertMoney(t, "92115.12", acct.Schedule[0].Closing)

	principal := decimal.Zero
	for _, inst := range acct.Schedule {
		principal = principal.Add(inst.Principal)
	}
	assertMoney(t, "100000.00", principal)
	assert.True(t, acct.Schedule[11].Closing.IsZero())
}

func TestCreateAdvance_FixedRecovery(t *testing.T) {
	// GIVEN: a 10,000 advance recovered at 3,000 a month
	l := newLedger()

	acct, err := l.CreateAdvance(context.Background(), deduction.AdvanceRequest{
		EmployeeID:  "emp-1",
		Principal:   dec("10000"),
		Recovery:    dec("3000"),
		StartPeriod: jan2025,
	})
	require.NoError(t, err)

	// THEN: ceil(10,000 / 3,000) = 4 installments, the last one smaller
	assert.Equal(t, 4, acct.InstallmentCount)
	require.Len(t, acct.Schedule, 4)
	assertMoney(t, "3000.00", acct.Schedule[0].Amount)
	assertMoney(t, "1000.00", acct.Schedule[3].Amount)
	assert.Equal(t, deduction.KindAdvance, acct.Kind)
}

func TestCreate_InvalidRequests(t *testing.T) {
	l := newLedger()
	ctx := context.Background()

	_, err := l.CreateLoan(ctx, deduction.LoanRequest{EmployeeID: "emp-1", Principal: dec("0"), InstallmentCount: 3, StartPeriod: jan2025})
	assert.ErrorIs(t, err, deduction.ErrInvalidRequest)

	_, err = l.CreateLoan(ctx, deduction.LoanRequest{EmployeeID: "emp-1", Principal: dec("100"), InstallmentCount: 0, StartPeriod: jan2025})
	assert.ErrorIs(t, err, deduction.ErrInvalidRequest)

	_, err = l.CreateAdvance(ctx, deduction.AdvanceRequest{EmployeeID: "emp-1", Principal: dec("100"), InstallmentCount: 2, Recovery: dec("50"), StartPeriod: jan2025})
	assert.ErrorIs(t, err, deduction.ErrInvalidRequest)
	assert.True(t, deduction.IsClientError(err))
}

// =============================================================================
// DUES
// =============================================================================

func TestDueForPeriod_ReadOnly(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	first, err := l.DueForPeriod(ctx, acct.ID, jan2025)
	require.NoError(t, err)
	second, err := l.DueForPeriod(ctx, acct.ID, jan2025)
	require.NoError(t, err)

	assertMoney(t, "4583.33", first.Amount)
	assert.Equal(t, first, second)
	assert.False(t, first.Committed)
}

func TestDueForPeriod_BeforeStart_IsZero(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")

	due, err := l.DueForPeriod(context.Background(), acct.ID, jan2025.Prev())

	require.NoError(t, err)
	assert.True(t, due.Amount.IsZero())
}

func TestDueForPeriod_Overdue_AddsPenalty(t *testing.T) {
	// GIVEN: January was never recovered, penalty 2% per month overdue
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "2")

	// WHEN: asking for February
	due, err := l.DueForPeriod(context.Background(), acct.ID, jan2025.Next())
	require.NoError(t, err)

	// THEN: both installments plus 4,583.33 x 2% x 1 month
	assert.Equal(t, []int{1, 2}, due.Installments)
	assertMoney(t, "9166.66", due.Principal)
	assertMoney(t, "91.67", due.Penalty)
	assertMoney(t, "9258.33", due.Amount)
}

func TestDueForPeriod_UnknownAccount(t *testing.T) {
	l := newLedger()

	_, err := l.DueForPeriod(context.Background(), "loan-missing", jan2025)

	assert.ErrorIs(t, err, deduction.ErrAccountNotFound)
	assert.True(t, generic.IsNotFound(err))
}

func TestDuesForEmployee_SkipsZeroAndSorts(t *testing.T) {
	l := newLedger()
	ctx := context.Background()
	openLoan(t, l, "55000", "0", 12, "0")
	_, err := l.CreateAdvance(ctx, deduction.AdvanceRequest{
		EmployeeID: "emp-1", Principal: dec("2000"), InstallmentCount: 2, StartPeriod: jan2025.Next(),
	})
	require.NoError(t, err)

	dues, err := l.DuesForEmployee(ctx, "emp-1", jan2025)
	require.NoError(t, err)

	// THEN: the advance starts in February so only the loan is due
	require.Len(t, dues, 1)
	assert.Equal(t, deduction.KindLoan, dues[0].Kind)

	dues, err = l.DuesForEmployee(ctx, "emp-1", jan2025.Next())
	require.NoError(t, err)
	require.Len(t, dues, 2)
	assert.Less(t, string(dues[0].AccountID), string(dues[1].AccountID))
}

// =============================================================================
// COMMITS
// =============================================================================

func TestCommit_ReducesBalanceOnce(t *testing.T) {
	// GIVEN: an open loan
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	// WHEN: committing January twice
	first := commitDue(t, l, acct.ID, jan2025)
	second, err := l.Commit(ctx, acct.ID, jan2025, dec("4583.33"), deduction.Ref{ID: "run-retry"})
	require.NoError(t, err)

	// THEN: the second commit is a no-op returning the first result
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assertMoney(t, "4583.33", second.Amount)
	assertMoney(t, "50416.67", second.BalanceAfter)
	assert.Equal(t, first.EntryID, second.EntryID)

	got, err := l.Account(ctx, acct.ID)
	require.NoError(t, err)
	assertMoney(t, "50416.67", got.Balance)
	assertMoney(t, "4583.33", got.Recovered)

	entries, err := l.Entries(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // disbursement + one recovery
}

func TestCommit_CommittedPeriodDueIsCommittedAmount(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	commitDue(t, l, acct.ID, jan2025)

	due, err := l.DueForPeriod(context.Background(), acct.ID, jan2025)

	require.NoError(t, err)
	assert.True(t, due.Committed)
	assertMoney(t, "4583.33", due.Amount)
	assertMoney(t, "4583.33", due.Principal)
	assert.Equal(t, []int{1}, due.Installments)
}

func TestCommit_StaleAmountRejected(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")

	_, err := l.Commit(context.Background(), acct.ID, jan2025, dec("4000"), deduction.Ref{ID: "run-1"})

	var mismatch *deduction.DueMismatchError
	require.True(t, errors.As(err, &mismatch))
	assertMoney(t, "4583.33", mismatch.Expected)
	assert.ErrorIs(t, err, deduction.ErrDueMismatch)
}

func TestCommit_BalanceMonotonicUntilCompleted(t *testing.T) {
	// GIVEN: a loan recovered every month
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	previous := acct.Balance
	period := jan2025
	for i := 0; i < 12; i++ {
		res := commitDue(t, l, acct.ID, period)
		assert.True(t, res.BalanceAfter.LessThan(previous))
		assert.False(t, res.BalanceAfter.IsNegative())
		previous = res.BalanceAfter
		period = period.Next()
	}

	// THEN: the loan is completed and owes nothing afterwards
	got, err := l.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, deduction.StatusCompleted, got.Status)
	assert.True(t, got.Balance.IsZero())
	assertMoney(t, "55000.00", got.Recovered)

	due, err := l.DueForPeriod(ctx, acct.ID, period)
	require.NoError(t, err)
	assert.True(t, due.Amount.IsZero())

	outstanding, err := l.Outstanding(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero())
}

func TestCommit_OverdueCatchUpSettlesEarlierPeriod(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "2")
	ctx := context.Background()

	res := commitDue(t, l, acct.ID, jan2025.Next())
	assertMoney(t, "9258.33", res.Amount)

	// THEN: January has nothing left and principal dropped by two installments
	due, err := l.DueForPeriod(ctx, acct.ID, jan2025)
	require.NoError(t, err)
	assert.True(t, due.Amount.IsZero())
	assertMoney(t, "45833.34", res.BalanceAfter)
}

func TestCommitBatch_AllOrNothing(t *testing.T) {
	// GIVEN: two loans, one recovery with the wrong amount
	l := newLedger()
	a := openLoan(t, l, "55000", "0", 12, "0")
	b := openLoan(t, l, "12000", "0", 12, "0")
	ctx := context.Background()

	_, err := l.CommitBatch(ctx, jan2025, []deduction.Recovery{
		{AccountID: a.ID, Amount: dec("4583.33")},
		{AccountID: b.ID, Amount: dec("999")},
	}, deduction.Ref{ID: "run-1"})
	require.ErrorIs(t, err, deduction.ErrDueMismatch)

	// THEN: neither account moved
	for _, id := range []generic.AccountID{a.ID, b.ID} {
		due, err := l.DueForPeriod(ctx, id, jan2025)
		require.NoError(t, err)
		assert.False(t, due.Committed)
	}
	got, err := l.Account(ctx, a.ID)
	require.NoError(t, err)
	assertMoney(t, "55000.00", got.Balance)
}

func TestCommit_ConcurrentRetries_RecoverOnce(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]deduction.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Commit(ctx, acct.ID, jan2025, dec("4583.33"), deduction.Ref{ID: "run-1"})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		if !res.Duplicate {
			fresh++
		}
		assertMoney(t, "50416.67", res.BalanceAfter)
	}
	assert.Equal(t, 1, fresh)
	assert.Zero(t, deduction.LiveLocks(l), "released locks are dropped")
}

// =============================================================================
// PREPAYMENT AND WRITE-OFF
// =============================================================================

func TestPrepay_RegeneratesUncommittedInstallments(t *testing.T) {
	// GIVEN: 55,000 over 12, two months recovered
	l := newLedger()
	acct := openLoan(t, l, "55000", "0", 12, "0")
	commitDue(t, l, acct.ID, jan2025)
	commitDue(t, l, acct.ID, jan2025.Next())
	ctx := context.Background()

	// WHEN: prepaying 10,000
	got, err := l.Prepay(ctx, acct.ID, generic.NewPeriod(2025, time.March), dec("10000"), deduction.Ref{ID: "pp-1", Actor: "hr-1"})
	require.NoError(t, err)

	// THEN: committed installments are untouched, the ten left are re-levelled
	assertMoney(t, "35833.34", got.Balance)
	require.Len(t, got.Schedule, 12)
	assertMoney(t, "4583.33", got.Schedule[0].Amount)
	assertMoney(t, "4583.33", got.Schedule[1].Amount)
	assert.True(t, got.Schedule[0].Committed)
	assertMoney(t, "3583.33", got.EMI)
	assert.Equal(t, generic.NewPeriod(2025, time.March), got.Schedule[2].Period)
	assert.Equal(t, 3, got.Schedule[2].Number)

	pending := decimal.Zero
	for _, inst := range got.Pending() {
		pending = pending.Add(inst.Principal)
	}
	assertMoney(t, "35833.34", pending)

	outstanding, err := l.Outstanding(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.Equal(got.Balance))

	// AND: repeating the same reference is rejected
	_, err = l.Prepay(ctx, acct.ID, generic.NewPeriod(2025, time.March), dec("10000"), deduction.Ref{ID: "pp-1"})
	assert.True(t, deduction.IsDuplicate(err))
}

func TestPrepay_ExceedsBalance(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "5000", "0", 5, "0")

	_, err := l.Prepay(context.Background(), acct.ID, jan2025, dec("5000.01"), deduction.Ref{})

	assert.ErrorIs(t, err, deduction.ErrPrepaymentExceedsBalance)
}

func TestPrepay_FullBalanceForecloses(t *testing.T) {
	l := newLedger()
	acct := openLoan(t, l, "5000", "0", 5, "0")
	ctx := context.Background()

	got, err := l.Prepay(ctx, acct.ID, jan2025, dec("5000"), deduction.Ref{})
	require.NoError(t, err)

	assert.Equal(t, deduction.StatusForeclosed, got.Status)
	assert.Empty(t, got.Pending())
	due, err := l.DueForPeriod(ctx, acct.ID, jan2025)
	require.NoError(t, err)
	assert.True(t, due.Amount.IsZero())
}

func TestWriteOff_StopsDues(t *testing.T) {
	log := audit.NewMemoryLog()
	l := newLedger(deduction.WithRecorder(audit.NewRecorder(log)))
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	got, err := l.WriteOff(ctx, acct.ID, "employee left", deduction.Ref{ID: "wo-1", Actor: "hr-1"})
	require.NoError(t, err)

	assert.Equal(t, deduction.StatusWrittenOff, got.Status)
	due, err := l.DueForPeriod(ctx, acct.ID, jan2025)
	require.NoError(t, err)
	assert.True(t, due.Amount.IsZero())

	_, err = l.WriteOff(ctx, acct.ID, "again", deduction.Ref{})
	assert.ErrorIs(t, err, deduction.ErrAccountNotActive)

	// THEN: disbursement and write-off are both on the audit trail
	entries, err := log.Query(ctx, audit.Filter{Action: audit.ActionLedgerMutation, EntityID: string(acct.ID)})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(generic.TxWriteOff), entries[1].To)
	assert.Equal(t, "hr-1", entries[1].Actor)
}

type pinned map[generic.AccountID]string

func (p pinned) PinnedBy(_ context.Context, id generic.AccountID) (string, error) {
	if p == nil {
		return "", errors.New("runs unavailable")
	}
	return p[id], nil
}

func TestPrepayAndWriteOff_RefusedWhilePinned(t *testing.T) {
	ctx := context.Background()
	pins := pinned{}
	l := newLedger(deduction.WithPins(pins))
	acct := openLoan(t, l, "55000", "0", 12, "0")

	// GIVEN: a pay run holds the account's dues
	pins[acct.ID] = "run-7"

	// WHEN: prepaying or writing off
	_, prepayErr := l.Prepay(ctx, acct.ID, jan2025, dec("55000"), deduction.Ref{Actor: "hr-1"})
	_, writeOffErr := l.WriteOff(ctx, acct.ID, "exit", deduction.Ref{Actor: "hr-1"})

	// THEN: both are refused and name the run
	for _, err := range []error{prepayErr, writeOffErr} {
		assert.ErrorIs(t, err, deduction.ErrDuesPinned)
		var pe *deduction.PinnedError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "run-7", pe.RunID)
		assert.False(t, deduction.IsClientError(err))
	}
	stored, err := l.Account(ctx, acct.ID)
	require.NoError(t, err)
	assertMoney(t, "55000.00", stored.Balance)
	assert.Equal(t, deduction.StatusActive, stored.Status)

	// AND: once released the prepayment goes through
	delete(pins, acct.ID)
	stored, err = l.Prepay(ctx, acct.ID, jan2025, dec("5000"), deduction.Ref{Actor: "hr-1"})
	require.NoError(t, err)
	assertMoney(t, "50000.00", stored.Balance)
	assert.Zero(t, deduction.LiveLocks(l))
}

func TestPrepay_PinLookupFailure(t *testing.T) {
	l := newLedger(deduction.WithPins(pinned(nil)))
	acct := openLoan(t, l, "12000", "0", 12, "0")

	_, err := l.Prepay(context.Background(), acct.ID, jan2025, dec("1000"), deduction.Ref{})

	assert.ErrorContains(t, err, "runs unavailable")
	assert.NotErrorIs(t, err, deduction.ErrDuesPinned)
}

func TestHold_BlocksMutationsUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	acct := openLoan(t, l, "12000", "0", 12, "0")

	// GIVEN: the account is held
	release := l.Hold([]generic.AccountID{acct.ID, acct.ID})

	done := make(chan error, 1)
	go func() {
		_, err := l.Prepay(ctx, acct.ID, jan2025, dec("1000"), deduction.Ref{})
		done <- err
	}()

	// THEN: the prepayment waits for the release
	select {
	case <-done:
		t.Fatal("prepayment ran while the account was held")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	require.NoError(t, <-done)
	assert.Zero(t, deduction.LiveLocks(l))
}

func TestCommit_RecordsAudit(t *testing.T) {
	log := audit.NewMemoryLog()
	l := newLedger(deduction.WithRecorder(audit.NewRecorder(log)))
	acct := openLoan(t, l, "55000", "0", 12, "0")
	ctx := context.Background()

	commitDue(t, l, acct.ID, jan2025)
	commitDue(t, l, acct.ID, jan2025) // duplicate, not recorded again

	entries, err := log.Query(ctx, audit.Filter{Action: audit.ActionLedgerMutation, RunID: "run-2025-01"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(generic.TxRecovery), entries[0].To)
	assert.Contains(t, string(entries[0].Payload), `"balance_after":"50416.67"`)
}
