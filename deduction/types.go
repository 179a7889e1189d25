/*
Package deduction owns loan and advance accounts and their recovery through
payroll.

PURPOSE:
  An account is opened with a full installment schedule. Each pay period the
  ledger answers "how much is due" without side effects; the pay run commits
  that amount once it is paid. Commits are idempotent per (account, period),
  so a retried payment never recovers twice.

KEY TYPES:
  - Account:     principal, rate, schedule and running balance
  - Installment: one scheduled recovery
  - Due:         what an account owes in a period, with its breakdown
  - Result:      the outcome of a commit

CRITICAL INVARIANTS:
  1. Balance (outstanding principal) never goes negative.
  2. At most one committed recovery per (account, period).
  3. Committed installments never change; prepayment only reshapes the
     uncommitted tail of the schedule.

SEE ALSO:
  - schedule.go: EMI and amortization
  - ledger.go: dues, commits, prepayment, write-off
  - generic/ledger.go: the append-only entry log underneath
*/
package deduction

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

type Kind string

const (
	KindLoan    Kind = "loan"
	KindAdvance Kind = "advance"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusForeclosed Status = "foreclosed"
	StatusWrittenOff Status = "written_off"
)

// Installment is one row of the amortization schedule.
type Installment struct {
	Number    int             `json:"number"`
	Period    generic.Period  `json:"period"`
	Opening   decimal.Decimal `json:"opening"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Amount    decimal.Decimal `json:"amount"`
	Closing   decimal.Decimal `json:"closing"`

	// Set once the installment has been recovered. CommittedIn differs from
	// Period when an overdue installment is caught up later.
	Committed   bool            `json:"committed"`
	CommittedIn generic.Period  `json:"committed_in,omitempty"`
	Penalty     decimal.Decimal `json:"penalty"`
}

// Account is a loan or salary advance recovered through payroll.
type Account struct {
	ID         generic.AccountID  `json:"id"`
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Kind       Kind               `json:"kind"`

	Principal        decimal.Decimal `json:"principal"`
	AnnualRate       decimal.Decimal `json:"annual_rate"`
	InstallmentCount int             `json:"installment_count"`
	EMI              decimal.Decimal `json:"emi"`
	PenaltyRate      decimal.Decimal `json:"penalty_rate"`
	StartPeriod      generic.Period  `json:"start_period"`

	Recovered decimal.Decimal `json:"recovered"`
	Balance   decimal.Decimal `json:"balance"`
	Status    Status          `json:"status"`

	Schedule []Installment `json:"schedule"`

	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Clone deep-copies the schedule so callers can mutate freely.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Schedule = append([]Installment(nil), a.Schedule...)
	return &cp
}

// Pending returns the uncommitted installments in schedule order.
func (a *Account) Pending() []Installment {
	var out []Installment
	for _, inst := range a.Schedule {
		if !inst.Committed {
			out = append(out, inst)
		}
	}
	return out
}

// LoanRequest opens an interest-bearing loan.
type LoanRequest struct {
	EmployeeID       generic.EmployeeID
	Principal        decimal.Decimal
	AnnualRate       decimal.Decimal
	InstallmentCount int
	PenaltyRate      decimal.Decimal
	StartPeriod      generic.Period
	Reason           string
	Actor            string
}

// AdvanceRequest opens an interest-free salary advance. Give either an
// installment count or a fixed per-period recovery amount.
type AdvanceRequest struct {
	EmployeeID       generic.EmployeeID
	Principal        decimal.Decimal
	InstallmentCount int
	Recovery         decimal.Decimal
	PenaltyRate      decimal.Decimal
	StartPeriod      generic.Period
	Reason           string
	Actor            string
}

// Due is what an account owes in a period. It is read-only: asking twice
// gives the same answer until something is committed.
type Due struct {
	AccountID  generic.AccountID  `json:"account_id"`
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Kind       Kind               `json:"kind"`
	Period     generic.Period     `json:"period"`

	Amount    decimal.Decimal `json:"amount"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Penalty   decimal.Decimal `json:"penalty"`

	// Installments lists the schedule numbers this due settles.
	Installments []int `json:"installments,omitempty"`

	// Committed is true when the period was already recovered; Amount is
	// then the committed amount.
	Committed bool `json:"committed"`
}

// LedgerDue converts to the calculator's input type.
func (d Due) LedgerDue() payroll.LedgerDue {
	kind := payroll.DueLoan
	if d.Kind == KindAdvance {
		kind = payroll.DueAdvance
	}
	return payroll.LedgerDue{
		AccountID: d.AccountID,
		Kind:      kind,
		Amount:    d.Amount,
		Principal: d.Principal,
		Interest:  d.Interest,
		Penalty:   d.Penalty,
	}
}

// Recovery is one amount to commit in a batch.
type Recovery struct {
	AccountID generic.AccountID
	Amount    decimal.Decimal
}

// Ref identifies who and what caused a mutation, usually a pay run.
type Ref struct {
	ID    string
	Actor string
}

// Result is the outcome of committing one recovery.
type Result struct {
	AccountID    generic.AccountID     `json:"account_id"`
	Period       generic.Period        `json:"period"`
	Amount       decimal.Decimal       `json:"amount"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	Status       Status                `json:"status"`
	EntryID      generic.TransactionID `json:"entry_id,omitempty"`

	// Duplicate means the period had already been committed; the existing
	// amount and balance are returned unchanged.
	Duplicate bool `json:"duplicate"`
}
