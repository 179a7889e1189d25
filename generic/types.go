/*
Package generic provides the domain-agnostic primitives of the payroll engine.

PURPOSE:
  Money arithmetic, pay periods and the append-only ledger live here so that
  the calculator, the deduction ledger and the pay-run orchestrator all agree
  on rounding and on how a balance change is recorded. Nothing in this package
  knows what a salary or a loan is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Precision: currency rounding applied after every component computation
  - Transaction: an immutable ledger entry recording a balance change
  - AccountID/EmployeeID: type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only followed by new ones
  2. Precision: decimal.Decimal everywhere, never float64 for money
  3. Reproducibility: the same inputs round the same way, always
  4. Auditability: every transaction has a reason, a reference and an idempotency key

USAGE:
  p := generic.DefaultPrecision
  basic := p.Round(ctc.Mul(pct).Div(generic.Hundred).Div(generic.MonthsPerYear))

SEE ALSO:
  - period.go: Period and FiscalCalendar
  - ledger.go: Transaction persistence interface
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal amounts rounded to a currency precision
// =============================================================================

var (
	Hundred       = decimal.NewFromInt(100)
	MonthsPerYear = decimal.NewFromInt(12)
)

// Precision is the number of decimal places money is rounded to.
type Precision int32

const DefaultPrecision Precision = 2

// Round rounds half away from zero. Every computed money value goes through
// this before it is used in a further computation.
func (p Precision) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(int32(p))
}

// Unit is the smallest representable amount, e.g. 0.01 for two places.
func (p Precision) Unit() decimal.Decimal {
	return decimal.New(1, -int32(p))
}

// Percent applies a percentage rate and rounds.
func (p Precision) Percent(base, rate decimal.Decimal) decimal.Decimal {
	return p.Round(base.Mul(rate).Div(Hundred))
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type AccountID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to an account balance
// =============================================================================

type TransactionType string

const (
	TxDisbursement TransactionType = "disbursement" // Account opened, balance set to principal
	TxRecovery     TransactionType = "recovery"     // Installment(s) recovered through payroll
	TxPrepayment   TransactionType = "prepayment"   // Early or partial settlement
	TxWriteOff     TransactionType = "write_off"    // Remaining balance abandoned
)

type Transaction struct {
	ID         TransactionID
	AccountID  AccountID
	EmployeeID EmployeeID
	Period     Period
	Type       TransactionType

	// Amount is the cash that moved. Delta is the change to the outstanding
	// principal; they differ when interest or penalty is part of the amount.
	Amount       decimal.Decimal
	Delta        decimal.Decimal
	BalanceAfter decimal.Decimal

	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}
