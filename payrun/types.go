/*
Package payrun drives a month's payroll for one organization through its
lifecycle.

PURPOSE:
  A PayRun snapshots the active employees, computes every pay line in
  parallel, goes through review and approval, and on payment commits the
  ledger recoveries and locks itself. Nothing touches loan or advance
  balances before the run is paid, so every earlier step can be repeated
  or abandoned for free.

LIFECYCLE:
  draft -> processed -> in_review -> approved -> paid
  draft | processed | in_review -> cancelled
  processed -> processed           (recompute)
  paid: locked; corrections open a new revision with Revise

SEE ALSO:
  - state.go: transition table
  - orchestrator.go: the operations
  - payroll/calculator.go: per-employee computation
  - deduction/ledger.go: dues and commits
*/
package payrun

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusProcessed Status = "processed"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Totals aggregates a run's lines.
type Totals struct {
	Employees             int             `json:"employees"`
	Gross                 decimal.Decimal `json:"gross"`
	Deductions            decimal.Decimal `json:"deductions"`
	Net                   decimal.Decimal `json:"net"`
	EmployerContributions decimal.Decimal `json:"employer_contributions"`
	LedgerRecoveries      decimal.Decimal `json:"ledger_recoveries"`
	WithholdingTax        decimal.Decimal `json:"withholding_tax"`
	FlaggedLines          int             `json:"flagged_lines"`
}

// Failure is an employee whose line could not be computed.
type Failure struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Code       string             `json:"code"`
	Message    string             `json:"message"`
}

type PayRun struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	Period       generic.Period `json:"period"`
	Revision     int            `json:"revision"`
	SupersedesID string         `json:"supersedes_id,omitempty"`
	Status       Status         `json:"status"`
	Locked       bool           `json:"locked"`

	// EmployeeIDs is the set snapshotted when the run was last processed.
	EmployeeIDs []generic.EmployeeID `json:"employee_ids"`
	Totals      Totals               `json:"totals"`
	Failures    []Failure            `json:"failures"`
	RateVersion string               `json:"rate_version,omitempty"`

	CreatedBy    string     `json:"created_by"`
	ProcessedBy  string     `json:"processed_by,omitempty"`
	ApprovedBy   string     `json:"approved_by,omitempty"`
	PaidBy       string     `json:"paid_by,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Version is bumped on every save for optimistic concurrency.
	Version int `json:"version"`
}

// IsActive reports whether the run still blocks a new run for its period.
func (r *PayRun) IsActive() bool {
	return r.Status != StatusCancelled && r.Status != StatusPaid
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Fallback decides what to do for an employee without attendance.
type Fallback string

const (
	// FallbackNone fails the employee with ErrMissingAttendance.
	FallbackNone Fallback = "none"
	// FallbackFull pays every working day.
	FallbackFull Fallback = "full"
)
