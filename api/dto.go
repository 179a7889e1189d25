/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types that
  already carry JSON tags (PayRun, PayLine, Account, Due, audit.Entry) are
  returned as-is; the types here cover request bodies and the few responses
  that combine or reshape domain data.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Runs:
    CreateRunRequest, CancelRunRequest, RunDetailResponse

  Accounts:
    CreateLoanRequest, CreateAdvanceRequest, PrepayRequest, WriteOffRequest,
    AccountResponse, TransactionDTO

  Inputs:
    EmployeeRequest, CompensationRequest, AttendanceRequest, AdjustmentRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry validator/v10 tags checked by decodeRequest. Money is
  decimal.Decimal and is range-checked by the domain packages, which own
  those rules.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RatesJSON, the rate configuration request body
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payrun"
)

// =============================================================================
// PAY RUNS
// =============================================================================

// CreateRunRequest opens a draft run. Period is "YYYY-MM".
type CreateRunRequest struct {
	OrgID  string `json:"org_id" validate:"required,max=64"`
	Period string `json:"period" validate:"required,datetime=2006-01"`
}

type CancelRunRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RunDetailResponse is a run together with its lines.
type RunDetailResponse struct {
	Run   *payrun.PayRun     `json:"run"`
	Lines []*payroll.PayLine `json:"lines"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type CreateLoanRequest struct {
	EmployeeID       string          `json:"employee_id" validate:"required"`
	Principal        decimal.Decimal `json:"principal"`
	AnnualRate       decimal.Decimal `json:"annual_rate"`
	InstallmentCount int             `json:"installment_count" validate:"required,min=1,max=360"`
	PenaltyRate      decimal.Decimal `json:"penalty_rate"`
	StartPeriod      string          `json:"start_period" validate:"required,datetime=2006-01"`
	Reason           string          `json:"reason" validate:"max=500"`
}

// CreateAdvanceRequest takes either InstallmentCount or Recovery.
type CreateAdvanceRequest struct {
	EmployeeID       string          `json:"employee_id" validate:"required"`
	Principal        decimal.Decimal `json:"principal"`
	InstallmentCount int             `json:"installment_count" validate:"omitempty,min=1,max=360"`
	Recovery         decimal.Decimal `json:"recovery"`
	PenaltyRate      decimal.Decimal `json:"penalty_rate"`
	StartPeriod      string          `json:"start_period" validate:"required,datetime=2006-01"`
	Reason           string          `json:"reason" validate:"max=500"`
}

type PrepayRequest struct {
	Period    string          `json:"period" validate:"required,datetime=2006-01"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=128"`
}

type WriteOffRequest struct {
	Reason    string `json:"reason" validate:"required,max=500"`
	Reference string `json:"reference" validate:"max=128"`
}

// AccountResponse adds the balance replayed from the ledger, which must
// always agree with the account record.
type AccountResponse struct {
	*deduction.Account
	Outstanding decimal.Decimal `json:"outstanding"`
}

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"account_id"`
	EmployeeID     string            `json:"employee_id"`
	Period         string            `json:"period"`
	Type           string            `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	Delta          decimal.Decimal   `json:"delta"`
	BalanceAfter   decimal.Decimal   `json:"balance_after"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		AccountID:      string(tx.AccountID),
		EmployeeID:     string(tx.EmployeeID),
		Period:         tx.Period.String(),
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		Delta:          tx.Delta,
		BalanceAfter:   tx.BalanceAfter,
		ReferenceID:    tx.ReferenceID,
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		Metadata:       tx.Metadata,
		CreatedBy:      tx.CreatedBy,
		CreatedAt:      tx.CreatedAt.UTC().Format(timeFormat),
	}
}

// =============================================================================
// INPUTS - employee master data, compensation, attendance, adjustments
// =============================================================================

type EmployeeRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	OrgID        string `json:"org_id" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	Department   string `json:"department" validate:"max=100"`
	Designation  string `json:"designation" validate:"max=100"`
	Active       *bool  `json:"active"`
	JoinedPeriod string `json:"joined_period" validate:"required,datetime=2006-01"`
	LeftPeriod   string `json:"left_period" validate:"omitempty,datetime=2006-01"`
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
}

type CompensationRequest struct {
	EffectiveFrom     string               `json:"effective_from" validate:"required,datetime=2006-01"`
	AnnualCTC         decimal.Decimal      `json:"annual_ctc"`
	BasicPct          decimal.Decimal      `json:"basic_pct"`
	HousingPct        decimal.Decimal      `json:"housing_pct"`
	FixedAllowancePct decimal.Decimal      `json:"fixed_allowance_pct"`
	Schemes           payroll.SchemeOptIns `json:"schemes"`
}

type AttendanceRequest struct {
	TotalWorkingDays decimal.Decimal `json:"total_working_days"`
	PayableDays      decimal.Decimal `json:"payable_days"`
	NonPayableDays   decimal.Decimal `json:"non_payable_days"`
	OvertimeHours    decimal.Decimal `json:"overtime_hours"`
}

type AdjustmentRequest struct {
	Period  string          `json:"period" validate:"required,datetime=2006-01"`
	Kind    string          `json:"kind" validate:"required,oneof=addition deduction"`
	Code    string          `json:"code" validate:"required,max=32"`
	Label   string          `json:"label" validate:"max=200"`
	Amount  decimal.Decimal `json:"amount"`
	Taxable bool            `json:"taxable"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OrgID       string `json:"org_id"`
	Period      string `json:"period"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
