/*
Package payroll computes one employee's pay line for one period.

PURPOSE:
  The calculator turns a compensation config, an attendance summary and a
  rate configuration into an itemized PayLine: earnings, statutory
  deductions, ledger recoveries, other deductions and net pay. It is a pure
  function of its inputs. It performs no I/O and decides no ledger amounts;
  dues are handed to it by the deduction ledger and applied verbatim.

KEY TYPES:
  - CompensationConfig: annual CTC, component split, statutory opt-ins
  - AttendanceSummary:  working/payable/non-payable days, overtime hours
  - Adjustment:         one-off additions (bonus, arrears) and deductions
  - LedgerDue:          loan/advance recovery owed this period
  - PayLine:            the computed, itemized result

SEE ALSO:
  - calculator.go: the algorithm
  - statutory.go: retirement fund, health insurance, local tax
  - withholding.go: annualized income tax withholding
*/
package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// INPUTS
// =============================================================================

// Employee is the snapshot of master data copied onto a pay line. It is
// captured at computation time and never refreshed, so historical lines keep
// the name and department the employee had when they were paid.
type Employee struct {
	ID          generic.EmployeeID `json:"id"`
	Name        string             `json:"name"`
	Department  string             `json:"department,omitempty"`
	Designation string             `json:"designation,omitempty"`
}

// CompensationConfig is owned by employee-record management and read only here.
type CompensationConfig struct {
	EmployeeID    generic.EmployeeID `json:"employee_id"`
	EffectiveFrom generic.Period     `json:"effective_from"`
	AnnualCTC     decimal.Decimal    `json:"annual_ctc"`

	// Split of the CTC in percent; must add up to exactly 100.
	BasicPct          decimal.Decimal `json:"basic_pct"`
	HousingPct        decimal.Decimal `json:"housing_pct"`
	FixedAllowancePct decimal.Decimal `json:"fixed_allowance_pct"`

	Schemes SchemeOptIns `json:"schemes"`
}

// SchemeOptIns flags which statutory schemes apply to the employee.
type SchemeOptIns struct {
	RetirementFund  bool `json:"retirement_fund"`
	HealthInsurance bool `json:"health_insurance"`
	LocalTax        bool `json:"local_tax"`
	WithholdingTax  bool `json:"withholding_tax"`
}

// AttendanceSummary is produced by attendance capture. Payable days may be
// fractional for half days.
type AttendanceSummary struct {
	EmployeeID       generic.EmployeeID `json:"employee_id"`
	Period           generic.Period     `json:"period"`
	TotalWorkingDays decimal.Decimal    `json:"total_working_days"`
	PayableDays      decimal.Decimal    `json:"payable_days"`
	NonPayableDays   decimal.Decimal    `json:"non_payable_days"`
	OvertimeHours    decimal.Decimal    `json:"overtime_hours"`

	// Defaulted marks a summary synthesized from the default-attendance
	// fallback rather than received from attendance capture.
	Defaulted bool `json:"defaulted,omitempty"`
}

// FullAttendance builds the fallback summary: every working day payable.
func FullAttendance(employeeID generic.EmployeeID, period generic.Period, workingDays int) AttendanceSummary {
	days := decimal.NewFromInt(int64(workingDays))
	return AttendanceSummary{
		EmployeeID:       employeeID,
		Period:           period,
		TotalWorkingDays: days,
		PayableDays:      days,
		NonPayableDays:   decimal.Zero,
		OvertimeHours:    decimal.Zero,
		Defaulted:        true,
	}
}

type AdjustmentKind string

const (
	AdjustmentAddition  AdjustmentKind = "addition"
	AdjustmentDeduction AdjustmentKind = "deduction"
)

// Adjustment is a one-off amount for the period: bonus, arrears, leave
// encashment, canteen recovery and the like.
type Adjustment struct {
	Kind    AdjustmentKind  `json:"kind"`
	Code    string          `json:"code"`
	Label   string          `json:"label"`
	Amount  decimal.Decimal `json:"amount"`
	Taxable bool            `json:"taxable"`
}

type DueKind string

const (
	DueLoan    DueKind = "loan"
	DueAdvance DueKind = "advance"
)

// LedgerDue is a recovery amount computed by the deduction ledger.
type LedgerDue struct {
	AccountID generic.AccountID `json:"account_id"`
	Kind      DueKind           `json:"kind"`
	Amount    decimal.Decimal   `json:"amount"`
	Principal decimal.Decimal   `json:"principal"`
	Interest  decimal.Decimal   `json:"interest"`
	Penalty   decimal.Decimal   `json:"penalty"`
}

// TaxHistory is what was already earned and withheld in the fiscal year
// before the period being computed.
type TaxHistory struct {
	TaxableToDate  decimal.Decimal `json:"taxable_to_date"`
	WithheldToDate decimal.Decimal `json:"withheld_to_date"`
}

// =============================================================================
// OUTPUT
// =============================================================================

// Component codes used on pay lines.
const (
	CodeBasic          = "basic"
	CodeHousing        = "housing"
	CodeFixedAllowance = "fixed_allowance"
	CodeOvertime       = "overtime"

	CodeNonPayable          = "non_payable_days"
	CodeRetirementFund      = "retirement_fund"
	CodeHealthInsurance     = "health_insurance"
	CodeLocalTax            = "local_tax"
	CodeWithholdingTax      = "withholding_tax"
	CodeLoanRecovery        = "loan_recovery"
	CodeAdvanceRecovery     = "advance_recovery"
	CodeEmployerRetirement  = "employer_retirement_fund"
	CodeEmployerHealthCover = "employer_health_insurance"
)

type ItemCategory string

const (
	CategoryEarning   ItemCategory = "earning"
	CategoryLossOfPay ItemCategory = "loss_of_pay"
	CategoryStatutory ItemCategory = "statutory"
	CategoryLedger    ItemCategory = "ledger"
	CategoryOther     ItemCategory = "other"
	CategoryEmployer  ItemCategory = "employer"
)

// LineItem is one itemized amount on a pay line.
type LineItem struct {
	Code      string            `json:"code"`
	Label     string            `json:"label"`
	Category  ItemCategory      `json:"category"`
	Amount    decimal.Decimal   `json:"amount"`
	AccountID generic.AccountID `json:"account_id,omitempty"`
}

// Flag blocks run progression. Notice is informational.
type Flag string
type Notice string

const (
	FlagNegativeNetPay Flag = "negative_net_pay"

	NoticeHealthInsuranceCeilingExceeded Notice = "health_insurance_ceiling_exceeded"
	NoticeDefaultAttendance              Notice = "default_attendance_used"
)

// ConfigRef and AttendanceRef are id-only references; a line never holds
// a live pointer to its inputs.
type ConfigRef struct {
	EmployeeID    generic.EmployeeID `json:"employee_id"`
	EffectiveFrom generic.Period     `json:"effective_from"`
}

type AttendanceRef struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Period     generic.Period     `json:"period"`
}

// PayLine is the computed record for one employee in one pay run.
type PayLine struct {
	ID       string         `json:"id"`
	RunID    string         `json:"run_id"`
	Period   generic.Period `json:"period"`
	Employee Employee       `json:"employee"`

	Earnings              []LineItem  `json:"earnings"`
	Deductions            []LineItem  `json:"deductions"`
	EmployerContributions []LineItem  `json:"employer_contributions"`
	LedgerDues            []LedgerDue `json:"ledger_dues"`

	Gross           decimal.Decimal `json:"gross"`
	TaxableIncome   decimal.Decimal `json:"taxable_income"`
	WithholdingTax  decimal.Decimal `json:"withholding_tax"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	Net             decimal.Decimal `json:"net"`

	RateVersion   string            `json:"rate_version"`
	Attendance    AttendanceSummary `json:"attendance"`
	ConfigRef     ConfigRef         `json:"config_ref"`
	AttendanceRef AttendanceRef     `json:"attendance_ref"`

	Flags   []Flag   `json:"flags,omitempty"`
	Notices []Notice `json:"notices,omitempty"`

	Checksum string `json:"checksum"`
}

func (l *PayLine) HasFlag(f Flag) bool {
	for _, x := range l.Flags {
		if x == f {
			return true
		}
	}
	return false
}

func (l *PayLine) HasNotice(n Notice) bool {
	for _, x := range l.Notices {
		if x == n {
			return true
		}
	}
	return false
}

// Deduction returns the total of deduction items with the given code.
func (l *PayLine) Deduction(code string) decimal.Decimal {
	return sumCode(l.Deductions, code)
}

// Earning returns the total of earning items with the given code.
func (l *PayLine) Earning(code string) decimal.Decimal {
	return sumCode(l.Earnings, code)
}

// EmployerContribution returns the employer item with the given code.
func (l *PayLine) EmployerContribution(code string) decimal.Decimal {
	return sumCode(l.EmployerContributions, code)
}

// LedgerTotal is the sum of all ledger recoveries on the line.
func (l *PayLine) LedgerTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range l.LedgerDues {
		total = total.Add(d.Amount)
	}
	return total
}

func sumCode(items []LineItem, code string) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.Code == code {
			total = total.Add(it.Amount)
		}
	}
	return total
}
