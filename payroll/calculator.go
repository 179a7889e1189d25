package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/rates"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Input is everything one pay line is computed from.
type Input struct {
	RunID       string
	Period      generic.Period
	Employee    Employee
	Config      *CompensationConfig
	Attendance  *AttendanceSummary
	Rates       *rates.Configuration
	Dues        []LedgerDue
	Adjustments []Adjustment
	History     TaxHistory
}

// Calculator computes pay lines. It holds no state and is safe for
// concurrent use.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute produces the pay line for one employee.
//
// Input errors come back as *CalculationError. A negative net is not an
// error: the line is returned with FlagNegativeNetPay set.
//
// Every money value is rounded to the rate configuration's precision as soon
// as it is computed, so the same inputs always give the same line.
func (c *Calculator) Compute(in Input) (*PayLine, error) {
	fail := func(err error) (*PayLine, error) {
		return nil, &CalculationError{EmployeeID: in.Employee.ID, Err: err}
	}

	if in.Rates == nil {
		return fail(ErrMissingRates)
	}
	if in.Config == nil {
		return fail(ErrMissingConfig)
	}
	if err := validateConfig(in.Config, in.Period); err != nil {
		return fail(err)
	}
	if in.Attendance == nil {
		return fail(ErrMissingAttendance)
	}
	if err := validateAttendance(in.Attendance, in.Period); err != nil {
		return fail(err)
	}

	r := in.Rates
	p := r.Precision
	cfg := in.Config
	att := *in.Attendance

	line := &PayLine{
		ID:            LineID(in.RunID, in.Employee.ID),
		RunID:         in.RunID,
		Period:        in.Period,
		Employee:      in.Employee,
		RateVersion:   r.Version,
		Attendance:    att,
		ConfigRef:     ConfigRef{EmployeeID: cfg.EmployeeID, EffectiveFrom: cfg.EffectiveFrom},
		AttendanceRef: AttendanceRef{EmployeeID: att.EmployeeID, Period: att.Period},
	}
	if att.Defaulted {
		line.Notices = append(line.Notices, NoticeDefaultAttendance)
	}

	// 1. Monthly components, pro-rated over the days attendance accounts for.
	monthlyBasic := monthlyComponent(p, cfg.AnnualCTC, cfg.BasicPct)
	monthlyHousing := monthlyComponent(p, cfg.AnnualCTC, cfg.HousingPct)
	monthlyAllowance := monthlyComponent(p, cfg.AnnualCTC, cfg.FixedAllowancePct)

	accounted := att.PayableDays.Add(att.NonPayableDays)
	prorate := func(amount decimal.Decimal) decimal.Decimal {
		return p.Round(amount.Mul(accounted).Div(att.TotalWorkingDays))
	}
	basic := prorate(monthlyBasic)
	housing := prorate(monthlyHousing)
	allowance := prorate(monthlyAllowance)
	fixedGross := generic.Sum(basic, housing, allowance)

	line.Earnings = append(line.Earnings,
		LineItem{Code: CodeBasic, Label: "Basic", Category: CategoryEarning, Amount: basic},
		LineItem{Code: CodeHousing, Label: "Housing allowance", Category: CategoryEarning, Amount: housing},
		LineItem{Code: CodeFixedAllowance, Label: "Fixed allowance", Category: CategoryEarning, Amount: allowance},
	)

	// 2. Overtime on the full monthly basic.
	overtime := overtimePay(r, monthlyBasic, att)
	if !overtime.IsZero() {
		line.Earnings = append(line.Earnings,
			LineItem{Code: CodeOvertime, Label: "Overtime", Category: CategoryEarning, Amount: overtime})
	}

	// 3. Gross, including one-off additions.
	oneOffTaxable := decimal.Zero
	additions := decimal.Zero
	for _, adj := range in.Adjustments {
		if adj.Kind != AdjustmentAddition {
			continue
		}
		amount := p.Round(adj.Amount)
		additions = additions.Add(amount)
		if adj.Taxable {
			oneOffTaxable = oneOffTaxable.Add(amount)
		}
		line.Earnings = append(line.Earnings,
			LineItem{Code: adj.Code, Label: adj.Label, Category: CategoryEarning, Amount: amount})
	}
	gross := generic.Sum(fixedGross, overtime, additions)
	line.Gross = gross

	// 7. Loss of pay for non-payable days, on the full monthly fixed
	// components, so what remains is exactly the payable share.
	monthlyFixed := generic.Sum(monthlyBasic, monthlyHousing, monthlyAllowance)
	nonPayable := p.Round(monthlyFixed.Mul(att.NonPayableDays).Div(att.TotalWorkingDays))
	if !nonPayable.IsZero() {
		line.Deductions = append(line.Deductions,
			LineItem{Code: CodeNonPayable, Label: "Non-payable days", Category: CategoryLossOfPay, Amount: nonPayable})
	}

	// 4-6. Statutory contributions and taxes.
	st := computeStatutory(r, cfg.Schemes, basic, gross)
	if st.healthCeilingExceeded {
		line.Notices = append(line.Notices, NoticeHealthInsuranceCeilingExceeded)
	}
	line.Deductions = appendNonZero(line.Deductions,
		LineItem{Code: CodeRetirementFund, Label: "Retirement fund", Category: CategoryStatutory, Amount: st.retirementEmployee},
		LineItem{Code: CodeHealthInsurance, Label: "Health insurance", Category: CategoryStatutory, Amount: st.healthEmployee},
		LineItem{Code: CodeLocalTax, Label: "Local tax", Category: CategoryStatutory, Amount: st.localTax},
	)
	line.EmployerContributions = appendNonZero(line.EmployerContributions,
		LineItem{Code: CodeEmployerRetirement, Label: "Employer retirement fund", Category: CategoryEmployer, Amount: st.retirementEmployer},
		LineItem{Code: CodeEmployerHealthCover, Label: "Employer health insurance", Category: CategoryEmployer, Amount: st.healthEmployer},
	)

	recurringTaxable := generic.NonNegative(generic.Sum(fixedGross, overtime).Sub(nonPayable).Sub(st.retirementEmployee))
	line.TaxableIncome = recurringTaxable.Add(oneOffTaxable)
	if cfg.Schemes.WithholdingTax {
		line.WithholdingTax = withholdingFor(r, in.Period, recurringTaxable, oneOffTaxable, in.History)
		line.Deductions = appendNonZero(line.Deductions,
			LineItem{Code: CodeWithholdingTax, Label: "Withholding tax", Category: CategoryStatutory, Amount: line.WithholdingTax})
	} else {
		line.WithholdingTax = decimal.Zero
	}

	// 8. Ledger dues, verbatim.
	for _, due := range in.Dues {
		code, label := CodeLoanRecovery, "Loan recovery"
		if due.Kind == DueAdvance {
			code, label = CodeAdvanceRecovery, "Advance recovery"
		}
		line.LedgerDues = append(line.LedgerDues, due)
		line.Deductions = append(line.Deductions,
			LineItem{Code: code, Label: label, Category: CategoryLedger, Amount: due.Amount, AccountID: due.AccountID})
	}

	for _, adj := range in.Adjustments {
		if adj.Kind != AdjustmentDeduction {
			continue
		}
		line.Deductions = append(line.Deductions,
			LineItem{Code: adj.Code, Label: adj.Label, Category: CategoryOther, Amount: p.Round(adj.Amount)})
	}

	// 9. Net.
	total := decimal.Zero
	for _, d := range line.Deductions {
		total = total.Add(d.Amount)
	}
	line.TotalDeductions = total
	line.Net = gross.Sub(total)
	if line.Net.IsNegative() {
		line.Flags = append(line.Flags, FlagNegativeNetPay)
	}

	sum, err := Checksum(line)
	if err != nil {
		return nil, fmt.Errorf("checksum pay line: %w", err)
	}
	line.Checksum = sum
	return line, nil
}

// LineID is deterministic so a recomputed run reproduces the same ids.
func LineID(runID string, employeeID generic.EmployeeID) string {
	return runID + "/" + string(employeeID)
}

func monthlyComponent(p generic.Precision, annual, pct decimal.Decimal) decimal.Decimal {
	return p.Round(annual.Mul(pct).Div(generic.Hundred).Div(generic.MonthsPerYear))
}

// overtimePay = (basic / working days / standard hours) x hours x multiplier.
func overtimePay(r *rates.Configuration, monthlyBasic decimal.Decimal, att AttendanceSummary) decimal.Decimal {
	if !att.OvertimeHours.IsPositive() {
		return decimal.Zero
	}
	hourly := monthlyBasic.Div(att.TotalWorkingDays.Mul(r.StandardHoursPerDay))
	return r.Precision.Round(hourly.Mul(att.OvertimeHours).Mul(r.OvertimeMultiplier))
}

func appendNonZero(items []LineItem, add ...LineItem) []LineItem {
	for _, it := range add {
		if !it.Amount.IsZero() {
			items = append(items, it)
		}
	}
	return items
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateConfig(cfg *CompensationConfig, period generic.Period) error {
	if cfg.AnnualCTC.IsNegative() {
		return fmt.Errorf("%w: negative annual CTC", ErrInvalidConfig)
	}
	if cfg.BasicPct.IsNegative() || cfg.HousingPct.IsNegative() || cfg.FixedAllowancePct.IsNegative() {
		return fmt.Errorf("%w: negative split percentage", ErrInvalidConfig)
	}
	if split := generic.Sum(cfg.BasicPct, cfg.HousingPct, cfg.FixedAllowancePct); !split.Equal(generic.Hundred) {
		return fmt.Errorf("%w: split adds up to %s%%, want 100%%", ErrInvalidConfig, split)
	}
	if !cfg.EffectiveFrom.IsZero() && cfg.EffectiveFrom.After(period) {
		return fmt.Errorf("%w: effective from %s, after %s", ErrMissingConfig, cfg.EffectiveFrom, period)
	}
	return nil
}

func validateAttendance(att *AttendanceSummary, period generic.Period) error {
	if !att.Period.IsZero() && !att.Period.Equal(period) {
		return fmt.Errorf("%w: summary is for %s, run is for %s", ErrAttendanceInconsistent, att.Period, period)
	}
	if !att.TotalWorkingDays.IsPositive() {
		return fmt.Errorf("%w: total working days must be positive", ErrAttendanceInconsistent)
	}
	if att.PayableDays.IsNegative() || att.NonPayableDays.IsNegative() || att.OvertimeHours.IsNegative() {
		return fmt.Errorf("%w: negative day or hour count", ErrAttendanceInconsistent)
	}
	if att.PayableDays.Add(att.NonPayableDays).GreaterThan(att.TotalWorkingDays) {
		return fmt.Errorf("%w: payable %s + non-payable %s exceeds %s working days",
			ErrAttendanceInconsistent, att.PayableDays, att.NonPayableDays, att.TotalWorkingDays)
	}
	return nil
}
