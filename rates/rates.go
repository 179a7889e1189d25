/*
Package rates holds the statutory rate configuration the calculator reads.

PURPOSE:
  Contribution percentages, wage ceilings and tax tables are policy values
  decided outside the engine. They arrive here as an immutable, versioned
  Configuration that is handed explicitly to every calculation. Nothing in the
  engine reads rates from global state; a PayLine records the Version it was
  computed with so any line can be replayed.

KEY TYPES:
  - Configuration: one effective-dated snapshot of every rate
  - Scheme:        employee/employer rates with a wage ceiling
  - LocalTaxSlab:  flat amount per gross band
  - Withholding:   progressive income tax brackets

RATES ARE PERCENTAGES:
  12 means 12%, 0.75 means 0.75%.

SEE ALSO:
  - registry.go: effective-dated lookup
  - factory/rates.go: JSON parsing and presets
  - payroll/statutory.go: where the rules are applied
*/
package rates

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Configuration is immutable once built; callers must not modify the slices.
type Configuration struct {
	Version       string
	EffectiveFrom generic.Period
	Precision     generic.Precision
	Fiscal        generic.FiscalCalendar

	// Overtime is paid at (basic / working days / StandardHoursPerDay) x Multiplier per hour.
	StandardHoursPerDay decimal.Decimal
	OvertimeMultiplier  decimal.Decimal

	RetirementFund  Scheme
	HealthInsurance Scheme
	LocalTax        []LocalTaxSlab
	Withholding     Withholding
}

// Scheme is a contribution with an employee and employer share.
//
// For the retirement fund WageCeiling caps the base the rate applies to.
// For health insurance it is an eligibility limit: the scheme applies only
// while gross is strictly below it.
type Scheme struct {
	EmployeeRate decimal.Decimal
	EmployerRate decimal.Decimal
	WageCeiling  decimal.Decimal
}

// LocalTaxSlab charges Amount when gross <= UpTo. A nil UpTo is open-ended.
type LocalTaxSlab struct {
	UpTo   *decimal.Decimal
	Amount decimal.Decimal
}

// Withholding is an annual progressive table.
type Withholding struct {
	StandardDeduction decimal.Decimal
	Brackets          []TaxBracket
	CessRate          decimal.Decimal
}

// TaxBracket taxes the part of income above Above at Rate, up to the next
// bracket's Above.
type TaxBracket struct {
	Above decimal.Decimal
	Rate  decimal.Decimal
}

// =============================================================================
// LOOKUPS
// =============================================================================

// LocalTaxFor returns the slab amount for gross.
func (c *Configuration) LocalTaxFor(gross decimal.Decimal) decimal.Decimal {
	for _, slab := range c.LocalTax {
		if slab.UpTo == nil || gross.LessThanOrEqual(*slab.UpTo) {
			return slab.Amount
		}
	}
	return decimal.Zero
}

// AnnualTax computes tax on an annual income after the standard deduction,
// plus cess. Intermediate values are rounded to the configured precision.
func (c *Configuration) AnnualTax(income decimal.Decimal) decimal.Decimal {
	p := c.Precision
	taxable := generic.NonNegative(income.Sub(c.Withholding.StandardDeduction))

	tax := decimal.Zero
	brackets := c.Withholding.Brackets
	for i, b := range brackets {
		if !taxable.GreaterThan(b.Above) {
			break
		}
		upper := taxable
		if i+1 < len(brackets) && brackets[i+1].Above.LessThan(taxable) {
			upper = brackets[i+1].Above
		}
		tax = tax.Add(p.Percent(upper.Sub(b.Above), b.Rate))
	}

	cess := p.Percent(tax, c.Withholding.CessRate)
	return p.Round(tax.Add(cess))
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks structural consistency. It does not judge policy values.
func (c *Configuration) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidConfiguration)
	}
	if c.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effective_from is required", ErrInvalidConfiguration)
	}
	if c.Precision < 0 || c.Precision > 6 {
		return fmt.Errorf("%w: precision %d out of range", ErrInvalidConfiguration, c.Precision)
	}
	if !c.StandardHoursPerDay.IsPositive() {
		return fmt.Errorf("%w: standard hours per day must be positive", ErrInvalidConfiguration)
	}
	for name, s := range map[string]Scheme{"retirement_fund": c.RetirementFund, "health_insurance": c.HealthInsurance} {
		if s.EmployeeRate.IsNegative() || s.EmployerRate.IsNegative() || s.WageCeiling.IsNegative() {
			return fmt.Errorf("%w: %s has negative values", ErrInvalidConfiguration, name)
		}
	}
	for i := 1; i < len(c.LocalTax); i++ {
		prev := c.LocalTax[i-1]
		if prev.UpTo == nil {
			return fmt.Errorf("%w: open-ended local tax slab must be last", ErrInvalidConfiguration)
		}
		if cur := c.LocalTax[i]; cur.UpTo != nil && !cur.UpTo.GreaterThan(*prev.UpTo) {
			return fmt.Errorf("%w: local tax slabs must be ascending", ErrInvalidConfiguration)
		}
	}
	if !sort.SliceIsSorted(c.Withholding.Brackets, func(i, j int) bool {
		return c.Withholding.Brackets[i].Above.LessThan(c.Withholding.Brackets[j].Above)
	}) {
		return fmt.Errorf("%w: withholding brackets must be ascending", ErrInvalidConfiguration)
	}
	return nil
}
