package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/rates"
)

// withholdingFor spreads the projected annual tax over the periods left in
// the fiscal year.
//
//	projected = taxable to date + recurring x remaining periods (+ one-offs)
//	regular   = (tax(projected without one-offs) - withheld to date) / remaining
//	one-off   = tax(with one-offs) - tax(without), all in this period
//
// Tax on a bonus is taken in the month it is paid rather than smeared over
// the rest of the year.
func withholdingFor(r *rates.Configuration, period generic.Period, recurring, oneOff decimal.Decimal, history TaxHistory) decimal.Decimal {
	p := r.Precision
	remaining := decimal.NewFromInt(int64(r.Fiscal.RemainingPeriods(period)))

	projected := p.Round(history.TaxableToDate.Add(recurring.Mul(remaining)))
	taxWithout := r.AnnualTax(projected)

	regular := generic.NonNegative(p.Round(taxWithout.Sub(history.WithheldToDate).Div(remaining)))

	oneOffTax := decimal.Zero
	if oneOff.IsPositive() {
		oneOffTax = generic.NonNegative(r.AnnualTax(projected.Add(oneOff)).Sub(taxWithout))
	}
	return p.Round(regular.Add(oneOffTax))
}
