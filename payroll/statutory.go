package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/rates"
)

type statutory struct {
	retirementEmployee decimal.Decimal
	retirementEmployer decimal.Decimal
	healthEmployee     decimal.Decimal
	healthEmployer     decimal.Decimal
	localTax           decimal.Decimal

	healthCeilingExceeded bool
}

func computeStatutory(r *rates.Configuration, schemes SchemeOptIns, basic, gross decimal.Decimal) statutory {
	st := statutory{
		retirementEmployee: decimal.Zero,
		retirementEmployer: decimal.Zero,
		healthEmployee:     decimal.Zero,
		healthEmployer:     decimal.Zero,
		localTax:           decimal.Zero,
	}

	if schemes.RetirementFund {
		st.retirementEmployee, st.retirementEmployer = retirementFund(r, basic)
	}

	if schemes.HealthInsurance {
		if eligibleForHealthInsurance(r, gross) {
			st.healthEmployee = r.Precision.Percent(gross, r.HealthInsurance.EmployeeRate)
			st.healthEmployer = r.Precision.Percent(gross, r.HealthInsurance.EmployerRate)
		} else {
			// Opt-in stays set in the config until its owner clears it; we
			// only report. Nothing here ever turns the scheme back on.
			st.healthCeilingExceeded = true
		}
	}

	if schemes.LocalTax {
		st.localTax = r.Precision.Round(r.LocalTaxFor(gross))
	}
	return st
}

// retirementFund applies the rates to basic capped at the wage ceiling.
// A zero ceiling means uncapped.
func retirementFund(r *rates.Configuration, basic decimal.Decimal) (employee, employer decimal.Decimal) {
	base := basic
	if ceiling := r.RetirementFund.WageCeiling; ceiling.IsPositive() && base.GreaterThan(ceiling) {
		base = ceiling
	}
	return r.Precision.Percent(base, r.RetirementFund.EmployeeRate),
		r.Precision.Percent(base, r.RetirementFund.EmployerRate)
}

// eligibleForHealthInsurance: the ceiling is exclusive, gross equal to it
// is already out.
func eligibleForHealthInsurance(r *rates.Configuration, gross decimal.Decimal) bool {
	return gross.LessThan(r.HealthInsurance.WageCeiling)
}
