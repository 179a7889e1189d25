package deduction

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// MonthlyRate converts an annual percentage into a monthly fraction.
func MonthlyRate(annualPct decimal.Decimal) decimal.Decimal {
	return annualPct.Div(generic.Hundred).Div(generic.MonthsPerYear)
}

// EMI is the level installment that repays principal over n periods:
//
//	r == 0: P / n
//	r >  0: P * r * (1+r)^n / ((1+r)^n - 1)
func EMI(p generic.Precision, principal, annualPct decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	r := MonthlyRate(annualPct)
	count := decimal.NewFromInt(int64(n))
	if r.IsZero() {
		return p.Round(principal.Div(count))
	}
	growth := compound(r, n)
	return p.Round(principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))))
}

// compound returns (1+r)^n by repeated multiplication, which stays exact
// where Pow on fractional bases would not.
func compound(r decimal.Decimal, n int) decimal.Decimal {
	base := decimal.NewFromInt(1).Add(r)
	out := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		out = out.Mul(base)
	}
	return out
}

// Periods lists n consecutive periods starting at start.
func Periods(start generic.Period, n int) []generic.Period {
	out := make([]generic.Period, n)
	for i := range out {
		out[i] = start.AddMonths(i)
	}
	return out
}

// BuildSchedule amortizes principal over the given periods with a level
// installment. Each installment's interest is the rounded opening balance
// times the monthly rate; the last installment takes whatever principal is
// left, so principal always sums back exactly.
//
// A positive fixed amount overrides the computed EMI (advances recovered at
// a set amount per period).
func BuildSchedule(p generic.Precision, principal, annualPct decimal.Decimal, periods []generic.Period, fixed decimal.Decimal, firstNumber int) (decimal.Decimal, []Installment) {
	n := len(periods)
	if n == 0 {
		return decimal.Zero, nil
	}

	emi := fixed
	if !emi.IsPositive() {
		emi = EMI(p, principal, annualPct, n)
	}
	r := MonthlyRate(annualPct)

	schedule := make([]Installment, 0, n)
	balance := principal
	for i, period := range periods {
		interest := p.Round(balance.Mul(r))
		part := emi.Sub(interest)
		if i == n-1 || part.GreaterThan(balance) {
			part = balance
		}
		part = generic.NonNegative(part)
		closing := balance.Sub(part)
		schedule = append(schedule, Installment{
			Number:    firstNumber + i,
			Period:    period,
			Opening:   balance,
			Principal: part,
			Interest:  interest,
			Amount:    part.Add(interest),
			Closing:   closing,
			Penalty:   decimal.Zero,
		})
		balance = closing
		if balance.IsZero() && i < n-1 {
			// A fixed recovery can finish early; the rest of the periods
			// carry nothing.
			break
		}
	}
	return emi, schedule
}

// installmentsFor derives the count for an advance given a fixed recovery:
// ceil(principal / recovery).
func installmentsFor(principal, recovery decimal.Decimal) int {
	if !recovery.IsPositive() {
		return 0
	}
	return int(principal.Div(recovery).Ceil().IntPart())
}
