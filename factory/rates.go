/*
Package factory provides JSON to Go rate configuration conversion.

PURPOSE:
  Converts JSON rate definitions into rates.Configuration values. Statutory
  rates change by notification, not by release, so payroll administrators
  publish a new version as JSON and the engine picks it up from its effective
  period onward.

JSON SCHEMA:
  {
    "version": "2025-04",
    "effective_from": "2025-04",
    "precision": 2,
    "fiscal_year_start": 4,
    "standard_hours_per_day": "8",
    "overtime_multiplier": "2",
    "retirement_fund":  {"employee_rate": "12", "employer_rate": "12", "wage_ceiling": "15000"},
    "health_insurance": {"employee_rate": "0.75", "employer_rate": "3.25", "wage_ceiling": "21000"},
    "local_tax": [
      {"up_to": "15000", "amount": "0"},
      {"up_to": "20000", "amount": "150"},
      {"amount": "200"}
    ],
    "withholding": {
      "standard_deduction": "75000",
      "cess_rate": "4",
      "brackets": [
        {"above": "0", "rate": "0"},
        {"above": "400000", "rate": "5"}
      ]
    }
  }

KEY FEATURES:
  - Decimal values as strings, never floats
  - Sensible defaults (precision 2, 8 hour day, 1x overtime, January fiscal start)
  - Validation through rates.Configuration.Validate

USAGE:
  f := factory.NewRateFactory()
  cfg, err := f.ParseRates(jsonString)

SEE ALSO:
  - rates/rates.go: Configuration definition
  - rates/registry.go: effective-dated lookup
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/rates"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RatesJSON is the JSON representation of a rate configuration.
type RatesJSON struct {
	Version             string           `json:"version"`
	EffectiveFrom       string           `json:"effective_from"`
	Precision           *int32           `json:"precision,omitempty"`
	FiscalYearStart     int              `json:"fiscal_year_start,omitempty"` // Month 1-12
	StandardHoursPerDay *decimal.Decimal `json:"standard_hours_per_day,omitempty"`
	OvertimeMultiplier  *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	RetirementFund      SchemeJSON       `json:"retirement_fund"`
	HealthInsurance     SchemeJSON       `json:"health_insurance"`
	LocalTax            []LocalTaxJSON   `json:"local_tax,omitempty"`
	Withholding         WithholdingJSON  `json:"withholding"`
}

// SchemeJSON represents an employee/employer contribution scheme.
type SchemeJSON struct {
	EmployeeRate decimal.Decimal `json:"employee_rate"`
	EmployerRate decimal.Decimal `json:"employer_rate"`
	WageCeiling  decimal.Decimal `json:"wage_ceiling"`
}

// LocalTaxJSON represents one slab. Omit up_to on the last slab.
type LocalTaxJSON struct {
	UpTo   *decimal.Decimal `json:"up_to,omitempty"`
	Amount decimal.Decimal  `json:"amount"`
}

// WithholdingJSON represents the withholding table.
type WithholdingJSON struct {
	StandardDeduction decimal.Decimal `json:"standard_deduction"`
	CessRate          decimal.Decimal `json:"cess_rate"`
	Brackets          []BracketJSON   `json:"brackets"`
}

type BracketJSON struct {
	Above decimal.Decimal `json:"above"`
	Rate  decimal.Decimal `json:"rate"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory creates rate configurations from JSON.
type RateFactory struct{}

func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseRates parses and validates a JSON rate configuration.
func (f *RateFactory) ParseRates(jsonStr string) (*rates.Configuration, error) {
	var rj RatesJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts an already decoded RatesJSON.
func (f *RateFactory) FromJSON(rj RatesJSON) (*rates.Configuration, error) {
	effective, err := generic.ParsePeriod(rj.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: effective_from: %v", rates.ErrInvalidConfiguration, err)
	}

	cfg := &rates.Configuration{
		Version:             rj.Version,
		EffectiveFrom:       effective,
		Precision:           generic.DefaultPrecision,
		Fiscal:              generic.FiscalCalendar{StartMonth: time.January},
		StandardHoursPerDay: decimal.NewFromInt(8),
		OvertimeMultiplier:  decimal.NewFromInt(1),
		RetirementFund:      rates.Scheme(rj.RetirementFund),
		HealthInsurance:     rates.Scheme(rj.HealthInsurance),
		Withholding: rates.Withholding{
			StandardDeduction: rj.Withholding.StandardDeduction,
			CessRate:          rj.Withholding.CessRate,
		},
	}

	if rj.Precision != nil {
		cfg.Precision = generic.Precision(*rj.Precision)
	}
	if rj.FiscalYearStart != 0 {
		if rj.FiscalYearStart < 1 || rj.FiscalYearStart > 12 {
			return nil, fmt.Errorf("%w: fiscal_year_start must be 1-12", rates.ErrInvalidConfiguration)
		}
		cfg.Fiscal.StartMonth = time.Month(rj.FiscalYearStart)
	}
	if rj.StandardHoursPerDay != nil {
		cfg.StandardHoursPerDay = *rj.StandardHoursPerDay
	}
	if rj.OvertimeMultiplier != nil {
		cfg.OvertimeMultiplier = *rj.OvertimeMultiplier
	}
	for _, s := range rj.LocalTax {
		cfg.LocalTax = append(cfg.LocalTax, rates.LocalTaxSlab{UpTo: s.UpTo, Amount: s.Amount})
	}
	for _, b := range rj.Withholding.Brackets {
		cfg.Withholding.Brackets = append(cfg.Withholding.Brackets, rates.TaxBracket{Above: b.Above, Rate: b.Rate})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON converts a configuration back to its JSON form.
func (f *RateFactory) ToJSON(cfg rates.Configuration) RatesJSON {
	precision := int32(cfg.Precision)
	hours := cfg.StandardHoursPerDay
	multiplier := cfg.OvertimeMultiplier

	rj := RatesJSON{
		Version:             cfg.Version,
		EffectiveFrom:       cfg.EffectiveFrom.String(),
		Precision:           &precision,
		FiscalYearStart:     int(cfg.Fiscal.StartMonth),
		StandardHoursPerDay: &hours,
		OvertimeMultiplier:  &multiplier,
		RetirementFund:      SchemeJSON(cfg.RetirementFund),
		HealthInsurance:     SchemeJSON(cfg.HealthInsurance),
		Withholding: WithholdingJSON{
			StandardDeduction: cfg.Withholding.StandardDeduction,
			CessRate:          cfg.Withholding.CessRate,
		},
	}
	for _, s := range cfg.LocalTax {
		rj.LocalTax = append(rj.LocalTax, LocalTaxJSON{UpTo: s.UpTo, Amount: s.Amount})
	}
	for _, b := range cfg.Withholding.Brackets {
		rj.Withholding.Brackets = append(rj.Withholding.Brackets, BracketJSON{Above: b.Above, Rate: b.Rate})
	}
	return rj
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardRatesJSON returns a complete configuration with commonly used
// values: 12% retirement fund on a 15,000 ceiling, 0.75%/3.25% health
// insurance below 21,000, a three-slab local tax and a progressive
// withholding table with a 4% cess. Useful for demos and tests.
func StandardRatesJSON(version string, effectiveFrom generic.Period) string {
	return fmt.Sprintf(`{
		"version": %q,
		"effective_from": %q,
		"precision": 2,
		"fiscal_year_start": 4,
		"standard_hours_per_day": "8",
		"overtime_multiplier": "2",
		"retirement_fund":  {"employee_rate": "12", "employer_rate": "12", "wage_ceiling": "15000"},
		"health_insurance": {"employee_rate": "0.75", "employer_rate": "3.25", "wage_ceiling": "21000"},
		"local_tax": [
			{"up_to": "15000", "amount": "0"},
			{"up_to": "20000", "amount": "150"},
			{"amount": "200"}
		],
		"withholding": {
			"standard_deduction": "75000",
			"cess_rate": "4",
			"brackets": [
				{"above": "0", "rate": "0"},
				{"above": "400000", "rate": "5"},
				{"above": "800000", "rate": "10"},
				{"above": "1200000", "rate": "15"},
				{"above": "1600000", "rate": "20"},
				{"above": "2000000", "rate": "25"},
				{"above": "2400000", "rate": "30"}
			]
		}
	}`, version, effectiveFrom.String())
}

// MustStandardRates parses StandardRatesJSON and panics on error.
func MustStandardRates(version string, effectiveFrom generic.Period) rates.Configuration {
	cfg, err := NewRateFactory().ParseRates(StandardRatesJSON(version, effectiveFrom))
	if err != nil {
		panic(err)
	}
	return *cfg
}
