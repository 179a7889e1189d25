package factory_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/rates"
)

func TestParseRates_StandardPreset(t *testing.T) {
	f := factory.NewRateFactory()

	cfg, err := f.ParseRates(factory.StandardRatesJSON("2025.1", generic.NewPeriod(2025, time.April)))

	require.NoError(t, err)
	assert.Equal(t, "2025.1", cfg.Version)
	assert.Equal(t, generic.NewPeriod(2025, time.April), cfg.EffectiveFrom)
	assert.Equal(t, generic.Precision(2), cfg.Precision)
	assert.Equal(t, time.April, cfg.Fiscal.StartMonth)
	assert.Equal(t, "2", cfg.OvertimeMultiplier.String())
	assert.Equal(t, "12", cfg.RetirementFund.EmployeeRate.String())
	assert.Equal(t, "15000", cfg.RetirementFund.WageCeiling.String())
	assert.Equal(t, "0.75", cfg.HealthInsurance.EmployeeRate.String())
	assert.Equal(t, "21000", cfg.HealthInsurance.WageCeiling.String())
	require.Len(t, cfg.LocalTax, 3)
	assert.Nil(t, cfg.LocalTax[2].UpTo)
	require.Len(t, cfg.Withholding.Brackets, 7)
	assert.Equal(t, "4", cfg.Withholding.CessRate.String())
}

func TestParseRates_Defaults(t *testing.T) {
	cfg, err := factory.NewRateFactory().ParseRates(`{
		"version": "minimal",
		"effective_from": "2025-01",
		"retirement_fund": {"employee_rate": "12", "employer_rate": "12", "wage_ceiling": "15000"},
		"health_insurance": {"employee_rate": "0", "employer_rate": "0", "wage_ceiling": "0"},
		"withholding": {"standard_deduction": "0", "cess_rate": "0", "brackets": []}
	}`)

	require.NoError(t, err)
	assert.Equal(t, generic.DefaultPrecision, cfg.Precision)
	assert.Equal(t, time.January, cfg.Fiscal.StartMonth)
	assert.Equal(t, "8", cfg.StandardHoursPerDay.String())
	assert.Equal(t, "1", cfg.OvertimeMultiplier.String())
	assert.Empty(t, cfg.LocalTax)
}

func TestParseRates_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"version": `},
		{"bad period", `{"version": "v", "effective_from": "April"}`},
		{"fiscal month out of range", `{"version": "v", "effective_from": "2025-04", "fiscal_year_start": 13}`},
		{"no version", `{"effective_from": "2025-04"}`},
		{"unsorted local tax", `{"version": "v", "effective_from": "2025-04",
			"local_tax": [{"amount": "200"}, {"up_to": "100", "amount": "0"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewRateFactory().ParseRates(tt.json)
			require.Error(t, err)
			if tt.name != "malformed" {
				assert.ErrorIs(t, err, rates.ErrInvalidConfiguration)
			}
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewRateFactory()
	original := factory.MustStandardRates("2025.1", generic.NewPeriod(2025, time.April))

	data, err := json.Marshal(f.ToJSON(original))
	require.NoError(t, err)
	parsed, err := f.ParseRates(string(data))
	require.NoError(t, err)

	assert.Equal(t, original.Version, parsed.Version)
	assert.Equal(t, original.Fiscal, parsed.Fiscal)
	assert.True(t, original.HealthInsurance.EmployerRate.Equal(parsed.HealthInsurance.EmployerRate))
	require.Len(t, parsed.LocalTax, len(original.LocalTax))
	assert.True(t, original.LocalTax[1].UpTo.Equal(*parsed.LocalTax[1].UpTo))
	assert.True(t, original.AnnualTax(generic.MustParseDecimal("1200000")).Equal(parsed.AnnualTax(generic.MustParseDecimal("1200000"))))
}

func TestMustStandardRates_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { factory.MustStandardRates("", generic.NewPeriod(2025, time.April)) })
}
