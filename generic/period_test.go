package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// PERIOD
// =============================================================================

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    generic.Period
		wantErr bool
	}{
		{"2025-04", generic.NewPeriod(2025, time.April), false},
		{"1999-12", generic.NewPeriod(1999, time.December), false},
		{"2025-4", generic.Period{}, true},
		{"2025-13", generic.Period{}, true},
		{"04/2025", generic.Period{}, true},
		{"", generic.Period{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := generic.ParsePeriod(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, generic.ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestPeriod_Arithmetic(t *testing.T) {
	p := generic.NewPeriod(2025, time.November)

	assert.Equal(t, generic.NewPeriod(2026, time.January), p.AddMonths(2))
	assert.Equal(t, generic.NewPeriod(2024, time.December), p.AddMonths(-11))
	assert.Equal(t, generic.NewPeriod(2025, time.December), p.Next())
	assert.Equal(t, generic.NewPeriod(2025, time.October), p.Prev())
	assert.Equal(t, 14, p.MonthsSince(generic.NewPeriod(2024, time.September)))

	assert.True(t, p.Before(p.Next()))
	assert.True(t, p.After(p.Prev()))
	assert.True(t, p.BeforeOrEqual(p))
	assert.True(t, p.Equal(generic.PeriodOf(time.Date(2025, time.November, 30, 23, 0, 0, 0, time.UTC))))
}

func TestPeriod_Bounds(t *testing.T) {
	feb := generic.NewPeriod(2024, time.February)

	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), feb.Start())
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), feb.End())
	assert.Equal(t, 21, feb.Weekdays())
	assert.Equal(t, 22, generic.NewPeriod(2025, time.April).Weekdays())
	assert.Equal(t, 20, generic.NewPeriod(2025, time.February).Weekdays())
}

func TestPeriod_JSON(t *testing.T) {
	type wrapper struct {
		P generic.Period `json:"p"`
	}

	data, err := json.Marshal(wrapper{P: generic.NewPeriod(2025, time.April)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"2025-04"}`, string(data))

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":""}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"p":""}`), &w))
	assert.True(t, w.P.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"p":"2026-01"}`), &w))
	assert.Equal(t, generic.NewPeriod(2026, time.January), w.P)

	assert.Error(t, json.Unmarshal([]byte(`{"p":"January"}`), &w))
}

// =============================================================================
// FISCAL CALENDAR
// =============================================================================

func TestFiscalCalendar(t *testing.T) {
	tests := []struct {
		name      string
		start     time.Month
		period    generic.Period
		first     generic.Period
		last      generic.Period
		remaining int
		label     string
	}{
		{
			name: "calendar year", start: time.January, period: generic.NewPeriod(2025, time.June),
			first: generic.NewPeriod(2025, time.January), last: generic.NewPeriod(2025, time.December),
			remaining: 7, label: "FY2025",
		},
		{
			name: "april start, before april", start: time.April, period: generic.NewPeriod(2025, time.February),
			first: generic.NewPeriod(2024, time.April), last: generic.NewPeriod(2025, time.March),
			remaining: 2, label: "FY2024-25",
		},
		{
			name: "april start, first month", start: time.April, period: generic.NewPeriod(2025, time.April),
			first: generic.NewPeriod(2025, time.April), last: generic.NewPeriod(2026, time.March),
			remaining: 12, label: "FY2025-26",
		},
		{
			name: "invalid start falls back to january", start: 0, period: generic.NewPeriod(2025, time.March),
			first: generic.NewPeriod(2025, time.January), last: generic.NewPeriod(2025, time.December),
			remaining: 10, label: "FY2025",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := generic.FiscalCalendar{StartMonth: tt.start}
			assert.Equal(t, tt.first, fc.FirstPeriod(tt.period))
			assert.Equal(t, tt.last, fc.LastPeriod(tt.period))
			assert.Equal(t, tt.remaining, fc.RemainingPeriods(tt.period))
			assert.Equal(t, tt.label, fc.Label(tt.period))
		})
	}
}

// =============================================================================
// MONEY
// =============================================================================

func TestPrecision(t *testing.T) {
	p := generic.DefaultPrecision

	assert.Equal(t, "4583.33", p.Round(decimal.NewFromInt(55000).Div(decimal.NewFromInt(12))).String())
	assert.Equal(t, "0.13", p.Round(generic.MustParseDecimal("0.125")).String())
	assert.Equal(t, "-0.13", p.Round(generic.MustParseDecimal("-0.125")).String())
	assert.Equal(t, "0.01", p.Unit().String())
	assert.Equal(t, "1", generic.Precision(0).Unit().String())
	assert.Equal(t, "1800", p.Percent(decimal.NewFromInt(15000), decimal.NewFromInt(12)).String())
	assert.Equal(t, "112.5", p.Percent(decimal.NewFromInt(15000), generic.MustParseDecimal("0.75")).String())
}

func TestMoneyHelpers(t *testing.T) {
	assert.True(t, generic.Sum().IsZero())
	assert.Equal(t, "6.5", generic.Sum(decimal.NewFromInt(1), generic.MustParseDecimal("2.5"), decimal.NewFromInt(3)).String())
	assert.True(t, generic.NonNegative(decimal.NewFromInt(-5)).IsZero())
	assert.Equal(t, "5", generic.NonNegative(decimal.NewFromInt(5)).String())
	assert.True(t, generic.MustParseDecimal("not a number").IsZero())
}
