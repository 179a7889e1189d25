package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - A calendar month, the unit of payroll
// =============================================================================

// Period identifies one pay month. Runs, attendance, dues and ledger commits
// are all keyed by it.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// ParsePeriod accepts the "2006-01" form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func PeriodOf(t time.Time) Period { return Period{Year: t.Year(), Month: t.Month()} }

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }
func (p Period) IsZero() bool   { return p.Year == 0 && p.Month == 0 }

func (p Period) Start() time.Time { return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC) }
func (p Period) End() time.Time   { return p.Start().AddDate(0, 1, -1) }

// MarshalText writes the zero period as an empty string.
func (p Period) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Index is a monotonic month counter used for ordering and distance.
func (p Period) Index() int { return p.Year*12 + int(p.Month) - 1 }

func periodFromIndex(i int) Period { return Period{Year: i / 12, Month: time.Month(i%12 + 1)} }

func (p Period) AddMonths(n int) Period { return periodFromIndex(p.Index() + n) }
func (p Period) Next() Period           { return p.AddMonths(1) }
func (p Period) Prev() Period           { return p.AddMonths(-1) }

func (p Period) Before(o Period) bool        { return p.Index() < o.Index() }
func (p Period) After(o Period) bool         { return p.Index() > o.Index() }
func (p Period) Equal(o Period) bool         { return p.Index() == o.Index() }
func (p Period) BeforeOrEqual(o Period) bool { return p.Index() <= o.Index() }

// MonthsSince returns how many months p is after o (negative when before).
func (p Period) MonthsSince(o Period) int { return p.Index() - o.Index() }

// Weekdays counts Monday-Friday days in the month.
func (p Period) Weekdays() int {
	n := 0
	for d := p.Start(); !d.After(p.End()); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// =============================================================================
// FISCAL CALENDAR - Which fiscal year a period falls into
// =============================================================================

// FiscalCalendar defines the fiscal year by its first month.
//
// Examples:
//   - January start: Jan - Dec
//   - April start:   Apr - Mar
type FiscalCalendar struct {
	StartMonth time.Month
}

// FirstPeriod returns the first period of the fiscal year containing p.
func (fc FiscalCalendar) FirstPeriod(p Period) Period {
	start := fc.StartMonth
	if start < time.January || start > time.December {
		start = time.January
	}
	first := Period{Year: p.Year, Month: start}
	// Before the fiscal start month we're still in the previous fiscal year
	if p.Before(first) {
		first.Year--
	}
	return first
}

// LastPeriod returns the final period of the fiscal year containing p.
func (fc FiscalCalendar) LastPeriod(p Period) Period {
	return fc.FirstPeriod(p).AddMonths(11)
}

// RemainingPeriods counts the periods from p to fiscal year end, p included.
func (fc FiscalCalendar) RemainingPeriods(p Period) int {
	return fc.LastPeriod(p).MonthsSince(p) + 1
}

// Label names the fiscal year, e.g. "FY2025" or "FY2025-26".
func (fc FiscalCalendar) Label(p Period) string {
	first := fc.FirstPeriod(p)
	if first.Month == time.January {
		return fmt.Sprintf("FY%d", first.Year)
	}
	return fmt.Sprintf("FY%d-%02d", first.Year, (first.Year+1)%100)
}
