package payroll

import (
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingConfig means no compensation config is effective for the period.
	ErrMissingConfig = errors.New("missing compensation config")

	// ErrInvalidConfig means the config exists but cannot be computed from.
	ErrInvalidConfig = errors.New("invalid compensation config")

	// ErrMissingAttendance means no attendance summary and no fallback.
	ErrMissingAttendance = errors.New("missing attendance summary")

	// ErrAttendanceInconsistent means payable + non-payable > working days,
	// or a negative/zero count.
	ErrAttendanceInconsistent = errors.New("attendance inconsistent")

	// ErrMissingRates means the calculator was called without rates.
	ErrMissingRates = errors.New("missing rate configuration")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// CalculationError ties an input error to the employee it blocks.
type CalculationError struct {
	EmployeeID generic.EmployeeID
	Err        error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("employee %s: %v", e.EmployeeID, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err blocks a single employee's line rather
// than the batch.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingAttendance) ||
		errors.Is(err, ErrAttendanceInconsistent)
}
