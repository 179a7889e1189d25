package payrun

import (
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/rates"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrRunNotFound = errors.New("pay run not found")

	// ErrRunExists is returned when the period already has a run that is
	// not cancelled.
	ErrRunExists = errors.New("pay run already exists for period")

	ErrInvalidTransition = errors.New("invalid pay run transition")
	ErrRunLocked         = errors.New("pay run is locked")
	ErrRunSuperseded     = errors.New("pay run has a newer revision")

	// Fatal: abort processing before any line is computed.
	ErrNoEligibleEmployees = errors.New("no eligible employees for period")
	ErrRatesNotFound       = rates.ErrRatesNotFound

	// ErrBatchDeadlineExceeded leaves the run unchanged. Processing again
	// is always safe.
	ErrBatchDeadlineExceeded = errors.New("pay run batch deadline exceeded")

	ErrRunHasFailures = errors.New("pay run has failed employees")

	// ErrStaleDues is returned when a line's ledger dues no longer match the
	// ledger. Processing again picks up the current dues.
	ErrStaleDues = errors.New("pay run ledger dues are stale")
	ErrNegativeNetPay = errors.New("pay run has negative net pay lines")

	ErrUnauthorized = errors.New("actor may not approve pay runs")
	ErrSelfApproval = errors.New("approver must differ from the processor")

	ErrInvalidRequest = errors.New("invalid pay run request")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type TransitionError struct {
	RunID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("pay run %s: cannot go from %s to %s", e.RunID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports errors that may succeed if the operation is repeated
// unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBatchDeadlineExceeded) || generic.IsRetryable(err)
}

// IsForbidden reports authorization failures.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSelfApproval)
}

// IsConflict reports errors caused by the run's current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRunExists) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRunLocked) ||
		errors.Is(err, ErrRunSuperseded) ||
		errors.Is(err, generic.ErrConcurrentModification)
}

// IsUnprocessable reports a run that cannot advance until inputs are fixed.
func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrNoEligibleEmployees) ||
		errors.Is(err, ErrRatesNotFound) ||
		errors.Is(err, ErrRunHasFailures) ||
		errors.Is(err, ErrNegativeNetPay) ||
		errors.Is(err, ErrStaleDues)
}
