package deduction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when an account id is unknown.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountNotActive is returned when mutating a closed account.
	ErrAccountNotActive = errors.New("account not active")

	// ErrInvalidRequest is returned for unusable loan or advance terms.
	ErrInvalidRequest = errors.New("invalid account request")

	// ErrPrepaymentExceedsBalance is returned when prepaying more than is
	// outstanding.
	ErrPrepaymentExceedsBalance = errors.New("prepayment exceeds outstanding balance")

	// ErrDueMismatch is returned when a commit amount differs from the due.
	// The caller computed its amount from stale state.
	ErrDueMismatch = errors.New("commit amount does not match due")

	// ErrDuesPinned is returned when mutating an account whose dues are held
	// by a pay run between review and payment.
	ErrDuesPinned = errors.New("account dues are held by a pay run")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DueMismatchError carries both amounts of a stale commit.
type DueMismatchError struct {
	AccountID generic.AccountID
	Period    generic.Period
	Expected  decimal.Decimal
	Got       decimal.Decimal
}

func (e *DueMismatchError) Error() string {
	return fmt.Sprintf("account %s period %s: due is %s, commit asked for %s",
		e.AccountID, e.Period, e.Expected, e.Got)
}

func (e *DueMismatchError) Unwrap() error {
	return ErrDueMismatch
}

// PinnedError names the pay run holding an account's dues.
type PinnedError struct {
	AccountID generic.AccountID
	RunID     string
}

func (e *PinnedError) Error() string {
	return fmt.Sprintf("account %s: dues are held by pay run %s until it is paid or cancelled", e.AccountID, e.RunID)
}

func (e *PinnedError) Unwrap() error {
	return ErrDuesPinned
}

func notFound(id generic.AccountID) error {
	return fmt.Errorf("%w: %w", ErrAccountNotFound, &generic.NotFoundError{Kind: "account", ID: string(id)})
}

// IsClientError reports errors caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrPrepaymentExceedsBalance) ||
		errors.Is(err, ErrAccountNotActive) ||
		errors.Is(err, generic.ErrInvalidAmount) ||
		errors.Is(err, generic.ErrInvalidPeriod)
}
