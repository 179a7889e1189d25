package payrun

import (
	"context"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// INPUTS - read only, owned by other parts of the HR system
// =============================================================================

type EmployeeDirectory interface {
	// ActiveEmployees lists employees eligible for payroll in period.
	ActiveEmployees(ctx context.Context, orgID string, period generic.Period) ([]payroll.Employee, error)
}

// CompensationSource returns the config effective for period. A missing
// config is reported as an error wrapping generic.ErrNotFound.
type CompensationSource interface {
	Compensation(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) (*payroll.CompensationConfig, error)
}

// AttendanceSource reports a missing summary as generic.ErrNotFound.
type AttendanceSource interface {
	Attendance(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) (*payroll.AttendanceSummary, error)
}

type AdjustmentSource interface {
	Adjustments(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]payroll.Adjustment, error)
}

// Ledger is the part of deduction.Ledger a pay run uses.
type Ledger interface {
	DueForPeriod(ctx context.Context, id generic.AccountID, period generic.Period) (deduction.Due, error)
	DuesForEmployee(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]deduction.Due, error)
	CommitBatch(ctx context.Context, period generic.Period, recoveries []deduction.Recovery, ref deduction.Ref) ([]deduction.Result, error)
	Hold(ids []generic.AccountID) func()
}

// =============================================================================
// OUTPUTS
// =============================================================================

// Repository stores runs and their lines.
type Repository interface {
	// CreateRun inserts a new run. It fails with ErrRunExists if a
	// non-cancelled run for the same organization and period exists.
	CreateRun(ctx context.Context, run *PayRun) error

	// UpdateRun saves run if its stored Version equals run.Version and
	// bumps it; otherwise generic.ErrConcurrentModification.
	UpdateRun(ctx context.Context, run *PayRun) error

	// ReplaceLines updates run like UpdateRun and replaces all its lines in
	// the same transaction.
	ReplaceLines(ctx context.Context, run *PayRun, lines []*payroll.PayLine) error

	GetRun(ctx context.Context, id string) (*PayRun, error)
	ListRuns(ctx context.Context, orgID string) ([]*PayRun, error)
	RunsForPeriod(ctx context.Context, orgID string, period generic.Period) ([]*PayRun, error)

	// RunsWithStatus returns the runs of every organization in any of
	// statuses.
	RunsWithStatus(ctx context.Context, statuses ...Status) ([]*PayRun, error)

	// Lines returns a run's lines ordered by employee id.
	Lines(ctx context.Context, runID string) ([]*payroll.PayLine, error)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

const (
	RoleApprover = "payroll_approver"
	RoleAdmin    = "admin"
)

type Authorizer interface {
	CanApprove(ctx context.Context, actor Actor, run *PayRun) error
}

// RoleAuthorizer allows actors holding any of Roles.
type RoleAuthorizer struct {
	Roles []string
}

func DefaultAuthorizer() RoleAuthorizer {
	return RoleAuthorizer{Roles: []string{RoleApprover, RoleAdmin}}
}

func (a RoleAuthorizer) CanApprove(_ context.Context, actor Actor, _ *PayRun) error {
	for _, role := range a.Roles {
		if actor.HasRole(role) {
			return nil
		}
	}
	return ErrUnauthorized
}
