package payrun

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/rates"
)

// Config tunes processing.
type Config struct {
	// Workers bounds concurrent line computations.
	Workers int
	// BatchDeadline bounds one Process call; zero means no deadline.
	BatchDeadline time.Duration
	// AttendanceFallback applies when an employee has no summary.
	AttendanceFallback Fallback
	// DefaultWorkingDays is used by FallbackFull; zero means the period's
	// weekdays.
	DefaultWorkingDays int
}

func DefaultConfig() Config {
	return Config{
		Workers:            8,
		BatchDeadline:      2 * time.Minute,
		AttendanceFallback: FallbackNone,
	}
}

// Deps are the orchestrator's collaborators. Adjustments, Authorizer,
// Recorder and Logger are optional.
type Deps struct {
	Runs         Repository
	Employees    EmployeeDirectory
	Compensation CompensationSource
	Attendance   AttendanceSource
	Adjustments  AdjustmentSource
	Rates        rates.Source
	Ledger       Ledger
	Authorizer   Authorizer
	Recorder     *audit.Recorder
	Logger       *zap.Logger
}

type Orchestrator struct {
	deps   Deps
	cfg    Config
	calc   *payroll.Calculator
	logger *zap.Logger
	now    func() time.Time

	runLocks keyedMutex
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Authorizer == nil {
		deps.Authorizer = DefaultAuthorizer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.AttendanceFallback == "" {
		cfg.AttendanceFallback = FallbackNone
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		calc:     payroll.NewCalculator(),
		logger:   logger.Named("payrun"),
		now:      time.Now,
		runLocks: keyedMutex{held: make(map[string]*keyedEntry)},
	}
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// =============================================================================
// CREATE
// =============================================================================

// Create opens a draft run for the period.
func (o *Orchestrator) Create(ctx context.Context, orgID string, period generic.Period, actor Actor) (*PayRun, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization is required", ErrInvalidRequest)
	}
	if period.IsZero() {
		return nil, fmt.Errorf("%w: period is required", ErrInvalidRequest)
	}

	unlock := o.runLocks.lock(orgID + "/" + period.String())
	defer unlock()

	existing, err := o.deps.Runs.RunsForPeriod(ctx, orgID, period)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Status != StatusCancelled {
			return nil, fmt.Errorf("%w: %s (%s)", ErrRunExists, r.ID, r.Status)
		}
	}

	run := o.newRun(orgID, period, nextRevision(existing), actor)
	if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	o.logger.Info("pay run created",
		zap.String("run_id", run.ID), zap.String("org_id", orgID), zap.Stringer("period", period))
	if err := o.transitioned(ctx, run, "", actor); err != nil {
		return run, err
	}
	return run, nil
}

// Revise opens the next revision of a paid run as a draft.
func (o *Orchestrator) Revise(ctx context.Context, runID string, actor Actor) (*PayRun, error) {
	paid, err := o.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if paid.Status != StatusPaid {
		return nil, fmt.Errorf("%w: only paid runs can be revised, %s is %s", ErrInvalidTransition, paid.ID, paid.Status)
	}

	unlock := o.runLocks.lock(paid.OrgID + "/" + paid.Period.String())
	defer unlock()

	existing, err := o.deps.Runs.RunsForPeriod(ctx, paid.OrgID, paid.Period)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.IsActive() {
			return nil, fmt.Errorf("%w: %s (%s)", ErrRunExists, r.ID, r.Status)
		}
		if r.Status == StatusPaid && r.Revision > paid.Revision {
			return nil, fmt.Errorf("%w: revision %d is paid", ErrRunSuperseded, r.Revision)
		}
	}

	run := o.newRun(paid.OrgID, paid.Period, nextRevision(existing), actor)
	run.SupersedesID = paid.ID
	if err := o.deps.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	o.logger.Info("pay run revision opened",
		zap.String("run_id", run.ID), zap.String("supersedes", paid.ID), zap.Int("revision", run.Revision))
	if err := o.transitioned(ctx, run, "", actor); err != nil {
		return run, err
	}
	return run, nil
}

func (o *Orchestrator) newRun(orgID string, period generic.Period, revision int, actor Actor) *PayRun {
	now := o.now().UTC()
	return &PayRun{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Period:    period,
		Revision:  revision,
		Status:    StatusDraft,
		Totals:    zeroTotals(),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func nextRevision(runs []*PayRun) int {
	rev := 0
	for _, r := range runs {
		if r.Revision > rev {
			rev = r.Revision
		}
	}
	return rev + 1
}

// =============================================================================
// PROCESS
// =============================================================================

// outcome is one employee's slot in the batch.
type outcome struct {
	line    *payroll.PayLine
	failure *Failure
}

// Process computes every line of the run from scratch. Fatal conditions
// (no rates, no employees) abort before any computation. Employees whose
// inputs are missing or invalid are listed in Failures; the rest get lines.
// Lines from an earlier Process are replaced.
func (o *Orchestrator) Process(ctx context.Context, runID string, actor Actor) (*PayRun, error) {
	unlock := o.runLocks.lock(runID)
	defer unlock()

	run, err := o.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(run, StatusProcessed); err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("run_id", run.ID), zap.Stringer("period", run.Period))

	rateCfg, err := o.deps.Rates.RatesFor(ctx, run.Period)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", run.ID, err)
	}

	employees, err := o.deps.Employees.ActiveEmployees(ctx, run.OrgID, run.Period)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	if len(employees) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoEligibleEmployees, run.OrgID, run.Period)
	}
	// One snapshot for the whole batch, in id order.
	sort.Slice(employees, func(i, j int) bool { return employees[i].ID < employees[j].ID })

	history, err := o.taxHistory(ctx, run, rateCfg)
	if err != nil {
		return nil, fmt.Errorf("load tax history: %w", err)
	}

	started := o.now()
	outcomes, err := o.computeAll(ctx, run, employees, rateCfg, history)
	if err != nil {
		log.Warn("pay run processing aborted", zap.Error(err), zap.Bool("retryable", IsRetryable(err)))
		return nil, err
	}

	lines := make([]*payroll.PayLine, 0, len(outcomes))
	failures := make([]Failure, 0)
	for _, oc := range outcomes {
		if oc.failure != nil {
			failures = append(failures, *oc.failure)
			continue
		}
		lines = append(lines, oc.line)
	}

	from := run.Status
	now := o.now().UTC()
	run.Status = StatusProcessed
	run.EmployeeIDs = make([]generic.EmployeeID, len(employees))
	for i, e := range employees {
		run.EmployeeIDs[i] = e.ID
	}
	run.Totals = totalsOf(lines)
	run.Failures = failures
	run.RateVersion = rateCfg.Version
	run.ProcessedBy = actor.ID
	run.ProcessedAt = &now
	run.UpdatedAt = now

	if err := o.deps.Runs.ReplaceLines(ctx, run, lines); err != nil {
		return nil, fmt.Errorf("save pay run %s: %w", run.ID, err)
	}

	for _, line := range lines {
		if err := o.deps.Recorder.LineComputed(ctx, run.ID, line.ID, run.Period, line); err != nil {
			return run, err
		}
	}
	if err := o.transitioned(ctx, run, from, actor); err != nil {
		return run, err
	}

	log.Info("pay run processed",
		zap.Int("employees", len(employees)),
		zap.Int("lines", len(lines)),
		zap.Int("failures", len(failures)),
		zap.Int("flagged", run.Totals.FlaggedLines),
		zap.Duration("took", o.now().Sub(started)))
	return run, nil
}

// computeAll runs the bounded worker pool. Results keep the employee order.
func (o *Orchestrator) computeAll(ctx context.Context, run *PayRun, employees []payroll.Employee, rateCfg *rates.Configuration, history map[generic.EmployeeID]payroll.TaxHistory) ([]outcome, error) {
	bctx := ctx
	if o.cfg.BatchDeadline > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, o.cfg.BatchDeadline)
		defer cancel()
	}

	outcomes := make([]outcome, len(employees))
	err := forEach(bctx, o.cfg.Workers, len(employees), func(ctx context.Context, i int) error {
		oc, err := o.computeOne(ctx, run, employees[i], rateCfg, history[employees[i].ID])
		if err != nil {
			return err
		}
		outcomes[i] = oc
		return nil
	})
	if err != nil {
		if errors.Is(bctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: after %s", ErrBatchDeadlineExceeded, o.cfg.BatchDeadline)
		}
		return nil, err
	}
	return outcomes, nil
}

// computeOne gathers one employee's inputs and computes the line. Input
// problems become a Failure; only infrastructure errors are returned.
func (o *Orchestrator) computeOne(ctx context.Context, run *PayRun, emp payroll.Employee, rateCfg *rates.Configuration, history payroll.TaxHistory) (outcome, error) {
	fail := func(err error) (outcome, error) {
		return outcome{failure: &Failure{EmployeeID: emp.ID, Code: failureCode(err), Message: err.Error()}}, nil
	}

	cfg, err := o.deps.Compensation.Compensation(ctx, emp.ID, run.Period)
	switch {
	case generic.IsNotFound(err):
		return fail(&payroll.CalculationError{EmployeeID: emp.ID, Err: payroll.ErrMissingConfig})
	case err != nil:
		return outcome{}, fmt.Errorf("load compensation for %s: %w", emp.ID, err)
	}

	att, err := o.deps.Attendance.Attendance(ctx, emp.ID, run.Period)
	switch {
	case generic.IsNotFound(err):
		if o.cfg.AttendanceFallback != FallbackFull {
			return fail(&payroll.CalculationError{EmployeeID: emp.ID, Err: payroll.ErrMissingAttendance})
		}
		days := o.cfg.DefaultWorkingDays
		if days <= 0 {
			days = run.Period.Weekdays()
		}
		fallback := payroll.FullAttendance(emp.ID, run.Period, days)
		att = &fallback
	case err != nil:
		return outcome{}, fmt.Errorf("load attendance for %s: %w", emp.ID, err)
	}

	var adjustments []payroll.Adjustment
	if o.deps.Adjustments != nil {
		adjustments, err = o.deps.Adjustments.Adjustments(ctx, emp.ID, run.Period)
		if err != nil {
			return outcome{}, fmt.Errorf("load adjustments for %s: %w", emp.ID, err)
		}
	}

	var dues []payroll.LedgerDue
	if o.deps.Ledger != nil {
		ds, err := o.deps.Ledger.DuesForEmployee(ctx, emp.ID, run.Period)
		if err != nil {
			return outcome{}, fmt.Errorf("load dues for %s: %w", emp.ID, err)
		}
		for _, d := range ds {
			dues = append(dues, d.LedgerDue())
		}
	}

	line, err := o.calc.Compute(payroll.Input{
		RunID:       run.ID,
		Period:      run.Period,
		Employee:    emp,
		Config:      cfg,
		Attendance:  att,
		Rates:       rateCfg,
		Dues:        dues,
		Adjustments: adjustments,
		History:     history,
	})
	if err != nil {
		var calcErr *payroll.CalculationError
		if errors.As(err, &calcErr) {
			return fail(err)
		}
		return outcome{}, err
	}
	return outcome{line: line}, nil
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, payroll.ErrMissingConfig):
		return "missing_config"
	case errors.Is(err, payroll.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, payroll.ErrMissingAttendance):
		return "missing_attendance"
	case errors.Is(err, payroll.ErrAttendanceInconsistent):
		return "attendance_inconsistent"
	default:
		return "calculation_failed"
	}
}

// taxHistory sums taxable income and withholding from paid runs earlier in
// the same fiscal year, using the latest paid revision of each period.
func (o *Orchestrator) taxHistory(ctx context.Context, run *PayRun, rateCfg *rates.Configuration) (map[generic.EmployeeID]payroll.TaxHistory, error) {
	first := rateCfg.Fiscal.FirstPeriod(run.Period)

	runs, err := o.deps.Runs.ListRuns(ctx, run.OrgID)
	if err != nil {
		return nil, err
	}
	latest := make(map[generic.Period]*PayRun)
	for _, r := range runs {
		if r.Status != StatusPaid || r.Period.Before(first) || !r.Period.Before(run.Period) {
			continue
		}
		if cur, ok := latest[r.Period]; !ok || r.Revision > cur.Revision {
			latest[r.Period] = r
		}
	}

	history := make(map[generic.EmployeeID]payroll.TaxHistory)
	for _, r := range latest {
		lines, err := o.deps.Runs.Lines(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			h := history[line.Employee.ID]
			h.TaxableToDate = h.TaxableToDate.Add(line.TaxableIncome)
			h.WithheldToDate = h.WithheldToDate.Add(line.WithholdingTax)
			history[line.Employee.ID] = h
		}
	}
	return history, nil
}

func zeroTotals() Totals {
	return Totals{
		Gross:                 decimal.Zero,
		Deductions:            decimal.Zero,
		Net:                   decimal.Zero,
		EmployerContributions: decimal.Zero,
		LedgerRecoveries:      decimal.Zero,
		WithholdingTax:        decimal.Zero,
	}
}

func totalsOf(lines []*payroll.PayLine) Totals {
	t := zeroTotals()
	t.Employees = len(lines)
	for _, l := range lines {
		t.Gross = t.Gross.Add(l.Gross)
		t.Deductions = t.Deductions.Add(l.TotalDeductions)
		t.Net = t.Net.Add(l.Net)
		for _, c := range l.EmployerContributions {
			t.EmployerContributions = t.EmployerContributions.Add(c.Amount)
		}
		t.LedgerRecoveries = t.LedgerRecoveries.Add(l.LedgerTotal())
		t.WithholdingTax = t.WithholdingTax.Add(l.WithholdingTax)
		if len(l.Flags) > 0 {
			t.FlaggedLines++
		}
	}
	return t
}

// =============================================================================
// REVIEW, APPROVAL, PAYMENT
// =============================================================================

// SubmitForReview moves a clean processed run to review.
func (o *Orchestrator) SubmitForReview(ctx context.Context, runID string, actor Actor) (*PayRun, error) {
	return o.advance(ctx, runID, StatusInReview, actor, func(run *PayRun) error {
		return checkClean(run)
	})
}

// Approve records the approver. The approver must be authorized and must not
// be the actor who processed the run.
func (o *Orchestrator) Approve(ctx context.Context, runID string, actor Actor) (*PayRun, error) {
	return o.advance(ctx, runID, StatusApproved, actor, func(run *PayRun) error {
		if err := o.deps.Authorizer.CanApprove(ctx, actor, run); err != nil {
			return err
		}
		if actor.ID == "" || actor.ID == run.ProcessedBy {
			return ErrSelfApproval
		}
		if err := checkClean(run); err != nil {
			return err
		}
		now := o.now().UTC()
		run.ApprovedBy = actor.ID
		run.ApprovedAt = &now
		return nil
	})
}

// MarkPaid commits every line's ledger dues in one batch, then locks the
// run. If saving the run fails after the commit, calling MarkPaid again
// completes it: the commits come back as duplicates.
func (o *Orchestrator) MarkPaid(ctx context.Context, runID string, actor Actor) (*PayRun, error) {
	return o.advance(ctx, runID, StatusPaid, actor, func(run *PayRun) error {
		lines, err := o.deps.Runs.Lines(ctx, run.ID)
		if err != nil {
			return err
		}
		var recoveries []deduction.Recovery
		for _, line := range lines {
			for _, due := range line.LedgerDues {
				if !due.Amount.IsZero() {
					recoveries = append(recoveries, deduction.Recovery{AccountID: due.AccountID, Amount: due.Amount})
				}
			}
		}
		if len(recoveries) > 0 {
			if o.deps.Ledger == nil {
				return fmt.Errorf("%w: run has ledger dues but no ledger is configured", ErrInvalidRequest)
			}
			results, err := o.deps.Ledger.CommitBatch(ctx, run.Period, recoveries, deduction.Ref{ID: run.ID, Actor: actor.ID})
			if err != nil {
				return fmt.Errorf("commit ledger recoveries: %w", err)
			}
			duplicates := 0
			for _, r := range results {
				if r.Duplicate {
					duplicates++
				}
			}
			o.logger.Info("ledger recoveries committed",
				zap.String("run_id", run.ID), zap.Int("recoveries", len(results)), zap.Int("duplicates", duplicates))
		}

		now := o.now().UTC()
		run.Locked = true
		run.PaidBy = actor.ID
		run.PaidAt = &now
		return nil
	})
}

// Cancel abandons a run before approval. No ledger state is touched.
func (o *Orchestrator) Cancel(ctx context.Context, runID string, actor Actor, reason string) (*PayRun, error) {
	return o.advance(ctx, runID, StatusCancelled, actor, func(run *PayRun) error {
		now := o.now().UTC()
		run.CancelledBy = actor.ID
		run.CancelledAt = &now
		run.CancelReason = reason
		return nil
	})
}

// advance applies a guarded status change under the run lock. Entering a
// status that pins ledger dues also holds the run's accounts until the new
// status is saved.
func (o *Orchestrator) advance(ctx context.Context, runID string, to Status, actor Actor, apply func(*PayRun) error) (*PayRun, error) {
	unlock := o.runLocks.lock(runID)
	defer unlock()

	run, err := o.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(run, to); err != nil {
		return nil, err
	}
	if err := apply(run); err != nil {
		return nil, err
	}
	if pinsDues(to) {
		release, err := o.holdDues(ctx, run)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	from := run.Status
	run.Status = to
	run.UpdatedAt = o.now().UTC()
	if err := o.deps.Runs.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save pay run %s: %w", run.ID, err)
	}
	o.logger.Info("pay run transition",
		zap.String("run_id", run.ID), zap.String("from", string(from)), zap.String("to", string(to)), zap.String("actor", actor.ID))
	if err := o.transitioned(ctx, run, from, actor); err != nil {
		return run, err
	}
	return run, nil
}

// holdDues locks the accounts the run recovers from and checks each
// recorded due against the ledger.
func (o *Orchestrator) holdDues(ctx context.Context, run *PayRun) (func(), error) {
	noop := func() {}
	if o.deps.Ledger == nil {
		return noop, nil
	}
	lines, err := o.deps.Runs.Lines(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	recorded := make(map[generic.AccountID]decimal.Decimal)
	var ids []generic.AccountID
	for _, line := range lines {
		for _, due := range line.LedgerDues {
			if due.Amount.IsZero() {
				continue
			}
			ids = append(ids, due.AccountID)
			recorded[due.AccountID] = due.Amount
		}
	}
	if len(ids) == 0 {
		return noop, nil
	}

	release := o.deps.Ledger.Hold(ids)
	for _, id := range ids {
		current, err := o.deps.Ledger.DueForPeriod(ctx, id, run.Period)
		if err != nil {
			release()
			return nil, fmt.Errorf("check due of %s: %w", id, err)
		}
		if !current.Amount.Equal(recorded[id]) {
			release()
			return nil, fmt.Errorf("%w: account %s recorded %s, ledger now %s",
				ErrStaleDues, id, recorded[id], current.Amount)
		}
	}
	return release, nil
}

func checkClean(run *PayRun) error {
	if len(run.Failures) > 0 {
		return fmt.Errorf("%w: %d employees", ErrRunHasFailures, len(run.Failures))
	}
	if run.Totals.FlaggedLines > 0 {
		return fmt.Errorf("%w: %d lines", ErrNegativeNetPay, run.Totals.FlaggedLines)
	}
	return nil
}

func (o *Orchestrator) transitioned(ctx context.Context, run *PayRun, from Status, actor Actor) error {
	return o.deps.Recorder.Transition(ctx, run.ID, run.Period, string(from), string(run.Status), actor.ID)
}

// =============================================================================
// QUERIES
// =============================================================================

func (o *Orchestrator) Get(ctx context.Context, runID string) (*PayRun, error) {
	return o.deps.Runs.GetRun(ctx, runID)
}

func (o *Orchestrator) List(ctx context.Context, orgID string) ([]*PayRun, error) {
	return o.deps.Runs.ListRuns(ctx, orgID)
}

func (o *Orchestrator) Lines(ctx context.Context, runID string) ([]*payroll.PayLine, error) {
	if _, err := o.Get(ctx, runID); err != nil {
		return nil, err
	}
	return o.deps.Runs.Lines(ctx, runID)
}

// keyedMutex hands out one mutex per key. An entry is dropped when its last
// holder or waiter releases it.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &keyedEntry{}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.held)
}
