/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes pay runs, the deduction ledger, rate configurations and the audit
  trail via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Pay runs:
    GET    /api/runs?org_id=            List an organization's runs, newest first
    POST   /api/runs                    Open a draft run
    GET    /api/runs/{id}               Run header with totals and failures
    GET    /api/runs/{id}/lines         Computed pay lines
    POST   /api/runs/{id}/process       Compute (or recompute) every line
    POST   /api/runs/{id}/submit        Send a clean run to review
    POST   /api/runs/{id}/approve       Approve (approver role, not the processor)
    POST   /api/runs/{id}/pay           Commit ledger recoveries and lock
    POST   /api/runs/{id}/cancel        Abandon before approval
    POST   /api/runs/{id}/revise        Open the next revision of a paid run

  Accounts:
    POST   /api/accounts/loans          Open a loan
    POST   /api/accounts/advances       Open a salary advance
    GET    /api/accounts/{id}           Account with schedule and balance
    GET    /api/accounts/{id}/due       Due for ?period=
    GET    /api/accounts/{id}/entries   Ledger entries
    POST   /api/accounts/{id}/prepay    Early settlement
    POST   /api/accounts/{id}/write-off Abandon the remaining balance

  Inputs:
    GET    /api/employees?org_id=&period=       Employees eligible in a period
    POST   /api/employees                       Create or replace an employee
    PUT    /api/employees/{id}/compensation     Effective-dated compensation
    PUT    /api/employees/{id}/attendance/{p}   Attendance summary for a period
    POST   /api/employees/{id}/adjustments      One-off addition or deduction
    GET    /api/employees/{id}/accounts         Employee's loans and advances
    GET    /api/employees/{id}/dues?period=     Employee's dues for a period

  Rates and audit:
    GET    /api/rates                   All rate versions
    POST   /api/rates                   Add a version (versions are immutable)
    GET    /api/audit                   Query the audit trail

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid token
  - 403: Actor may not perform the operation
  - 404: Resource not found
  - 409: Conflict with the current state (transition, duplicate, stale)
  - 422: Run or account cannot advance until its inputs are fixed
  - 503: Retryable (batch deadline)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payrun"
	"github.com/warp/payroll-engine/rates"
	"github.com/warp/payroll-engine/store/sqlite"
)

const (
	timeFormat   = time.RFC3339
	maxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Runs        *payrun.Orchestrator
	Ledger      *deduction.Ledger
	Rates       *rates.LoadingSource
	RateFactory *factory.RateFactory

	logger *zap.Logger

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the ledger, rate source and orchestrator over store.
// Every component records to the store's audit log.
func NewHandler(store *sqlite.Store, settings payrun.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := audit.NewRecorder(store.Audit())
	ledger := deduction.NewLedger(store.Ledger(),
		deduction.WithRecorder(recorder),
		deduction.WithPins(payrun.NewDuePins(store)))
	source := rates.NewLoadingSource(store)

	runs := payrun.New(payrun.Deps{
		Runs:         store,
		Employees:    store,
		Compensation: store,
		Attendance:   store,
		Adjustments:  store,
		Rates:        source,
		Ledger:       ledger,
		Recorder:     recorder,
		Logger:       logger,
	}, settings)

	return &Handler{
		Store:       store,
		Runs:        runs,
		Ledger:      ledger,
		Rates:       source,
		RateFactory: factory.NewRateFactory(),
		logger:      logger.Named("api"),
	}
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PAY RUN HANDLERS
// =============================================================================

// ListRuns returns an organization's runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required", nil)
		return
	}
	runs, err := h.Runs.List(r.Context(), orgID)
	if err != nil {
		h.fail(w, "Failed to list pay runs", err)
		return
	}
	if runs == nil {
		runs = []*payrun.PayRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// CreateRun opens a draft run for an organization and period.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	period, err := generic.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}

	run, err := h.Runs.Create(r.Context(), req.OrgID, period, actorFrom(r))
	if err != nil {
		h.fail(w, "Failed to create pay run", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get pay run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) GetRunLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	run, err := h.Runs.Get(ctx, id)
	if err != nil {
		h.fail(w, "Failed to get pay run", err)
		return
	}
	lines, err := h.Runs.Lines(ctx, id)
	if err != nil {
		h.fail(w, "Failed to get pay lines", err)
		return
	}
	if lines == nil {
		lines = []*payroll.PayLine{}
	}
	writeJSON(w, http.StatusOK, RunDetailResponse{Run: run, Lines: lines})
}

func (h *Handler) ProcessRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "process", h.Runs.Process)
}

func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit", h.Runs.SubmitForReview)
}

func (h *Handler) ApproveRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", h.Runs.Approve)
}

func (h *Handler) PayRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pay", h.Runs.MarkPaid)
}

// ReviseRun opens a new draft revision and answers 201.
func (h *Handler) ReviseRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Runs.Revise(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.fail(w, "Failed to revise pay run", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	var req CancelRunRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	run, err := h.Runs.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason)
	if err != nil {
		h.fail(w, "Failed to cancel pay run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type runOp func(ctx context.Context, runID string, actor payrun.Actor) (*payrun.PayRun, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, name string, op runOp) {
	run, err := op(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.fail(w, fmt.Sprintf("Failed to %s pay run", name), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	start, err := generic.ParsePeriod(req.StartPeriod)
	if err != nil {
		h.fail(w, "Invalid start period", err)
		return
	}

	acct, err := h.Ledger.CreateLoan(r.Context(), deduction.LoanRequest{
		EmployeeID:       generic.EmployeeID(req.EmployeeID),
		Principal:        req.Principal,
		AnnualRate:       req.AnnualRate,
		InstallmentCount: req.InstallmentCount,
		PenaltyRate:      req.PenaltyRate,
		StartPeriod:      start,
		Reason:           req.Reason,
		Actor:            actorFrom(r).ID,
	})
	if err != nil {
		h.fail(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) CreateAdvance(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvanceRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	start, err := generic.ParsePeriod(req.StartPeriod)
	if err != nil {
		h.fail(w, "Invalid start period", err)
		return
	}

	acct, err := h.Ledger.CreateAdvance(r.Context(), deduction.AdvanceRequest{
		EmployeeID:       generic.EmployeeID(req.EmployeeID),
		Principal:        req.Principal,
		InstallmentCount: req.InstallmentCount,
		Recovery:         req.Recovery,
		PenaltyRate:      req.PenaltyRate,
		StartPeriod:      start,
		Reason:           req.Reason,
		Actor:            actorFrom(r).ID,
	})
	if err != nil {
		h.fail(w, "Failed to create advance", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// GetAccount returns the account with the balance replayed from its entries.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AccountID(chi.URLParam(r, "id"))
	acct, err := h.Ledger.Account(ctx, id)
	if err != nil {
		h.fail(w, "Failed to get account", err)
		return
	}
	outstanding, err := h.Ledger.Outstanding(ctx, id)
	if err != nil {
		h.fail(w, "Failed to replay account", err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: acct, Outstanding: outstanding})
}

func (h *Handler) GetAccountDue(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	due, err := h.Ledger.DueForPeriod(r.Context(), generic.AccountID(chi.URLParam(r, "id")), period)
	if err != nil {
		h.fail(w, "Failed to compute due", err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (h *Handler) GetAccountEntries(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Entries(r.Context(), generic.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to get entries", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PrepayAccount(w http.ResponseWriter, r *http.Request) {
	var req PrepayRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	period, err := generic.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	actor := actorFrom(r)
	acct, err := h.Ledger.Prepay(r.Context(), generic.AccountID(chi.URLParam(r, "id")), period, req.Amount,
		deduction.Ref{ID: req.Reference, Actor: actor.ID})
	if err != nil {
		h.fail(w, "Failed to record prepayment", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) WriteOffAccount(w http.ResponseWriter, r *http.Request) {
	var req WriteOffRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	actor := actorFrom(r)
	acct, err := h.Ledger.WriteOff(r.Context(), generic.AccountID(chi.URLParam(r, "id")), req.Reason,
		deduction.Ref{ID: req.Reference, Actor: actor.ID})
	if err != nil {
		h.fail(w, "Failed to write off account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// =============================================================================
// EMPLOYEE INPUT HANDLERS
// =============================================================================

// ListEmployees returns the employees a run for org_id and period would pick up.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required", nil)
		return
	}
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	employees, err := h.Store.ActiveEmployees(r.Context(), orgID, period)
	if err != nil {
		h.fail(w, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = EmployeeDTO{
			ID:          string(e.ID),
			Name:        e.Name,
			Department:  e.Department,
			Designation: e.Designation,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	joined, err := generic.ParsePeriod(req.JoinedPeriod)
	if err != nil {
		h.fail(w, "Invalid joined period", err)
		return
	}
	var left generic.Period
	if req.LeftPeriod != "" {
		if left, err = generic.ParsePeriod(req.LeftPeriod); err != nil {
			h.fail(w, "Invalid left period", err)
			return
		}
	}
	active := req.Active == nil || *req.Active

	rec := sqlite.EmployeeRecord{
		Employee: payroll.Employee{
			ID:          generic.EmployeeID(req.ID),
			Name:        req.Name,
			Department:  req.Department,
			Designation: req.Designation,
		},
		OrgID:        req.OrgID,
		Active:       active,
		JoinedPeriod: joined,
		LeftPeriod:   left,
	}
	if err := h.Store.SaveEmployee(r.Context(), rec); err != nil {
		h.fail(w, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, EmployeeDTO{
		ID:          req.ID,
		Name:        req.Name,
		Department:  req.Department,
		Designation: req.Designation,
	})
}

func (h *Handler) SaveCompensation(w http.ResponseWriter, r *http.Request) {
	var req CompensationRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	effective, err := generic.ParsePeriod(req.EffectiveFrom)
	if err != nil {
		h.fail(w, "Invalid effective period", err)
		return
	}

	cfg := payroll.CompensationConfig{
		EmployeeID:        generic.EmployeeID(chi.URLParam(r, "id")),
		EffectiveFrom:     effective,
		AnnualCTC:         req.AnnualCTC,
		BasicPct:          req.BasicPct,
		HousingPct:        req.HousingPct,
		FixedAllowancePct: req.FixedAllowancePct,
		Schemes:           req.Schemes,
	}
	if err := h.Store.SaveCompensation(r.Context(), cfg); err != nil {
		h.fail(w, "Failed to save compensation", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	period, err := generic.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	var req AttendanceRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}

	summary := payroll.AttendanceSummary{
		EmployeeID:       generic.EmployeeID(chi.URLParam(r, "id")),
		Period:           period,
		TotalWorkingDays: req.TotalWorkingDays,
		PayableDays:      req.PayableDays,
		NonPayableDays:   req.NonPayableDays,
		OvertimeHours:    req.OvertimeHours,
	}
	if err := h.Store.SaveAttendance(r.Context(), summary); err != nil {
		h.fail(w, "Failed to save attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	period, err := generic.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	if !req.Amount.IsPositive() {
		h.fail(w, "Invalid amount", fmt.Errorf("%w: adjustment amount must be positive", generic.ErrInvalidAmount))
		return
	}

	id, err := h.Store.SaveAdjustment(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")), period, payroll.Adjustment{
		Kind:    payroll.AdjustmentKind(req.Kind),
		Code:    req.Code,
		Label:   req.Label,
		Amount:  req.Amount,
		Taxable: req.Taxable,
	})
	if err != nil {
		h.fail(w, "Failed to create adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListEmployeeAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.Accounts(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []*deduction.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) ListEmployeeDues(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.fail(w, "Invalid period", err)
		return
	}
	dues, err := h.Ledger.DuesForEmployee(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")), period)
	if err != nil {
		h.fail(w, "Failed to compute dues", err)
		return
	}
	if dues == nil {
		dues = []deduction.Due{}
	}
	writeJSON(w, http.StatusOK, dues)
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Store.ListRateConfigurations(r.Context())
	if err != nil {
		h.fail(w, "Failed to list rate configurations", err)
		return
	}
	out := make([]factory.RatesJSON, len(configs))
	for i, c := range configs {
		out[i] = h.RateFactory.ToJSON(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRates stores a new version and reloads the rate source so the next
// Process picks it up.
func (h *Handler) CreateRates(w http.ResponseWriter, r *http.Request) {
	var rj factory.RatesJSON
	if err := decodeRequest(r, &rj); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	cfg, err := h.RateFactory.FromJSON(rj)
	if err != nil {
		h.fail(w, "Invalid rate configuration", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveRateConfiguration(ctx, *cfg); err != nil {
		h.fail(w, "Failed to save rate configuration", err)
		return
	}
	if err := h.Rates.Reload(ctx); err != nil {
		h.fail(w, "Failed to reload rate configurations", err)
		return
	}
	h.logger.Info("rate configuration added",
		zap.String("version", cfg.Version), zap.Stringer("effective_from", cfg.EffectiveFrom),
		zap.String("actor", actorFrom(r).ID))
	writeJSON(w, http.StatusCreated, h.RateFactory.ToJSON(*cfg))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit filters by action, entity_id, run_id, since, until and limit.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:   audit.Action(q.Get("action")),
		EntityID: q.Get("entity_id"),
		RunID:    q.Get("run_id"),
	}

	var err error
	if s := q.Get("since"); s != "" {
		if f.Since, err = time.Parse(timeFormat, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since, want RFC 3339", err)
			return
		}
	}
	if s := q.Get("until"); s != "" {
		if f.Until, err = time.Parse(timeFormat, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid until, want RFC 3339", err)
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
	}

	entries, err := h.Store.Audit().Query(r.Context(), f)
	if err != nil {
		h.fail(w, "Failed to query audit trail", err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// HELPERS
// =============================================================================

var validate = newValidator()

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError is a body that could not be decoded.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// decodeRequest decodes the JSON body into dst and validates its tags.
func decodeRequest(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &requestError{err: err}
	}
	return validate.Struct(dst)
}

// periodParam reads the required ?period= query parameter.
func periodParam(r *http.Request) (generic.Period, error) {
	s := r.URL.Query().Get("period")
	if s == "" {
		return generic.Period{}, fmt.Errorf("%w: period is required", generic.ErrInvalidPeriod)
	}
	return generic.ParsePeriod(s)
}

// fail maps a domain error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	var (
		verrs  validator.ValidationErrors
		reqErr *requestError
	)
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: err.Error(), Fields: fields})
	case errors.As(err, &reqErr),
		errors.Is(err, payrun.ErrInvalidRequest),
		errors.Is(err, deduction.ErrInvalidRequest),
		errors.Is(err, rates.ErrInvalidConfiguration),
		errors.Is(err, generic.ErrInvalidPeriod),
		errors.Is(err, generic.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, message, err)
	case payrun.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case generic.IsNotFound(err),
		errors.Is(err, payrun.ErrRunNotFound),
		errors.Is(err, deduction.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case payrun.IsConflict(err),
		errors.Is(err, rates.ErrDuplicateVersion),
		errors.Is(err, deduction.ErrDuesPinned),
		deduction.IsDuplicate(err):
		writeError(w, http.StatusConflict, message, err)
	case payrun.IsUnprocessable(err), deduction.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case payrun.IsRetryable(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
