/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Token handling on mutating routes
- Request validation and error status mapping
- The full pay run lifecycle over HTTP, down to ledger balances and audit
- Accounts, inputs and rate configuration endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payrun"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	clerk     = payrun.Actor{ID: "clerk"}
	approver  = payrun.Actor{ID: "approver", Roles: []string{payrun.RoleApprover}}
	treasurer = payrun.Actor{ID: "treasurer"}
	admin     = payrun.Actor{ID: "admin", Roles: []string{payrun.RoleAdmin}}
)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	jwt     *jwtauth.JWTAuth
}

// newTestServer serves an in-memory store with demo scenarios enabled.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, true)
}

func newTestServerWith(t *testing.T, scenarios bool) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, payrun.DefaultConfig(), zap.NewNop())
	ja := NewJWTAuth("test-secret")
	return &testServer{
		t:       t,
		handler: h,
		router:  NewRouter(h, RouterOptions{JWTAuth: ja, EnableScenarios: scenarios}),
		jwt:     ja,
	}
}

// do sends body as JSON (or verbatim when it is a string) with a token for
// actor when actor is non-nil.
func (s *testServer) do(method, path string, body any, actor *payrun.Actor) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := IssueToken(s.jwt, *actor)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) loadScenario(id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id}, &admin)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) createRun(org, period string) *payrun.PayRun {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/runs", CreateRunRequest{OrgID: org, Period: period}, &clerk)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*payrun.PayRun](s.t, rec)
}

func (s *testServer) step(runID, op string, actor payrun.Actor, want int) *payrun.PayRun {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/runs/"+runID+"/"+op, nil, &actor)
	require.Equal(s.t, want, rec.Code, rec.Body.String())
	if want != http.StatusOK {
		return nil
	}
	return decode[*payrun.PayRun](s.t, rec)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMutations_RequireToken(t *testing.T) {
	s := newTestServer(t)
	body := CreateRunRequest{OrgID: "acme", Period: "2025-04"}

	// WHEN: No token
	rec := s.do(http.MethodPost, "/api/runs", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// WHEN: Token signed with another secret
	other := NewJWTAuth("other-secret")
	token, err := IssueToken(other, clerk)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(`{"org_id":"acme","period":"2025-04"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	forged := httptest.NewRecorder()
	s.router.ServeHTTP(forged, req)
	assert.Equal(t, http.StatusUnauthorized, forged.Code)

	// WHEN: Token without user_id
	_, anonymous, err := s.jwt.Encode(map[string]any{"roles": []string{"admin"}})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(`{"org_id":"acme","period":"2025-04"}`))
	req.Header.Set("Authorization", "Bearer "+anonymous)
	noUser := httptest.NewRecorder()
	s.router.ServeHTTP(noUser, req)
	assert.Equal(t, http.StatusUnauthorized, noUser.Code)

	// THEN: Reads stay public
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/runs?org_id=acme", nil, nil).Code)
}

func TestActorFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   payrun.Actor
		ok     bool
	}{
		{"list of roles", map[string]any{"user_id": "u1", "roles": []any{"admin", 7, "payroll_approver"}},
			payrun.Actor{ID: "u1", Roles: []string{"admin", "payroll_approver"}}, true},
		{"single role", map[string]any{"user_id": "u1", "roles": "admin"},
			payrun.Actor{ID: "u1", Roles: []string{"admin"}}, true},
		{"no roles", map[string]any{"user_id": "u1"}, payrun.Actor{ID: "u1"}, true},
		{"no user", map[string]any{"roles": "admin"}, payrun.Actor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := actorFromClaims(tt.claims)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// PAY RUNS
// =============================================================================

func TestCreateRun_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing org", CreateRunRequest{Period: "2025-04"}, "org_id"},
		{"missing period", CreateRunRequest{OrgID: "acme"}, "period"},
		{"bad period format", CreateRunRequest{OrgID: "acme", Period: "04/2025"}, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/runs", tt.body, &clerk)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	// Unknown fields are rejected.
	rec := s.do(http.MethodPost, "/api/runs", `{"org_id":"acme","period":"2025-04","status":"paid"}`, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunLifecycle_OverHTTP(t *testing.T) {
	// GIVEN: One loan and one advance, both starting April 2025
	s := newTestServer(t)
	s.loadScenario("loans-advances")

	// WHEN: The run goes draft -> processed -> in_review -> approved -> paid
	run := s.createRun("acme", "2025-04")
	assert.Equal(t, payrun.StatusDraft, run.Status)
	assert.Equal(t, clerk.ID, run.CreatedBy)

	run = s.step(run.ID, "process", clerk, http.StatusOK)
	assert.Equal(t, payrun.StatusProcessed, run.Status)
	assert.Equal(t, 2, run.Totals.Employees)
	assert.Empty(t, run.Failures)

	rec := s.do(http.MethodGet, "/api/runs/"+run.ID+"/lines", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[RunDetailResponse](t, rec)
	require.Len(t, detail.Lines, 2)
	assert.Equal(t, generic.EmployeeID("emp-101"), detail.Lines[0].Employee.ID)
	assert.Equal(t, generic.EmployeeID("emp-102"), detail.Lines[1].Employee.ID)
	assert.Equal(t, "4583.33", detail.Lines[1].LedgerTotal().StringFixed(2))

	s.step(run.ID, "submit", clerk, http.StatusOK)

	// THEN: Approval needs the approver role and a different actor
	s.step(run.ID, "approve", clerk, http.StatusForbidden)
	run = s.step(run.ID, "approve", approver, http.StatusOK)
	assert.Equal(t, approver.ID, run.ApprovedBy)

	run = s.step(run.ID, "pay", treasurer, http.StatusOK)
	assert.Equal(t, payrun.StatusPaid, run.Status)
	assert.True(t, run.Locked)

	// AND: The advance was recovered exactly once
	rec = s.do(http.MethodGet, "/api/employees/emp-102/accounts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decode[[]*deduction.Account](t, rec)
	require.Len(t, accounts, 1)

	rec = s.do(http.MethodGet, "/api/accounts/"+string(accounts[0].ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decode[AccountResponse](t, rec)
	assert.Equal(t, "50416.67", acct.Balance.StringFixed(2))
	assert.True(t, acct.Balance.Equal(acct.Outstanding))

	rec = s.do(http.MethodGet, "/api/accounts/"+string(accounts[0].ID)+"/due?period=2025-04", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[deduction.Due](t, rec)
	assert.True(t, due.Committed)
	assert.Equal(t, "4583.33", due.Amount.StringFixed(2))

	// AND: A paid run is locked
	s.step(run.ID, "process", clerk, http.StatusConflict)
	s.step(run.ID, "pay", treasurer, http.StatusConflict)

	// AND: Every transition is in the audit trail
	rec = s.do(http.MethodGet, "/api/audit?action=run_transition&run_id="+run.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]audit.Entry](t, rec)
	var to []string
	for _, e := range entries {
		to = append(to, e.To)
	}
	assert.Equal(t, []string{"draft", "processed", "in_review", "approved", "paid"}, to)

	// AND: A revision can be opened for corrections
	rec = s.do(http.MethodPost, "/api/runs/"+run.ID+"/revise", nil, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	revision := decode[*payrun.PayRun](t, rec)
	assert.Equal(t, 2, revision.Revision)
	assert.Equal(t, run.ID, revision.SupersedesID)
}

func TestRuns_ConflictsAndNotFound(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("standard-month")
	run := s.createRun("acme", "2025-04")

	// Second run for the same period
	rec := s.do(http.MethodPost, "/api/runs", CreateRunRequest{OrgID: "acme", Period: "2025-04"}, &clerk)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Out of order
	s.step(run.ID, "approve", approver, http.StatusConflict)
	s.step(run.ID, "revise", clerk, http.StatusConflict)

	// Unknown run
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/runs/nope", nil, nil).Code)
	s.step("nope", "process", clerk, http.StatusNotFound)

	// Cancel needs a reason
	rec = s.do(http.MethodPost, "/api/runs/"+run.ID+"/cancel", CancelRunRequest{}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/runs/"+run.ID+"/cancel", CancelRunRequest{Reason: "wrong month"}, &clerk)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[*payrun.PayRun](t, rec)
	assert.Equal(t, payrun.StatusCancelled, cancelled.Status)
	assert.Equal(t, "wrong month", cancelled.CancelReason)

	// The period is free again
	next := s.createRun("acme", "2025-04")
	assert.Equal(t, 2, next.Revision)

	rec = s.do(http.MethodGet, "/api/runs?org_id=acme", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*payrun.PayRun](t, rec), 2)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/runs", nil, nil).Code)
}

func TestRuns_FailuresBlockReview(t *testing.T) {
	// GIVEN: One employee without attendance and one without compensation
	s := newTestServer(t)
	s.loadScenario("missing-inputs")
	run := s.createRun("acme", "2025-04")

	// WHEN: Processed
	run = s.step(run.ID, "process", clerk, http.StatusOK)

	// THEN: Both show up as failures and the run cannot go to review
	require.Len(t, run.Failures, 2)
	assert.Equal(t, generic.EmployeeID("emp-302"), run.Failures[0].EmployeeID)
	assert.Equal(t, "missing_attendance", run.Failures[0].Code)
	assert.Equal(t, generic.EmployeeID("emp-303"), run.Failures[1].EmployeeID)
	assert.Equal(t, "missing_config", run.Failures[1].Code)
	assert.Equal(t, 1, run.Totals.Employees)

	s.step(run.ID, "submit", clerk, http.StatusUnprocessableEntity)

	// WHEN: The missing attendance arrives and the run is recomputed
	rec := s.do(http.MethodPut, "/api/employees/emp-302/attendance/2025-04", AttendanceRequest{
		TotalWorkingDays: decimal.NewFromInt(22),
		PayableDays:      decimal.NewFromInt(22),
		NonPayableDays:   decimal.Zero,
		OvertimeHours:    decimal.Zero,
	}, &clerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	run = s.step(run.ID, "process", clerk, http.StatusOK)

	// THEN: Only the missing config remains
	require.Len(t, run.Failures, 1)
	assert.Equal(t, generic.EmployeeID("emp-303"), run.Failures[0].EmployeeID)
	assert.Equal(t, 2, run.Totals.Employees)
}

func TestProcess_NoRates(t *testing.T) {
	// GIVEN: An employee but no rate table at all
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/employees", EmployeeRequest{
		ID: "emp-1", OrgID: "acme", Name: "Test User", JoinedPeriod: "2025-01",
	}, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := s.createRun("acme", "2025-04")

	// THEN: Processing aborts as unprocessable and the run stays draft
	s.step(run.ID, "process", clerk, http.StatusUnprocessableEntity)

	rec = s.do(http.MethodGet, "/api/runs/"+run.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payrun.StatusDraft, decode[*payrun.PayRun](t, rec).Status)
}

// =============================================================================
// INPUTS
// =============================================================================

func TestEmployeeInputs(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("standard-month")

	inactive := false
	rec := s.do(http.MethodPost, "/api/employees", EmployeeRequest{
		ID: "emp-900", OrgID: "acme", Name: "On Leave", JoinedPeriod: "2024-06", Active: &inactive,
	}, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/employees", EmployeeRequest{
		ID: "emp-901", OrgID: "acme", Name: "Joins Later", JoinedPeriod: "2025-06",
	}, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/employees?org_id=acme&period=2025-04", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	employees := decode[[]EmployeeDTO](t, rec)
	require.Len(t, employees, 3)
	assert.Equal(t, "emp-001", employees[0].ID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/employees?org_id=acme", nil, nil).Code)

	rec = s.do(http.MethodPut, "/api/employees/emp-001/compensation", CompensationRequest{
		EffectiveFrom:     "2025-05",
		AnnualCTC:         decimal.NewFromInt(1320000),
		BasicPct:          decimal.NewFromInt(50),
		HousingPct:        decimal.NewFromInt(20),
		FixedAllowancePct: decimal.NewFromInt(30),
	}, &clerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cfg, err := s.handler.Store.Compensation(context.Background(), "emp-001", generic.NewPeriod(2025, time.April))
	require.NoError(t, err)
	assert.Equal(t, "1200000", cfg.AnnualCTC.String())

	rec = s.do(http.MethodPost, "/api/employees/emp-001/adjustments", AdjustmentRequest{
		Period: "2025-04", Kind: "addition", Code: "BONUS", Amount: decimal.NewFromInt(5000), Taxable: true,
	}, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/employees/emp-001/adjustments", AdjustmentRequest{
		Period: "2025-04", Kind: "refund", Code: "X", Amount: decimal.NewFromInt(5),
	}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/employees/emp-001/adjustments", AdjustmentRequest{
		Period: "2025-04", Kind: "deduction", Code: "X", Amount: decimal.NewFromInt(-5),
	}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	adjustments, err := s.handler.Store.Adjustments(context.Background(), "emp-001", generic.NewPeriod(2025, time.April))
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, "BONUS", adjustments[0].Code)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccounts_CreateAndMutate(t *testing.T) {
	s := newTestServer(t)

	// Validation
	rec := s.do(http.MethodPost, "/api/accounts/loans", CreateLoanRequest{
		Principal: decimal.NewFromInt(1000), InstallmentCount: 10, StartPeriod: "2025-04",
	}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/accounts/loans", CreateLoanRequest{
		EmployeeID: "emp-1", Principal: decimal.Zero, InstallmentCount: 10, StartPeriod: "2025-04",
	}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/accounts/advances", CreateAdvanceRequest{
		EmployeeID: "emp-1", Principal: decimal.NewFromInt(1000), InstallmentCount: 4,
		Recovery: decimal.NewFromInt(250), StartPeriod: "2025-04",
	}, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// GIVEN: A 55,000 advance over 12 periods
	rec = s.do(http.MethodPost, "/api/accounts/advances", CreateAdvanceRequest{
		EmployeeID: "emp-1", Principal: decimal.NewFromInt(55000), InstallmentCount: 12, StartPeriod: "2025-04",
	}, &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	advance := decode[*deduction.Account](t, rec)
	require.Len(t, advance.Schedule, 12)
	assert.Equal(t, "4583.33", advance.Schedule[0].Amount.StringFixed(2))
	assert.Equal(t, clerk.ID, advance.CreatedBy)

	// WHEN: Prepaying more than the balance
	path := "/api/accounts/" + string(advance.ID)
	rec = s.do(http.MethodPost, path+"/prepay", PrepayRequest{Period: "2025-04", Amount: decimal.NewFromInt(60000)}, &clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// WHEN: Prepaying 5,000
	rec = s.do(http.MethodPost, path+"/prepay", PrepayRequest{Period: "2025-04", Amount: decimal.NewFromInt(5000), Reference: "rcpt-1"}, &clerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "50000.00", decode[*deduction.Account](t, rec).Balance.StringFixed(2))

	// THEN: The same receipt cannot be applied twice
	rec = s.do(http.MethodPost, path+"/prepay", PrepayRequest{Period: "2025-04", Amount: decimal.NewFromInt(5000), Reference: "rcpt-1"}, &clerk)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Written off
	rec = s.do(http.MethodPost, path+"/write-off", WriteOffRequest{Reason: "employee exit"}, &clerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	written := decode[*deduction.Account](t, rec)
	assert.Equal(t, deduction.StatusWrittenOff, written.Status)
	assert.True(t, written.Balance.IsZero())

	// THEN: It is no longer active
	rec = s.do(http.MethodPost, path+"/write-off", WriteOffRequest{Reason: "again"}, &clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, path+"/entries", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]TransactionDTO](t, rec)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"disbursement", "prepayment", "write_off"},
		[]string{entries[0].Type, entries[1].Type, entries[2].Type})

	rec = s.do(http.MethodGet, "/api/employees/emp-1/dues?period=2025-05", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]deduction.Due](t, rec))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/accounts/acct-missing", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, path+"/due", nil, nil).Code)
}

// =============================================================================
// RATES
// =============================================================================

func TestRates_CreateAndList(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/rates", factory.StandardRatesJSON("2025.1", generic.NewPeriod(2025, time.April)), &clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Versions are immutable
	rec = s.do(http.MethodPost, "/api/rates", factory.StandardRatesJSON("2025.1", generic.NewPeriod(2025, time.April)), &clerk)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/rates", `{"effective_from":"2026-04"}`, &clerk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/rates", factory.StandardRatesJSON("2026.1", generic.NewPeriod(2026, time.April)), &clerk)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/rates", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]factory.RatesJSON](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "2025.1", list[0].Version)
	assert.Equal(t, "2026-04", list[1].EffectiveFrom)

	// THEN: The rate source sees the new version without a restart
	cfg, err := s.handler.Rates.RatesFor(context.Background(), generic.NewPeriod(2026, time.May))
	require.NoError(t, err)
	assert.Equal(t, "2026.1", cfg.Version)
}

func TestAudit_InvalidQuery(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/audit?since=yesterday", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/audit?limit=-1", nil, nil).Code)

	rec := s.do(http.MethodGet, "/api/audit?limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
