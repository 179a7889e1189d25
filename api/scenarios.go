/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	payroll inputs. Each scenario seeds the standard rate table, employees,
	compensation, attendance and, where relevant, loans, advances and
	adjustments for the demo organization and period, ready for a run to be
	created and processed.

AVAILABLE SCENARIOS:

	standard-month:    Three salary bands, full attendance, all schemes
	loans-advances:    Loan with interest and an interest-free advance
	attendance:        Loss of pay, overtime and one-off adjustments
	missing-inputs:    Employees without config or attendance (run failures)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save the standard rate configuration and reload the rate source
 3. Create employees with compensation configs
 4. Record attendance summaries
 5. Optionally open ledger accounts and add adjustments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "loans-advances"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Register it in scenarioLoaders

NOTE:

	Scenarios reset the database, ledger and audit trail included. The
	routes need the admin role and are off unless DEMO_SCENARIOS is set,
	which config only accepts with APP_ENV=development.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/rates.go: MustStandardRates preset
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	scenarioOrg         = "acme"
	scenarioRateVersion = "standard-2025"
	scenarioActor       = "scenario-loader"
)

var scenarioPeriod = generic.NewPeriod(2025, time.April)

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-month",
		Name:        "Standard Month",
		Description: "Three salary bands with full attendance and every statutory scheme",
	},
	{
		ID:          "loans-advances",
		Name:        "Loans & Advances",
		Description: "Interest-bearing loan and an interest-free salary advance recovered through payroll",
	},
	{
		ID:          "attendance",
		Name:        "Attendance & Adjustments",
		Description: "Loss of pay days, overtime, a taxable bonus and a canteen recovery",
	},
	{
		ID:          "missing-inputs",
		Name:        "Missing Inputs",
		Description: "Employees without compensation or attendance show up as run failures",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]scenarioLoader{
	"standard-month": loadStandardMonthScenario,
	"loans-advances": loadLoansAdvancesScenario,
	"attendance":     loadAttendanceScenario,
	"missing-inputs": loadMissingInputsScenario,
}

func init() {
	for i := range scenarios {
		scenarios[i].OrgID = scenarioOrg
		scenarios[i].Period = scenarioPeriod.String()
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	if err := h.seedRates(ctx); err != nil {
		h.fail(w, "Failed to seed rates", err)
		return
	}
	if err := load(ctx, h); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.String("actor", actorFrom(r).ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
		"org_id":   scenarioOrg,
		"period":   scenarioPeriod.String(),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.Rates.Reload(ctx)
}

func (h *Handler) seedRates(ctx context.Context) error {
	cfg := factory.MustStandardRates(scenarioRateVersion, generic.NewPeriod(2025, time.January))
	if err := h.Store.SaveRateConfiguration(ctx, cfg); err != nil {
		return err
	}
	return h.Rates.Reload(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadStandardMonthScenario(ctx context.Context, h *Handler) error {
	hires := []struct {
		id, name, dept string
		ctc            int64
		schemes        payroll.SchemeOptIns
	}{
		{"emp-001", "Asha Verma", "Engineering", 1200000, payroll.SchemeOptIns{RetirementFund: true, LocalTax: true, WithholdingTax: true}},
		{"emp-002", "Ravi Menon", "Finance", 600000, payroll.SchemeOptIns{RetirementFund: true, LocalTax: true, WithholdingTax: true}},
		{"emp-003", "Meera Iyer", "Operations", 240000, payroll.SchemeOptIns{RetirementFund: true, HealthInsurance: true, LocalTax: true}},
	}
	for _, e := range hires {
		if err := hire(ctx, h.Store, e.id, e.name, e.dept, e.ctc, e.schemes); err != nil {
			return err
		}
		if err := attend(ctx, h.Store, e.id, "22", "22", "0", "0"); err != nil {
			return err
		}
	}
	return nil
}

func loadLoansAdvancesScenario(ctx context.Context, h *Handler) error {
	rf := payroll.SchemeOptIns{RetirementFund: true}
	if err := hire(ctx, h.Store, "emp-101", "Kiran Rao", "Engineering", 600000, rf); err != nil {
		return err
	}
	if err := hire(ctx, h.Store, "emp-102", "Divya Nair", "Support", 360000, rf); err != nil {
		return err
	}
	for _, id := range []string{"emp-101", "emp-102"} {
		if err := attend(ctx, h.Store, id, "22", "22", "0", "0"); err != nil {
			return err
		}
	}

	if _, err := h.Ledger.CreateLoan(ctx, deduction.LoanRequest{
		EmployeeID:       "emp-101",
		Principal:        decimal.NewFromInt(120000),
		AnnualRate:       decimal.NewFromInt(10),
		InstallmentCount: 24,
		PenaltyRate:      decimal.NewFromInt(2),
		StartPeriod:      scenarioPeriod,
		Reason:           "Vehicle loan",
		Actor:            scenarioActor,
	}); err != nil {
		return err
	}
	_, err := h.Ledger.CreateAdvance(ctx, deduction.AdvanceRequest{
		EmployeeID:       "emp-102",
		Principal:        decimal.NewFromInt(55000),
		InstallmentCount: 12,
		StartPeriod:      scenarioPeriod,
		Reason:           "Relocation advance",
		Actor:            scenarioActor,
	})
	return err
}

func loadAttendanceScenario(ctx context.Context, h *Handler) error {
	schemes := payroll.SchemeOptIns{RetirementFund: true, LocalTax: true, WithholdingTax: true}
	if err := hire(ctx, h.Store, "emp-201", "Sanjay Gupta", "Warehouse", 480000, schemes); err != nil {
		return err
	}
	if err := hire(ctx, h.Store, "emp-202", "Lata Kulkarni", "Warehouse", 420000, schemes); err != nil {
		return err
	}
	// Six days loss of pay.
	if err := attend(ctx, h.Store, "emp-201", "26", "20", "6", "0"); err != nil {
		return err
	}
	if err := attend(ctx, h.Store, "emp-202", "26", "26", "0", "12"); err != nil {
		return err
	}

	adjustments := []struct {
		employee string
		adj      payroll.Adjustment
	}{
		{"emp-202", payroll.Adjustment{Kind: payroll.AdjustmentAddition, Code: "BONUS", Label: "Quarterly bonus", Amount: decimal.NewFromInt(15000), Taxable: true}},
		{"emp-201", payroll.Adjustment{Kind: payroll.AdjustmentDeduction, Code: "CANTEEN", Label: "Canteen recovery", Amount: decimal.NewFromInt(850)}},
	}
	for _, a := range adjustments {
		if _, err := h.Store.SaveAdjustment(ctx, generic.EmployeeID(a.employee), scenarioPeriod, a.adj); err != nil {
			return err
		}
	}
	return nil
}

func loadMissingInputsScenario(ctx context.Context, h *Handler) error {
	rf := payroll.SchemeOptIns{RetirementFund: true}
	if err := hire(ctx, h.Store, "emp-301", "Neha Joshi", "Sales", 540000, rf); err != nil {
		return err
	}
	if err := attend(ctx, h.Store, "emp-301", "22", "22", "0", "0"); err != nil {
		return err
	}

	// Compensation but no attendance.
	if err := hire(ctx, h.Store, "emp-302", "Arjun Das", "Sales", 500000, rf); err != nil {
		return err
	}

	// Attendance but no compensation.
	if err := h.Store.SaveEmployee(ctx, employeeRecord("emp-303", "Pooja Shah", "Sales")); err != nil {
		return err
	}
	return attend(ctx, h.Store, "emp-303", "22", "21", "1", "0")
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeRecord(id, name, dept string) sqlite.EmployeeRecord {
	return sqlite.EmployeeRecord{
		Employee: payroll.Employee{
			ID:          generic.EmployeeID(id),
			Name:        name,
			Department:  dept,
			Designation: "Associate",
		},
		OrgID:        scenarioOrg,
		Active:       true,
		JoinedPeriod: generic.NewPeriod(2024, time.January),
	}
}

// hire saves the employee with a 50/20/30 CTC split effective from joining.
func hire(ctx context.Context, store *sqlite.Store, id, name, dept string, ctc int64, schemes payroll.SchemeOptIns) error {
	rec := employeeRecord(id, name, dept)
	if err := store.SaveEmployee(ctx, rec); err != nil {
		return err
	}
	return store.SaveCompensation(ctx, payroll.CompensationConfig{
		EmployeeID:        rec.ID,
		EffectiveFrom:     rec.JoinedPeriod,
		AnnualCTC:         decimal.NewFromInt(ctc),
		BasicPct:          decimal.NewFromInt(50),
		HousingPct:        decimal.NewFromInt(20),
		FixedAllowancePct: decimal.NewFromInt(30),
		Schemes:           schemes,
	})
}

func attend(ctx context.Context, store *sqlite.Store, id, total, payable, nonPayable, overtime string) error {
	return store.SaveAttendance(ctx, payroll.AttendanceSummary{
		EmployeeID:       generic.EmployeeID(id),
		Period:           scenarioPeriod,
		TotalWorkingDays: decimal.RequireFromString(total),
		PayableDays:      decimal.RequireFromString(payable),
		NonPayableDays:   decimal.RequireFromString(nonPayable),
		OvertimeHours:    decimal.RequireFromString(overtime),
	})
}
