package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payrun"
)

// =============================================================================
// EMPLOYEES - payrun.EmployeeDirectory
// =============================================================================

// EmployeeRecord is the master data row behind payroll.Employee.
type EmployeeRecord struct {
	payroll.Employee
	OrgID        string
	Active       bool
	JoinedPeriod generic.Period
	// LeftPeriod is the last period paid; zero while employed.
	LeftPeriod generic.Period
}

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, e EmployeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var left sql.NullString
	if !e.LeftPeriod.IsZero() {
		left = sql.NullString{String: e.LeftPeriod.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO employees (id, org_id, name, department, designation, active,
			joined_period, left_period, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.ID), e.OrgID, e.Name, nullString(e.Department), nullString(e.Designation),
		e.Active, e.JoinedPeriod.String(), left, formatTime(time.Now()))
	return err
}

// ActiveEmployees returns employees flagged active whose employment covers
// period, ordered by id.
func (s *Store) ActiveEmployees(ctx context.Context, orgID string, period generic.Period) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := period.String()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, department, designation
		FROM employees
		WHERE org_id = ? AND active = TRUE
		  AND joined_period <= ?
		  AND (left_period IS NULL OR left_period >= ?)
		ORDER BY id
	`, orgID, p, p)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Employee
	for rows.Next() {
		var (
			e                       payroll.Employee
			id                      string
			department, designation sql.NullString
		)
		if err := rows.Scan(&id, &e.Name, &department, &designation); err != nil {
			return nil, err
		}
		e.ID = generic.EmployeeID(id)
		e.Department = department.String
		e.Designation = designation.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// COMPENSATION - payrun.CompensationSource
// =============================================================================

// SaveCompensation stores a config under its EffectiveFrom period. A second
// config with the same period replaces the first.
func (s *Store) SaveCompensation(ctx context.Context, cfg payroll.CompensationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode compensation config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO compensation_configs (employee_id, effective_from, config_json, created_at)
		VALUES (?, ?, ?, ?)
	`, string(cfg.EmployeeID), cfg.EffectiveFrom.String(), string(data), formatTime(time.Now()))
	return err
}

// Compensation returns the latest config effective on or before period.
func (s *Store) Compensation(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) (*payroll.CompensationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT config_json FROM compensation_configs
		WHERE employee_id = ? AND effective_from <= ?
		ORDER BY effective_from DESC
		LIMIT 1
	`, string(employeeID), period.String()).Scan(&data)
	if errNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "compensation config", ID: string(employeeID) + "@" + period.String()}
	}
	if err != nil {
		return nil, err
	}

	var cfg payroll.CompensationConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("decode compensation config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// ATTENDANCE - payrun.AttendanceSource
// =============================================================================

func (s *Store) SaveAttendance(ctx context.Context, a payroll.AttendanceSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attendance: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO attendance_summaries (employee_id, period, summary_json, created_at)
		VALUES (?, ?, ?, ?)
	`, string(a.EmployeeID), a.Period.String(), string(data), formatTime(time.Now()))
	return err
}

func (s *Store) Attendance(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) (*payroll.AttendanceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT summary_json FROM attendance_summaries
		WHERE employee_id = ? AND period = ?
	`, string(employeeID), period.String()).Scan(&data)
	if errNoRows(err) {
		return nil, &generic.NotFoundError{Kind: "attendance", ID: string(employeeID) + "@" + period.String()}
	}
	if err != nil {
		return nil, err
	}

	var a payroll.AttendanceSummary
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}
	return &a, nil
}

// =============================================================================
// ADJUSTMENTS - payrun.AdjustmentSource
// =============================================================================

// SaveAdjustment records a one-off amount for the employee and period and
// returns its id.
func (s *Store) SaveAdjustment(ctx context.Context, employeeID generic.EmployeeID, period generic.Period, adj payroll.Adjustment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments (id, employee_id, period, kind, code, label, amount, taxable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(employeeID), period.String(), string(adj.Kind), adj.Code, adj.Label,
		adj.Amount.String(), adj.Taxable, formatTime(time.Now()))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Adjustments returns the period's adjustments in the order they were saved.
func (s *Store) Adjustments(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, code, label, amount, taxable
		FROM adjustments
		WHERE employee_id = ? AND period = ?
		ORDER BY rowid
	`, string(employeeID), period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Adjustment
	for rows.Next() {
		var (
			adj          payroll.Adjustment
			kind, amount string
		)
		if err := rows.Scan(&kind, &adj.Code, &adj.Label, &amount, &adj.Taxable); err != nil {
			return nil, err
		}
		adj.Kind = payroll.AdjustmentKind(kind)
		adj.Amount = parseDecimal(amount)
		out = append(out, adj)
	}
	return out, rows.Err()
}

var (
	_ payrun.EmployeeDirectory  = (*Store)(nil)
	_ payrun.CompensationSource = (*Store)(nil)
	_ payrun.AttendanceSource   = (*Store)(nil)
	_ payrun.AdjustmentSource   = (*Store)(nil)
)
