package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payrun"
)

// =============================================================================
// PAY RUNS - payrun.Repository
// =============================================================================

// The run is stored whole as JSON. org_id, period, revision and status are
// copied into columns for lookups and the active-run index.

func (s *Store) CreateRun(ctx context.Context, run *payrun.PayRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Version == 0 {
		run.Version = 1
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode pay run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pay_runs (id, org_id, period, revision, status, version, run_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.OrgID, run.Period.String(), run.Revision, string(run.Status), run.Version,
		string(data), formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %s", payrun.ErrRunExists, run.OrgID, run.Period)
	}
	return err
}

// UpdateRun saves run if nobody else saved it since it was read.
func (s *Store) UpdateRun(ctx context.Context, run *payrun.PayRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRun(ctx, s.db, run)
}

// ReplaceLines saves run and swaps its lines in one transaction.
func (s *Store) ReplaceLines(ctx context.Context, run *payrun.PayRun, lines []*payroll.PayLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	expected := run.Version
	committed := false
	defer func() {
		if !committed {
			run.Version = expected
		}
	}()

	if err := updateRun(ctx, tx, run); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pay_lines WHERE run_id = ?", run.ID); err != nil {
		return err
	}
	for _, line := range lines {
		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("encode pay line %s: %w", line.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pay_lines (run_id, employee_id, line_id, checksum, line_json)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, string(line.Employee.ID), line.ID, line.Checksum, string(data)); err != nil {
			return fmt.Errorf("insert pay line %s: %w", line.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func updateRun(ctx context.Context, q querier, run *payrun.PayRun) error {
	expected := run.Version
	run.Version = expected + 1
	data, err := json.Marshal(run)
	if err != nil {
		run.Version = expected
		return fmt.Errorf("encode pay run: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE pay_runs
		SET status = ?, version = ?, run_json = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(run.Status), run.Version, string(data), formatTime(run.UpdatedAt), run.ID, expected)
	if err != nil {
		run.Version = expected
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s %s", payrun.ErrRunExists, run.OrgID, run.Period)
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		run.Version = expected
		return err
	}
	if n == 0 {
		run.Version = expected
		return fmt.Errorf("pay run %s: %w", run.ID, generic.ErrConcurrentModification)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*payrun.PayRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT run_json FROM pay_runs WHERE id = ?", id).Scan(&data)
	if errNoRows(err) {
		return nil, fmt.Errorf("%w: %w", payrun.ErrRunNotFound, &generic.NotFoundError{Kind: "pay run", ID: id})
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(data)
}

// ListRuns returns an organization's runs, newest period first.
func (s *Store) ListRuns(ctx context.Context, orgID string) ([]*payrun.PayRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_json FROM pay_runs
		WHERE org_id = ?
		ORDER BY period DESC, revision DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RunsForPeriod returns every revision for the period, oldest first.
func (s *Store) RunsForPeriod(ctx context.Context, orgID string, period generic.Period) ([]*payrun.PayRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_json FROM pay_runs
		WHERE org_id = ? AND period = ?
		ORDER BY revision
	`, orgID, period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RunsWithStatus returns runs of any organization in one of statuses.
func (s *Store) RunsWithStatus(ctx context.Context, statuses ...payrun.Status) ([]*payrun.PayRun, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, len(statuses))
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
		marks[i] = "?"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_json FROM pay_runs
		WHERE status IN (`+strings.Join(marks, ", ")+`)
		ORDER BY org_id, period, revision
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (s *Store) Lines(ctx context.Context, runID string) ([]*payroll.PayLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT line_json FROM pay_lines
		WHERE run_id = ?
		ORDER BY employee_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*payroll.PayLine
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var line payroll.PayLine
		if err := json.Unmarshal([]byte(data), &line); err != nil {
			return nil, fmt.Errorf("decode pay line: %w", err)
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]*payrun.PayRun, error) {
	var runs []*payrun.PayRun
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func decodeRun(data string) (*payrun.PayRun, error) {
	var run payrun.PayRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("decode pay run: %w", err)
	}
	return &run, nil
}

var _ payrun.Repository = (*Store)(nil)
