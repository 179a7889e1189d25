package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/warp/payroll-engine/audit"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// AUDIT LOG - audit.Log, append-only
// =============================================================================

// AuditLog implements audit.Log. Obtain it with Store.Audit.
type AuditLog struct {
	s *Store
}

func (s *Store) Audit() *AuditLog {
	return &AuditLog{s: s}
}

func (l *AuditLog) Append(ctx context.Context, e audit.Entry) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	var period sql.NullString
	if !e.Period.IsZero() {
		period = sql.NullString{String: e.Period.String(), Valid: true}
	}
	_, err := l.s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, action, entity_kind, entity_id, run_id, period, actor,
			from_status, to_status, payload, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Action), string(e.EntityKind), e.EntityID, nullString(e.RunID), period,
		nullString(e.Actor), nullString(e.From), nullString(e.To), nullString(string(e.Payload)),
		formatTime(e.At))
	return err
}

// Query returns matching entries oldest first.
func (l *AuditLog) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "at <= ?")
		args = append(args, formatTime(f.Until))
	}

	query := `SELECT id, action, entity_kind, entity_id, run_id, period, actor,
		from_status, to_status, payload, at FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at, seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e                              audit.Entry
			action, kind, at               string
			runID, period, actor, from, to sql.NullString
			payload                        sql.NullString
		)
		if err := rows.Scan(&e.ID, &action, &kind, &e.EntityID, &runID, &period, &actor,
			&from, &to, &payload, &at); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.EntityKind = audit.EntityKind(kind)
		e.RunID = runID.String
		if period.Valid {
			p, err := generic.ParsePeriod(period.String)
			if err != nil {
				return nil, err
			}
			e.Period = p
		}
		e.Actor = actor.String
		e.From = from.String
		e.To = to.String
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ audit.Log = (*AuditLog)(nil)
