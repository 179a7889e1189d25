package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/rates"
)

// =============================================================================
// RATE CONFIGURATIONS - rates.Loader
// =============================================================================

// SaveRateConfiguration stores a validated configuration. Versions are
// immutable: saving an existing version fails with rates.ErrDuplicateVersion.
func (s *Store) SaveRateConfiguration(ctx context.Context, cfg rates.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(factory.NewRateFactory().ToJSON(cfg))
	if err != nil {
		return fmt.Errorf("encode rate configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_configurations (version, effective_from, config_json, created_at)
		VALUES (?, ?, ?, ?)
	`, cfg.Version, cfg.EffectiveFrom.String(), string(data), formatTime(time.Now()))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", rates.ErrDuplicateVersion, cfg.Version)
	}
	return err
}

// ListRateConfigurations returns every stored version by effective period.
func (s *Store) ListRateConfigurations(ctx context.Context) ([]rates.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, config_json FROM rate_configurations
		ORDER BY effective_from, version
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	f := factory.NewRateFactory()
	var out []rates.Configuration
	for rows.Next() {
		var version, data string
		if err := rows.Scan(&version, &data); err != nil {
			return nil, err
		}
		cfg, err := f.ParseRates(data)
		if err != nil {
			return nil, fmt.Errorf("rate configuration %s: %w", version, err)
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

var _ rates.Loader = (*Store)(nil)
