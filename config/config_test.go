package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payrun"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, []string{"*"}, cfg.App.CORSOrigins)
	assert.Equal(t, "./payroll.db", cfg.Database.Path)
	assert.Equal(t, payrun.DefaultConfig(), cfg.PayRunSettings())
	assert.False(t, cfg.Scheduler.Enabled)
	assert.False(t, cfg.App.DemoScenarios)
}

func TestFromEnv_DemoScenarios(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("DEMO_SCENARIOS", "true")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.App.DemoScenarios)

	t.Setenv("APP_ENV", "staging")
	_, err = config.FromEnv()
	assert.ErrorContains(t, err, "DEMO_SCENARIOS requires APP_ENV=development")
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("PAYRUN_WORKERS", "2")
	t.Setenv("PAYRUN_BATCH_DEADLINE", "30s")
	t.Setenv("ATTENDANCE_FALLBACK", "full")
	t.Setenv("DEFAULT_WORKING_DAYS", "22")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("SCHEDULER_ORGS", "acme, globex ,")
	t.Setenv("CORS_ORIGINS", "https://hr.example.com")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://hr.example.com"}, cfg.App.CORSOrigins)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, payrun.Config{
		Workers:            2,
		BatchDeadline:      30 * time.Second,
		AttendanceFallback: payrun.FallbackFull,
		DefaultWorkingDays: 22,
	}, cfg.PayRunSettings())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Scheduler.Orgs)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET_KEY": ""}},
		{"bad port", map[string]string{"APP_PORT": "http"}},
		{"port out of range", map[string]string{"APP_PORT": "70000"}},
		{"zero workers", map[string]string{"PAYRUN_WORKERS": "0"}},
		{"bad deadline", map[string]string{"PAYRUN_BATCH_DEADLINE": "soon"}},
		{"unknown fallback", map[string]string{"ATTENDANCE_FALLBACK": "half"}},
		{"scheduler without orgs", map[string]string{"SCHEDULER_ENABLED": "true"}},
		{"bad demo flag", map[string]string{"DEMO_SCENARIOS": "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.FromEnv()
			assert.Error(t, err)
		})
	}
}
