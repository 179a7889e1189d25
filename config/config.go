// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/payroll-engine/payrun"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	PayRun    PayRunConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	CORSOrigins []string

	// DemoScenarios enables the scenario load and reset routes, which wipe
	// the database. Only allowed when Env is development.
	DemoScenarios bool
}

type DatabaseConfig struct {
	// Path of the SQLite file; ":memory:" for a throwaway database.
	Path string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

type PayRunConfig struct {
	Workers            int
	BatchDeadline      time.Duration
	AttendanceFallback payrun.Fallback
	DefaultWorkingDays int
}

// SchedulerConfig controls the job that opens each month's draft run.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	Orgs     []string
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from environment variables only.
func FromEnv() (*Config, error) {
	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	demo, err := strconv.ParseBool(getEnv("DEMO_SCENARIOS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEMO_SCENARIOS: %w", err)
	}
	config.App = AppConfig{
		Port:          appPort,
		Env:           getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   getEnvSlice("CORS_ORIGINS", []string{"*"}),
		DemoScenarios: demo,
	}

	config.Database = DatabaseConfig{
		Path: getEnv("DB_PATH", "./payroll.db"),
	}

	config.JWT = JWTConfig{
		Secret: getEnv("JWT_SECRET_KEY", ""),
	}

	defaults := payrun.DefaultConfig()
	workers, err := strconv.Atoi(getEnv("PAYRUN_WORKERS", strconv.Itoa(defaults.Workers)))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYRUN_WORKERS: %w", err)
	}
	deadline, err := time.ParseDuration(getEnv("PAYRUN_BATCH_DEADLINE", defaults.BatchDeadline.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYRUN_BATCH_DEADLINE: %w", err)
	}
	workingDays, err := strconv.Atoi(getEnv("DEFAULT_WORKING_DAYS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_WORKING_DAYS: %w", err)
	}
	config.PayRun = PayRunConfig{
		Workers:            workers,
		BatchDeadline:      deadline,
		AttendanceFallback: payrun.Fallback(getEnv("ATTENDANCE_FALLBACK", string(payrun.FallbackNone))),
		DefaultWorkingDays: workingDays,
	}

	enabled, err := strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
	}
	interval, err := time.ParseDuration(getEnv("SCHEDULER_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL: %w", err)
	}
	config.Scheduler = SchedulerConfig{
		Enabled:  enabled,
		Interval: interval,
		Orgs:     getEnvSlice("SCHEDULER_ORGS", nil),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.App.DemoScenarios && c.App.Env != "development" {
		return fmt.Errorf("DEMO_SCENARIOS requires APP_ENV=development, got %q", c.App.Env)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.PayRun.Workers <= 0 {
		return fmt.Errorf("PAYRUN_WORKERS must be positive")
	}
	if c.PayRun.BatchDeadline < 0 {
		return fmt.Errorf("PAYRUN_BATCH_DEADLINE must not be negative")
	}
	switch c.PayRun.AttendanceFallback {
	case payrun.FallbackNone, payrun.FallbackFull:
	default:
		return fmt.Errorf("ATTENDANCE_FALLBACK must be %q or %q", payrun.FallbackNone, payrun.FallbackFull)
	}
	if c.PayRun.DefaultWorkingDays < 0 || c.PayRun.DefaultWorkingDays > 31 {
		return fmt.Errorf("DEFAULT_WORKING_DAYS out of range: %d", c.PayRun.DefaultWorkingDays)
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.Interval <= 0 {
			return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
		}
		if len(c.Scheduler.Orgs) == 0 {
			return fmt.Errorf("SCHEDULER_ORGS is required when the scheduler is enabled")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// PayRunSettings converts to the orchestrator's settings.
func (c *Config) PayRunSettings() payrun.Config {
	return payrun.Config{
		Workers:            c.PayRun.Workers,
		BatchDeadline:      c.PayRun.BatchDeadline,
		AttendanceFallback: c.PayRun.AttendanceFallback,
		DefaultWorkingDays: c.PayRun.DefaultWorkingDays,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
