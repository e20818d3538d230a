// Package config reads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/db"
	"github.com/evcraddock/visit-scheduler/internal/logging"
	"github.com/evcraddock/visit-scheduler/internal/notify"
)

// Config holds server configuration.
type Config struct {
	Port           int
	DB             string // SQLite path or postgres:// DSN
	DevMode        bool
	LogLevel       slog.Level
	Location       *time.Location
	WorkdayStart   time.Duration // offset from local midnight
	WorkdayEnd     time.Duration
	SlotStep       time.Duration
	BulkParallel   int
	RequireAPIKey  bool
	SMTP           notify.SMTPConfig
	RequestTimeout time.Duration
}

// FromEnv creates a Config from VS_* environment variables. Unset variables
// take their defaults; malformed values are errors.
func FromEnv() (Config, error) {
	var errs []error
	fail := func(err error) { errs = append(errs, err) }

	cfg := Config{
		DevMode: envBool("VS_DEV_MODE", false, fail),
		SMTP: notify.SMTPConfig{
			Host: os.Getenv("VS_SMTP_HOST"),
			Port: envOrDefault("VS_SMTP_PORT", "587"),
			User: os.Getenv("VS_SMTP_USER"),
			Pass: os.Getenv("VS_SMTP_PASS"),
			From: os.Getenv("VS_SMTP_FROM"),
		},
		RequireAPIKey:  envBool("VS_REQUIRE_API_KEY", true, fail),
		Port:           envInt("VS_PORT", 8080, 1, 65535, fail),
		BulkParallel:   envInt("VS_BULK_PARALLELISM", 4, 1, 64, fail),
		SlotStep:       time.Duration(envInt("VS_SLOT_STEP_MINUTES", 30, 5, 240, fail)) * time.Minute,
		RequestTimeout: time.Duration(envInt("VS_REQUEST_TIMEOUT_SECONDS", 15, 1, 300, fail)) * time.Second,
	}

	cfg.DB = os.Getenv("VS_DB")
	if cfg.DB == "" {
		path, err := db.DefaultPath()
		if err != nil {
			fail(err)
		}
		cfg.DB = path
	}

	level, err := logging.ParseLevel(os.Getenv("VS_LOG_LEVEL"), defaultLevel(cfg.DevMode))
	if err != nil {
		fail(fmt.Errorf("VS_LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	loc, err := time.LoadLocation(envOrDefault("VS_TIMEZONE", "UTC"))
	if err != nil {
		fail(fmt.Errorf("VS_TIMEZONE: %w", err))
		loc = time.UTC
	}
	cfg.Location = loc

	cfg.WorkdayStart = envClock("VS_WORKDAY_START", 8*time.Hour, fail)
	cfg.WorkdayEnd = envClock("VS_WORKDAY_END", 19*time.Hour, fail)
	if cfg.WorkdayEnd <= cfg.WorkdayStart {
		fail(fmt.Errorf("VS_WORKDAY_END must be after VS_WORKDAY_START"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func defaultLevel(devMode bool) slog.Level {
	if devMode {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool, fail func(error)) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fail(fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func envInt(key string, fallback, lo, hi int, fail func(error)) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fail(fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	if n < lo || n > hi {
		fail(fmt.Errorf("%s: %d is outside %d..%d", key, n, lo, hi))
		return fallback
	}
	return n
}

// envClock parses an HH:MM wall-clock value into an offset from midnight.
func envClock(key string, fallback time.Duration, fail func(error)) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := ParseClock(v)
	if err != nil {
		fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

// ParseClock parses "HH:MM" (00:00 to 24:00) into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || mm < 0 || mm > 59 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
