// Package config loads and validates environment variables at startup.
// Fail-fast: if a variable is missing or malformed, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all runtime configuration for the allocation service.
type Config struct {
	Port          string
	GRPCPort      string
	DatabaseURL   string // registry source; takes precedence over FixturePath
	FixturePath   string // YAML registry source
	RedisURL      string // optional event fan-out
	OfferWindow   time.Duration
	SweepSpec     string // cron spec of the overdue-offer sweep
	StatsSpec     string // cron spec of the statistics log line
	AutoStart     bool
	HTTPRateLimit float64 // requests/second per client on mutating routes
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	fixture := os.Getenv("ALLOCATION_FIXTURE")
	if dbURL == "" && fixture == "" {
		return nil, fmt.Errorf("DATABASE_URL or ALLOCATION_FIXTURE is required")
	}

	window := 24 * time.Hour
	if s := os.Getenv("OFFER_ACCEPT_WINDOW"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("OFFER_ACCEPT_WINDOW must be a positive duration, got %q", s)
		}
		window = d
	}

	sweep, err := cronSpec("DEADLINE_SWEEP_SPEC", "@every 1m")
	if err != nil {
		return nil, err
	}
	stats, err := cronSpec("STATS_LOG_SPEC", "@every 5m")
	if err != nil {
		return nil, err
	}

	autoStart := false
	if s := os.Getenv("ALLOCATION_AUTOSTART"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("ALLOCATION_AUTOSTART must be a boolean, got %q", s)
		}
		autoStart = v
	}

	limit := 20.0
	if s := os.Getenv("HTTP_RATE_LIMIT"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("HTTP_RATE_LIMIT must be a positive number, got %q", s)
		}
		limit = v
	}

	port := os.Getenv("ALLOCATION_PORT")
	if port == "" {
		port = "8083"
	}
	grpcPort := os.Getenv("ALLOCATION_GRPC_PORT")
	if grpcPort == "" {
		grpcPort = "9093"
	}

	return &Config{
		Port:          port,
		GRPCPort:      grpcPort,
		DatabaseURL:   dbURL,
		FixturePath:   fixture,
		RedisURL:      os.Getenv("REDIS_URL"),
		OfferWindow:   window,
		SweepSpec:     sweep,
		StatsSpec:     stats,
		AutoStart:     autoStart,
		HTTPRateLimit: limit,
	}, nil
}

// cronSpec reads a cron spec and checks that robfig/cron accepts it.
func cronSpec(key, def string) (string, error) {
	spec := os.Getenv(key)
	if spec == "" {
		spec = def
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("%s: invalid cron spec %q: %w", key, spec, err)
	}
	return spec, nil
}
