package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	ClerkSecretKey string

	MetricsUser string
	MetricsPass string
	PprofSecret string

	FCMCredentialsJSON string
	FCMCredentialsFile string

	WeekStart time.Weekday
	Location  *time.Location

	RateLimitRPS   float64
	RateLimitBurst int

	SessionIdleTTL time.Duration
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:               get("PORT", "3333"),
		StoreDriver:        strings.ToLower(get("STORE_DRIVER", "postgres")),
		DatabaseURL:        get("DATABASE_URL", ""),
		SQLitePath:         get("SQLITE_PATH", "data/drinks.db"),
		ClerkSecretKey:     get("CLERK_SECRET_KEY", ""),
		MetricsUser:        get("METRICS_USER", ""),
		MetricsPass:        get("METRICS_PASS", ""),
		PprofSecret:        get("PPROF_SECRET", ""),
		FCMCredentialsJSON: get("FCM_SERVICE_ACCOUNT_JSON", ""),
		FCMCredentialsFile: get("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
	}

	var err error
	if cfg.WeekStart, err = parseWeekStart(get("WEEK_START", "sunday")); err != nil {
		return nil, err
	}

	if cfg.Location, err = time.LoadLocation(get("TIMEZONE", "Local")); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if cfg.RateLimitRPS, err = strconv.ParseFloat(get("RATE_LIMIT_RPS", "5"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(get("RATE_LIMIT_BURST", "30")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	if cfg.SessionIdleTTL, err = time.ParseDuration(get("SESSION_IDLE_TTL", "30m")); err != nil {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TTL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClerkSecretKey == "" {
		return errors.New("CLERK_SECRET_KEY environment variable is not set")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func parseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	default:
		return 0, fmt.Errorf("invalid WEEK_START %q (want sunday or monday)", s)
	}
}
