package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"CLERK_SECRET_KEY": "sk_test",
		"DATABASE_URL":     "postgres://localhost/drinks",
	}))
	require.NoError(t, err)

	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, time.Sunday, cfg.WeekStart)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 30, cfg.RateLimitBurst)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.NotNil(t, cfg.Location)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"CLERK_SECRET_KEY": "sk_test",
		"STORE_DRIVER":     "SQLite",
		"SQLITE_PATH":      "/tmp/x.db",
		"WEEK_START":       "Monday",
		"TIMEZONE":         "Europe/Sofia",
		"PORT":             "8080",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, time.Monday, cfg.WeekStart)
	assert.Equal(t, "Europe/Sofia", cfg.Location.String())
	assert.Equal(t, "8080", cfg.Port)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing clerk key", map[string]string{"STORE_DRIVER": "memory"}},
		{"postgres without url", map[string]string{"CLERK_SECRET_KEY": "k"}},
		{"unknown driver", map[string]string{"CLERK_SECRET_KEY": "k", "STORE_DRIVER": "mongo"}},
		{"bad week start", map[string]string{"CLERK_SECRET_KEY": "k", "STORE_DRIVER": "memory", "WEEK_START": "friday"}},
		{"bad timezone", map[string]string{"CLERK_SECRET_KEY": "k", "STORE_DRIVER": "memory", "TIMEZONE": "Mars/Base"}},
		{"bad burst", map[string]string{"CLERK_SECRET_KEY": "k", "STORE_DRIVER": "memory", "RATE_LIMIT_BURST": "lots"}},
		{"bad ttl", map[string]string{"CLERK_SECRET_KEY": "k", "STORE_DRIVER": "memory", "SESSION_IDLE_TTL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.env))
			assert.Error(t, err)
		})
	}
}
