package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "REDIS_ADDR", "RECOMPUTE_WORKERS", "RECOMPUTE_TIMEOUT_SECONDS", "LOG_ENCODING", "AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "main-store", cfg.StoreID)
	assert.Equal(t, 4, cfg.RecomputeWorkers)
	assert.Equal(t, 2*time.Minute, cfg.RecomputeTimeout)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "json", cfg.LogEncoding)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")
	t.Setenv("RECOMPUTE_WORKERS", "8")
	t.Setenv("RECOMPUTE_SCHEDULE", "*/15 * * * *")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_ENCODING", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "padded-secret", cfg.AuthSecret)
	assert.Equal(t, 8, cfg.RecomputeWorkers)
	assert.Equal(t, "*/15 * * * *", cfg.RecomputeSchedule)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogEncoding)
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("RECOMPUTE_WORKERS", "many")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.RecomputeWorkers)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}

func TestLoadRejectsUnknownEncoding(t *testing.T) {
	t.Setenv("LOG_ENCODING", "xml")

	_, err := Load()
	assert.Error(t, err)
}
