package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/step-engine/internal/config"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
	assert.Equal(t, "migrations", cfg.MigrationsPath)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 10*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("WORKERS", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DB_MAX_CONNS", "7")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "k1:9092,k2:9092", cfg.KafkaBrokers)
	assert.Equal(t, int32(7), cfg.DBMaxConns)
}

func TestLoad_ConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL: postgres://file/engine\nWORKERS: 4\nHTTP_PORT: \"9000\"\n"), 0o600))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/engine", cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "9100", cfg.HTTPPort)
}

func TestLoad_RejectsInvalidWorkers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine")
	t.Setenv("WORKERS", "0")

	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoad_ClaimTTLMustOutliveDispatch(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine")
	t.Setenv("DISPATCH_TIMEOUT", "30s")
	t.Setenv("CLAIM_TTL", "30s")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLAIM_TTL")

	t.Setenv("CLAIM_TTL", "2m")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.ClaimTTL)
}
