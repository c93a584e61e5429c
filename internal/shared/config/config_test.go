package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.PlanTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.RenewalWindow)
	assert.Equal(t, 80.0, cfg.Engine.NearingLimitThreshold)
	assert.Equal(t, []string{"USD"}, cfg.Engine.AnalyticsCurrencies)
	assert.Equal(t, uint32(5), cfg.Usage.FailureThreshold)
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, []string{"ALL"}, cfg.Auth.Roles["super_admin"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GYMSPACE_CACHE_BACKEND", "redis")
	t.Setenv("GYMSPACE_ENGINE_SWEEP_BATCH_SIZE", "50")
	t.Setenv("GYMSPACE_USAGE_BASE_URL", "http://usage.internal")
	t.Setenv("GYMSPACE_STORAGE_BUCKET", "reports")
	t.Setenv("GYMSPACE_JWT_SECRET", "s3cret")
	t.Setenv("GYMSPACE_DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 50, cfg.Engine.SweepBatchSize)
	assert.Equal(t, "http://usage.internal", cfg.Usage.BaseURL)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=pw")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Cache:  CacheConfig{Backend: "none"},
			Engine: EngineConfig{NearingLimitThreshold: 80},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown cache backend", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Backend = "memcached"
		assert.Error(t, cfg.Validate())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Engine.NearingLimitThreshold = 120
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative renewal window", func(t *testing.T) {
		cfg := valid()
		cfg.Engine.RenewalWindow = -time.Hour
		assert.Error(t, cfg.Validate())
	})
}
