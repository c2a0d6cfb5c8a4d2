package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.UseRealDatabase)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.True(t, cfg.EnableAutoVerification)
	assert.True(t, cfg.EnableDeltaCheck)
	assert.True(t, cfg.EnableReviewEscalation)
	assert.Equal(t, 3, cfg.RetryMaxRetries)
}

func TestLoad_RejectsUnknownJWTAlgorithm(t *testing.T) {
	t.Setenv("JWT_ALGORITHM", "RS256")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ALGORITHM")
}

func TestLoad_ProdRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SECRET_KEY", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("ENABLE_DELTA_CHECK", "false")
	t.Setenv("PULL_INTERVAL", "2m")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())
	assert.False(t, cfg.EnableDeltaCheck)
	assert.Equal(t, "2m0s", cfg.PullInterval.String())
}
