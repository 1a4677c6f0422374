package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mwhitfield/ledgerline/internal/auth"
	"github.com/mwhitfield/ledgerline/internal/features"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, []string{"https://app.ledgerline.dev"}, cfg.Server.CORS.AllowedOrigins)
	require.True(t, cfg.Server.RateLimit.Enabled)
	require.Equal(t, 120, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 6543, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "cache.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.True(t, cfg.Cache.Redis.TLS)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, 10*time.Second, cfg.Features.FlagTTL)
	require.Equal(t, 45*time.Second, cfg.Features.RequirementTTL)
	require.Equal(t, 20*time.Second, cfg.Features.DecisionTTL)
	require.Equal(t, "error", cfg.Features.FallbackPolicy)
	require.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Accounts.EncryptionKey)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "ledgerline-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, "root", cfg.Auth.Bootstrap.Username)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 30m", cfg.Maintenance.Schedule)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.False(t, cfg.Maintenance.AutoPaySweep)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "json", cfg.Server.LogFormat)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 30*time.Second, cfg.Features.FlagTTL)
	require.Equal(t, 60*time.Second, cfg.Features.RequirementTTL)
	require.Equal(t, "defaults", cfg.Features.FallbackPolicy)
	require.Equal(t, "admin", cfg.Auth.Bootstrap.Username)
	require.Equal(t, "@hourly", cfg.Maintenance.Schedule)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
		},
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, jwtCfg)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)
}

func TestFeatureConfigPolicy(t *testing.T) {
	require.Equal(t, features.FallbackDefaults, FeatureConfig{}.Policy())
	require.Equal(t, features.FallbackDefaults, FeatureConfig{FallbackPolicy: "defaults"}.Policy())
	require.Equal(t, features.FallbackError, FeatureConfig{FallbackPolicy: "error"}.Policy())
	require.Equal(t, features.FallbackError, FeatureConfig{FallbackPolicy: "DENY"}.Policy())
}

func TestFeatureConfigOptionCounts(t *testing.T) {
	cfg := FeatureConfig{
		FlagTTL:        10 * time.Second,
		RequirementTTL: 20 * time.Second,
		DecisionTTL:    30 * time.Second,
	}

	require.Len(t, cfg.ProviderOptions(), 4)
	require.Len(t, cfg.FlagOptions(), 1)
	require.Len(t, cfg.APIGateOptions(), 1)
	require.Len(t, cfg.ServiceGuardOptions(), 1)
	require.Len(t, cfg.RepositoryGuardOptions(), 1)

	zero := FeatureConfig{}
	require.Len(t, zero.ProviderOptions(), 2)
	require.Empty(t, zero.FlagOptions())
}
