package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("BRIDGE_TIMEOUT", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("SYNC_URL", "")
	t.Setenv("SYNC_INTERVAL", "")

	cfg := FromEnv()
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 5*time.Second, cfg.BridgeTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5000"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnableLocalAuth)
	assert.Empty(t, cfg.SyncURL)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("BRIDGE_TIMEOUT", "not-a-duration")
	t.Setenv("ENABLE_LOCAL_AUTH", "no")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := FromEnv()
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.BridgeTimeout)
	assert.False(t, cfg.EnableLocalAuth)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
