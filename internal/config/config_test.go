package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "coachsync", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "US", cfg.Identity.DefaultRegion)
	assert.Equal(t, 72, cfg.Reconcile.LookbackHours)
	assert.Equal(t, 15, cfg.Reconcile.ProximityMinutes)
	assert.Equal(t, 900, cfg.Reconcile.IntervalSeconds)
	assert.Equal(t, 0, cfg.Reconcile.MaxRuntimeSec)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("IDENTITY_HASH_KEY", "secret")
	t.Setenv("PHONE_DEFAULT_REGION", "GB")
	t.Setenv("RECONCILE_LOOKBACK_HOURS", "24")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "0")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "secret", cfg.Identity.HashKey)
	assert.Equal(t, "GB", cfg.Identity.DefaultRegion)
	assert.Equal(t, 24, cfg.Reconcile.LookbackHours)
	assert.Equal(t, 0, cfg.Reconcile.IntervalSeconds)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg := Load()

	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db.internal", Port: 5432,
		User: "svc", Password: "pw",
		Database: "coachsync", SSLMode: "require",
	}

	assert.Equal(t,
		"host=db.internal port=5432 user=svc password=pw dbname=coachsync sslmode=require",
		c.GetDSN())
}
