package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
app:
  name: rpm-test
database:
  driver: postgres
  dsn: postgres://rpm@localhost/rpm?sslmode=disable
job:
  schedule: "*/30 * * * * *"
  workers: 8
  activity_window: 24h
nats:
  enabled: true
  url: nats://nats:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rpm-test", cfg.App.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Job.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Job.ActivityWindow)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)

	// defaults fill the rest
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Job.LockTTL)
	assert.Zero(t, cfg.Job.RunTimeout)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddr)
	assert.Equal(t, 3, cfg.NATS.PublishAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.NATS.PublishBackoff)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("RPM_LOG_LEVEL", "debug")
	t.Setenv("RPM_JOB_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Job.Workers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite3", DSN: "rpm.db"},
			Job: JobConfig{
				Schedule:       "0 */5 * * * *",
				Workers:        1,
				ActivityWindow: time.Hour,
				LockTTL:        time.Minute,
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"five field cron", func(c *Config) { c.Job.Schedule = "*/5 * * * *" }},
		{"zero workers", func(c *Config) { c.Job.Workers = 0 }},
		{"zero window", func(c *Config) { c.Job.ActivityWindow = 0 }},
		{"zero lock ttl", func(c *Config) { c.Job.LockTTL = 0 }},
		{"negative run timeout", func(c *Config) { c.Job.RunTimeout = -time.Second }},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
