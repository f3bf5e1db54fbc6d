package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://coldpost:pw@localhost:5432/coldpost?sslmode=disable"
  max_open_conns: 25

redis:
  url: "redis://localhost:6379/0"

jwt:
  secret: "test-secret"
  expires_hours: 12

sending:
  office_hours_start: 8
  office_hours_end: 18
  office_hours_enabled: true
  max_bounce_rate: 3.5
  min_delay_between_emails: 15
  max_delay_between_emails: 45
  batch_size_min: 10
  batch_size_max: 10
  batch_break_duration: 120

smtp_pool:
  max_pool_size: 3
  idle_timeout_sec: 120
  rate_limit: 5
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "postgres://coldpost:pw@localhost:5432/coldpost?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 12*time.Hour, cfg.JWT.ExpiresIn())

	assert.Equal(t, 8, cfg.Sending.OfficeHoursStart)
	assert.Equal(t, 18, cfg.Sending.OfficeHoursEnd)
	assert.True(t, cfg.Sending.OfficeHoursEnabled)
	assert.Equal(t, 3.5, cfg.Sending.MaxBounceRate)
	assert.Equal(t, 15, cfg.Sending.MinDelayBetweenEmails)
	assert.Equal(t, 45, cfg.Sending.MaxDelayBetweenEmails)
	assert.Equal(t, 10, cfg.Sending.BatchSizeMin)
	assert.Equal(t, 10, cfg.Sending.BatchSizeMax)
	assert.Equal(t, 120*time.Second, cfg.Sending.BatchBreak())

	assert.Equal(t, 3, cfg.SMTPPool.MaxPoolSize)
	assert.Equal(t, 120*time.Second, cfg.SMTPPool.IdleTimeout())
	assert.Equal(t, 5.0, cfg.SMTPPool.RateLimit)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://localhost/coldpost"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 24, cfg.JWT.ExpiresHours)
	assert.Equal(t, 9, cfg.Sending.OfficeHoursStart)
	assert.Equal(t, 17, cfg.Sending.OfficeHoursEnd)
	assert.Equal(t, 5.0, cfg.Sending.MaxBounceRate)
	assert.Equal(t, 500, cfg.Sending.DefaultDailyLimit)
	assert.Equal(t, 5, cfg.Sending.BatchSizeMin)
	assert.Equal(t, 20, cfg.Sending.BatchSizeMax)
	assert.Equal(t, 3, cfg.Sending.MaxRetriesPerEmail)
	assert.Equal(t, 2000, cfg.Sending.RetryBackoffMs)
	assert.Equal(t, 5, cfg.SMTPPool.MaxPoolSize)
	assert.Equal(t, 100, cfg.SMTPPool.MaxMessages)
	assert.Equal(t, 2, cfg.Workers.TickConcurrency)
	assert.Equal(t, 3, cfg.Workers.SendConcurrency)
	assert.Equal(t, "@every 60s", cfg.Workers.SweepSpec)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/coldpost"
jwt:
  secret: "file-secret"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	os.Setenv("DATABASE_URL", "postgres://env-host/coldpost")
	os.Setenv("JWT_SECRET", "env-secret")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/coldpost", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://only-env/coldpost")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://only-env/coldpost", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
