package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	Sending    SendingConfig    `yaml:"sending"`
	SMTPPool   SMTPPoolConfig   `yaml:"smtp_pool"`
	Workers    WorkersConfig    `yaml:"workers"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracking   TrackingConfig   `yaml:"tracking"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection and env override.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds Redis connection settings for the job queue
type RedisConfig struct {
	URL string `yaml:"url"`
}

// JWTConfig holds auth token settings
type JWTConfig struct {
	Secret       string `yaml:"secret"`
	ExpiresHours int    `yaml:"expires_hours"`
}

// ExpiresIn returns the token lifetime as a duration
func (c JWTConfig) ExpiresIn() time.Duration {
	return time.Duration(c.ExpiresHours) * time.Hour
}

// SendingConfig holds pacing, quota, and bounce-policy settings
type SendingConfig struct {
	OfficeHoursStart      int     `yaml:"office_hours_start"`
	OfficeHoursEnd        int     `yaml:"office_hours_end"`
	OfficeHoursEnabled    bool    `yaml:"office_hours_enabled"`
	MaxBounceRate         float64 `yaml:"max_bounce_rate"`
	DefaultDailyLimit     int     `yaml:"default_daily_limit"`
	MinDelayBetweenEmails int     `yaml:"min_delay_between_emails"`
	MaxDelayBetweenEmails int     `yaml:"max_delay_between_emails"`
	BatchSizeMin          int     `yaml:"batch_size_min"`
	BatchSizeMax          int     `yaml:"batch_size_max"`
	BatchBreakDuration    int     `yaml:"batch_break_duration"`
	MaxRetriesPerEmail    int     `yaml:"max_retries_per_email"`
	RetryBackoffMs        int     `yaml:"retry_backoff_ms"`
	UnsubscribeHost       string  `yaml:"unsubscribe_host"`
}

// BatchBreak returns the pause between batches as a duration
func (c SendingConfig) BatchBreak() time.Duration {
	return time.Duration(c.BatchBreakDuration) * time.Second
}

// SMTPPoolConfig holds connection pool behavior
type SMTPPoolConfig struct {
	MaxPoolSize    int     `yaml:"max_pool_size"`
	IdleTimeoutSec int     `yaml:"idle_timeout_sec"`
	MaxConnections int     `yaml:"max_connections"`
	MaxMessages    int     `yaml:"max_messages"`
	RateLimit      float64 `yaml:"rate_limit"`
}

// IdleTimeout returns the idle reap threshold as a duration
func (c SMTPPoolConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// WorkersConfig holds queue worker pool sizing
type WorkersConfig struct {
	TickConcurrency int    `yaml:"tick_concurrency"`
	SendConcurrency int    `yaml:"send_concurrency"`
	SweepSpec       string `yaml:"sweep_spec"`
}

// EncryptionConfig holds the symmetric key for SMTP credentials
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// LoggingConfig holds log level and redaction settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// TrackingConfig holds the public host used to build unsubscribe links
type TrackingConfig struct {
	Host string `yaml:"host"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.JWT.ExpiresHours == 0 {
		cfg.JWT.ExpiresHours = 24
	}
	if cfg.Sending.OfficeHoursStart == 0 && cfg.Sending.OfficeHoursEnd == 0 {
		cfg.Sending.OfficeHoursStart = 9
		cfg.Sending.OfficeHoursEnd = 17
	}
	if cfg.Sending.MaxBounceRate == 0 {
		cfg.Sending.MaxBounceRate = 5.0
	}
	if cfg.Sending.DefaultDailyLimit == 0 {
		cfg.Sending.DefaultDailyLimit = 500
	}
	if cfg.Sending.MinDelayBetweenEmails == 0 {
		cfg.Sending.MinDelayBetweenEmails = 30
	}
	if cfg.Sending.MaxDelayBetweenEmails == 0 {
		cfg.Sending.MaxDelayBetweenEmails = 120
	}
	if cfg.Sending.BatchSizeMin == 0 {
		cfg.Sending.BatchSizeMin = 5
	}
	if cfg.Sending.BatchSizeMax == 0 {
		cfg.Sending.BatchSizeMax = 20
	}
	if cfg.Sending.BatchBreakDuration == 0 {
		cfg.Sending.BatchBreakDuration = 300
	}
	if cfg.Sending.MaxRetriesPerEmail == 0 {
		cfg.Sending.MaxRetriesPerEmail = 3
	}
	if cfg.Sending.RetryBackoffMs == 0 {
		cfg.Sending.RetryBackoffMs = 2000
	}
	if cfg.SMTPPool.MaxPoolSize == 0 {
		cfg.SMTPPool.MaxPoolSize = 5
	}
	if cfg.SMTPPool.IdleTimeoutSec == 0 {
		cfg.SMTPPool.IdleTimeoutSec = 300
	}
	if cfg.SMTPPool.MaxConnections == 0 {
		cfg.SMTPPool.MaxConnections = 10
	}
	if cfg.SMTPPool.MaxMessages == 0 {
		cfg.SMTPPool.MaxMessages = 100
	}
	if cfg.SMTPPool.RateLimit == 0 {
		cfg.SMTPPool.RateLimit = 10
	}
	if cfg.Workers.TickConcurrency == 0 {
		cfg.Workers.TickConcurrency = 2
	}
	if cfg.Workers.SendConcurrency == 0 {
		cfg.Workers.SendConcurrency = 3
	}
	if cfg.Workers.SweepSpec == "" {
		cfg.Workers.SweepSpec = "@every 60s"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Tracking.Host == "" {
		cfg.Tracking.Host = "localhost:8080"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &Config{}
		cfg.applyDefaults()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.Key = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRACKING_HOST"); v != "" {
		cfg.Tracking.Host = v
	}
	if cfg.Sending.UnsubscribeHost == "" {
		cfg.Sending.UnsubscribeHost = cfg.Tracking.Host
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SEND_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers.SendConcurrency = n
		}
	}

	return cfg, nil
}
