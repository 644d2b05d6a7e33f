package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the slot watcher.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	SlotAPI   SlotAPIConfig   `mapstructure:"slot_api" validate:"required"`
	Poll      PollConfig      `mapstructure:"poll" validate:"required"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	FSM       FSMConfig       `mapstructure:"fsm"`
}

// LoggerConfig configures the slog handler chain.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token   string        `mapstructure:"token" validate:"required"`
	Mode    string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	Listen  string        `mapstructure:"listen"`
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password" validate:"required"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)
}

// RedisConfig defines connection parameters for Redis.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// SlotAPIConfig configures the scheduling service client.
type SlotAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	PageSize       int           `mapstructure:"page_size" validate:"gte=1"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

// PollConfig configures the reconciliation cycle.
type PollConfig struct {
	Schedule   string        `mapstructure:"schedule" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"required"`
	Workers    int           `mapstructure:"workers" validate:"gte=1"`
	Queue      string        `mapstructure:"queue"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// NotifyConfig configures delivery.
type NotifyConfig struct {
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SentryConfig toggles Sentry error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitRule describes a limit over a window, e.g. {limit: 20, window: "1m"}.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitCommands lists per-command limits.
type RateLimitCommands struct {
	Subscribe RateLimitRule `mapstructure:"subscribe"`
	Status    RateLimitRule `mapstructure:"status"`
}

// RateLimitConfig configures bot rate limiting.
type RateLimitConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	PerUser   RateLimitRule     `mapstructure:"per_user"`
	Commands  RateLimitCommands `mapstructure:"commands"`
	Whitelist []int64           `mapstructure:"whitelist"`
}

// FSMConfig configures dialog session housekeeping. StateTTL is the Redis
// key expiry; dialogs idle for DialogTimeout are reset by the cleaner.
type FSMConfig struct {
	StateTTL        time.Duration `mapstructure:"state_ttl"`
	DialogTimeout   time.Duration `mapstructure:"dialog_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}
