// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RCON      RCONConfig      `mapstructure:"rcon"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// RCONConfig contains game-server RCON connection settings for allow-list sync.
type RCONConfig struct {
	Address     string `mapstructure:"address"`
	Password    string `mapstructure:"password"`
	DialTimeout int    `mapstructure:"dial_timeout"` // seconds
	MaxRetries  int    `mapstructure:"max_retries"`
	Enabled     bool   `mapstructure:"enabled"`
}

// NotifierConfig contains outbound webhook notification settings.
type NotifierConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// SchedulerConfig contains periodic job settings: the expiry sweep over
// applications whose voting window has passed, and the amnesty decay job.
type SchedulerConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	SweepIntervalMinutes int    `mapstructure:"sweep_interval_minutes"`
	AmnestySchedule      string `mapstructure:"amnesty_schedule"` // Cron expression
	Timezone             string `mapstructure:"timezone"`
}

// PolicyConfig seeds the system_settings row on first run. After that the
// database row is authoritative and is edited through the admin API.
type PolicyConfig struct {
	VotingDurationHours       int     `mapstructure:"voting_duration_hours"`
	MinVotes                  int     `mapstructure:"min_votes"`
	ParticipationPercent      float64 `mapstructure:"participation_percent"`
	ApprovalThresholdPercent  float64 `mapstructure:"approval_threshold_percent"`
	RejectionThresholdPercent float64 `mapstructure:"rejection_threshold_percent"`
	SmallCommunityThreshold   int     `mapstructure:"small_community_threshold"`
	NegativeRatingsThreshold  float64 `mapstructure:"negative_ratings_threshold"`
	RatingCooldownMinutes     int     `mapstructure:"rating_cooldown_minutes"`
	MaxDailyRatings           int     `mapstructure:"max_daily_ratings"`
	AmnestyReductionPercent   float64 `mapstructure:"amnesty_reduction_percent"`
	RequireNegativeReason     bool    `mapstructure:"require_negative_reason"`
}

// MetricsConfig contains Prometheus metrics exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gatekeeper/")
	}

	setDefaults(v)

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// RCON configuration
	_ = v.BindEnv("rcon.address", "RCON_ADDRESS")
	_ = v.BindEnv("rcon.password", "RCON_PASSWORD")
	_ = v.BindEnv("rcon.enabled", "RCON_ENABLED")

	// Notifier configuration
	_ = v.BindEnv("notifier.webhook_url", "NOTIFIER_WEBHOOK_URL")
	_ = v.BindEnv("notifier.channel", "NOTIFIER_CHANNEL")
	_ = v.BindEnv("notifier.enabled", "NOTIFIER_ENABLED")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.sweep_interval_minutes", "SCHEDULER_SWEEP_INTERVAL_MINUTES")
	_ = v.BindEnv("scheduler.amnesty_schedule", "SCHEDULER_AMNESTY_SCHEDULE")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers defaults for fields that are safe to omit.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("database.redis.cache_ttl", 300)
	v.SetDefault("rcon.dial_timeout", 5)
	v.SetDefault("rcon.max_retries", 3)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep_interval_minutes", 5)
	v.SetDefault("scheduler.amnesty_schedule", "0 4 * * 0")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("policy.voting_duration_hours", 48)
	v.SetDefault("policy.min_votes", 3)
	v.SetDefault("policy.participation_percent", 40)
	v.SetDefault("policy.approval_threshold_percent", 60)
	v.SetDefault("policy.rejection_threshold_percent", 50)
	v.SetDefault("policy.small_community_threshold", 5)
	v.SetDefault("policy.negative_ratings_threshold", 30)
	v.SetDefault("policy.rating_cooldown_minutes", 60)
	v.SetDefault("policy.max_daily_ratings", 5)
	v.SetDefault("policy.amnesty_reduction_percent", 25)
	v.SetDefault("policy.require_negative_reason", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.RCON.Enabled && c.RCON.Address == "" {
		return fmt.Errorf("rcon.address is required when rcon is enabled")
	}
	if c.RCON.Enabled && c.RCON.Password == "" {
		return fmt.Errorf("rcon.password is required when rcon is enabled")
	}
	if c.Notifier.Enabled && c.Notifier.WebhookURL == "" {
		return fmt.Errorf("notifier.webhook_url is required when notifier is enabled")
	}
	if c.Policy.ParticipationPercent <= 0 || c.Policy.ParticipationPercent > 100 {
		return fmt.Errorf("policy.participation_percent must be in (0, 100]")
	}
	if c.Policy.ApprovalThresholdPercent <= 0 || c.Policy.ApprovalThresholdPercent > 100 {
		return fmt.Errorf("policy.approval_threshold_percent must be in (0, 100]")
	}
	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SweepInterval returns the expiry sweep interval as a duration.
func (c *SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
