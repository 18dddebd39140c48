// Package config loads service configuration with viper: an optional config
// file, then EVENTREG_* environment variables, then defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotifyConfig selects how notification intents are queued and delivered.
type NotifyConfig struct {
	Backend      string         `mapstructure:"backend"` // memory, redis
	Sender       string         `mapstructure:"sender"`  // log, sendgrid
	Workers      int            `mapstructure:"workers"`
	QueueSize    int            `mapstructure:"queue_size"`
	MaxRetries   int            `mapstructure:"max_retries"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff"`
	RedisKey     string         `mapstructure:"redis_key"`
	SendGrid     SendGridConfig `mapstructure:"sendgrid"`
}

type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

// ReminderConfig drives the reminder scheduler.
type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Lead     time.Duration `mapstructure:"lead"`
	Window   time.Duration `mapstructure:"window"`
}

type CacheConfig struct {
	SchemaTTL time.Duration `mapstructure:"schema_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // none, stdout, otlp
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

// Load reads configuration. path may be empty, in which case only the
// environment and defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("EVENTREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "eventreg")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "eventreg")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.connect_retries", 5)

	v.SetDefault("store.driver", "postgres")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("notify.backend", "memory")
	v.SetDefault("notify.sender", "log")
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("notify.retry_backoff", "1s")
	v.SetDefault("notify.redis_key", "eventreg:notifications")
	v.SetDefault("notify.sendgrid.api_key", "")
	v.SetDefault("notify.sendgrid.from_email", "no-reply@example.com")
	v.SetDefault("notify.sendgrid.from_name", "Event Registration")

	v.SetDefault("reminder.enabled", false)
	v.SetDefault("reminder.schedule", "@hourly")
	v.SetDefault("reminder.lead", "24h")
	v.SetDefault("reminder.window", "1h")

	v.SetDefault("cache.schema_ttl", "5m")

	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "eventreg")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Notify.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown notify.backend %q", c.Notify.Backend))
	}
	switch c.Notify.Sender {
	case "log":
	case "sendgrid":
		if c.Notify.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("notify.sendgrid.api_key is required for the sendgrid sender"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify.sender %q", c.Notify.Sender))
	}
	if c.Notify.Workers <= 0 {
		errs = append(errs, errors.New("notify.workers must be positive"))
	}
	if c.Notify.MaxRetries < 0 {
		errs = append(errs, errors.New("notify.max_retries must not be negative"))
	}
	if c.Reminder.Enabled && c.Reminder.Window <= 0 {
		errs = append(errs, errors.New("reminder.window must be positive"))
	}
	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("unknown tracing.exporter %q", c.Tracing.Exporter))
	}

	return errors.Join(errs...)
}
