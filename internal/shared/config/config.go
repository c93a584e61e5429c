package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. GYMSPACE_DATABASE_HOST.
const EnvPrefix = "GYMSPACE"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig selects and sizes the plan cache.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // redis, memory, none
	PlanTTL   time.Duration `mapstructure:"plan_ttl"`
	Size      int           `mapstructure:"size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds bearer token validation and role configuration.
type AuthConfig struct {
	JWTSecret string              `mapstructure:"jwt_secret"`
	Issuer    string              `mapstructure:"issuer"`
	Roles     map[string][]string `mapstructure:"roles"`
}

// EngineConfig holds subscription engine tuning.
type EngineConfig struct {
	DefaultPlanID           string        `mapstructure:"default_plan_id"`
	RenewalWindow           time.Duration `mapstructure:"renewal_window"`
	NearingLimitThreshold   float64       `mapstructure:"nearing_limit_threshold"`
	SweepBatchSize          int           `mapstructure:"sweep_batch_size"`
	AnalyticsConcurrency    int           `mapstructure:"analytics_concurrency"`
	SystemActor             string        `mapstructure:"system_actor"`
	AuditBuffer             int           `mapstructure:"audit_buffer"`
	IdempotencyTTL          time.Duration `mapstructure:"idempotency_ttl"`
	AnalyticsCurrencies     []string      `mapstructure:"analytics_currencies"`
	AnalyticsLookbackMonths int           `mapstructure:"analytics_lookback_months"`
}

// UsageConfig holds the usage snapshot provider configuration.
type UsageConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout  time.Duration `mapstructure:"idle_conn_timeout"`
}

// StorageConfig holds object storage configuration for analytics reports.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// Enabled reports whether a bucket is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// SchedulerConfig holds cron schedules of background jobs.
type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
	AnalyticsSchedule string        `mapstructure:"analytics_schedule"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
}

// Load loads configuration from .env, the config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/gymspace")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Short aliases for secrets
	if secret := os.Getenv("GYMSPACE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("GYMSPACE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("GYMSPACE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("GYMSPACE_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("invalid cache.backend %q", c.Cache.Backend)
	}
	if c.Engine.NearingLimitThreshold <= 0 || c.Engine.NearingLimitThreshold > 100 {
		return fmt.Errorf("engine.nearing_limit_threshold must be in (0, 100], got %v", c.Engine.NearingLimitThreshold)
	}
	if c.Engine.RenewalWindow < 0 {
		return fmt.Errorf("engine.renewal_window must not be negative")
	}
	return nil
}

// setDefaults sets default configuration values. AutomaticEnv only binds keys
// viper already knows, so every key has a default, even an empty one.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "gymspace")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.plan_ttl", 10*time.Minute)
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.key_prefix", "gymspace:")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "gymspace")
	v.SetDefault("auth.roles", map[string][]string{
		"super_admin": {"ALL"},
	})

	// Engine defaults
	v.SetDefault("engine.default_plan_id", "")
	v.SetDefault("engine.renewal_window", 7*24*time.Hour)
	v.SetDefault("engine.nearing_limit_threshold", 80.0)
	v.SetDefault("engine.sweep_batch_size", 500)
	v.SetDefault("engine.analytics_concurrency", 8)
	v.SetDefault("engine.system_actor", "system")
	v.SetDefault("engine.audit_buffer", 1024)
	v.SetDefault("engine.idempotency_ttl", 24*time.Hour)
	v.SetDefault("engine.analytics_currencies", []string{"USD"})
	v.SetDefault("engine.analytics_lookback_months", 1)

	// Usage provider defaults
	v.SetDefault("usage.base_url", "")
	v.SetDefault("usage.timeout", 2*time.Second)
	v.SetDefault("usage.failure_threshold", 5)
	v.SetDefault("usage.circuit_timeout", 30*time.Second)
	v.SetDefault("usage.max_idle_conns", 50)
	v.SetDefault("usage.idle_conn_timeout", 90*time.Second)

	// Storage defaults
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "analytics/")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep_schedule", "@every 15m")
	v.SetDefault("scheduler.analytics_schedule", "@daily")
	v.SetDefault("scheduler.job_timeout", 5*time.Minute)
}
