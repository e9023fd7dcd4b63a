package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvProduction is the APP_ENV value that disables development output such
// as console logs and the test-connection debug block.
const EnvProduction = "production"

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort     string             `yaml:"http_port"`
	Env          string             `yaml:"env"`
	LogLevel     string             `yaml:"log_level"`
	Local        bool               `yaml:"local"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Provider     ProviderConfig     `yaml:"provider"`
	Security     SecurityConfig     `yaml:"security"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	ExecutionLog ExecutionLogConfig `yaml:"execution_log"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory provider registry.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis connection settings. An empty address disables the
// execution-log buffer and spend tracking.
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"` // outbound vendor call timeout, 0 selects 60s
	File           string        `yaml:"file"`            // YAML seed for the in-memory registry
	Watch          bool          `yaml:"watch"`           // reload File when it changes
	CacheSize      int           `yaml:"cache_size"`      // 0 disables the lookup cache
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// SecurityConfig holds the credential encryption secret
type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ExecutionLogConfig controls the Redis execution-record buffer
type ExecutionLogConfig struct {
	QueueKey string `yaml:"queue_key"`
	MaxSize  int64  `yaml:"max_size"`
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		HTTPPort: "8080",
		Env:      "development",
		LogLevel: "info",
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Provider: ProviderConfig{
			RequestTimeout: 60 * time.Second,
			CacheSize:      500,
			CacheTTL:       30 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
		ExecutionLog: ExecutionLogConfig{
			QueueKey: "lens:executions",
			MaxSize:  100_000,
		},
	}
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment variables on top of it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvString("HTTP_PORT", c.HTTPPort)
	c.Env = getEnvString("APP_ENV", c.Env)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.Local = getEnvBool("LOCAL", c.Local)

	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", c.Database.ConnMaxIdleTime)
	c.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.Address = getEnvString("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", c.Redis.MinIdleConns)
	c.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", c.Redis.DialTimeout)
	c.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", c.Redis.ReadTimeout)
	c.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", c.Redis.WriteTimeout)

	c.Provider.RequestTimeout = getEnvDuration("PROVIDER_REQUEST_TIMEOUT", c.Provider.RequestTimeout)
	c.Provider.File = getEnvString("PROVIDERS_FILE", c.Provider.File)
	c.Provider.Watch = getEnvBool("PROVIDERS_WATCH", c.Provider.Watch)
	c.Provider.CacheSize = getEnvInt("PROVIDER_CACHE_SIZE", c.Provider.CacheSize)
	c.Provider.CacheTTL = getEnvDuration("PROVIDER_CACHE_TTL", c.Provider.CacheTTL)

	c.Security.EncryptionKey = getEnvString("ENCRYPTION_KEY", c.Security.EncryptionKey)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)

	c.ExecutionLog.QueueKey = getEnvString("EXECUTION_LOG_QUEUE_KEY", c.ExecutionLog.QueueKey)
	c.ExecutionLog.MaxSize = getEnvInt64("EXECUTION_LOG_MAX_SIZE", c.ExecutionLog.MaxSize)
}

// Validate rejects settings the gateway cannot start with
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.HTTPPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be a port number, got %q", c.HTTPPort))
	}
	if c.Provider.RequestTimeout < 0 {
		errs = append(errs, errors.New("PROVIDER_REQUEST_TIMEOUT must not be negative"))
	}
	if c.Provider.CacheSize < 0 {
		errs = append(errs, errors.New("PROVIDER_CACHE_SIZE must not be negative"))
	}
	if c.ExecutionLog.MaxSize <= 0 {
		errs = append(errs, errors.New("EXECUTION_LOG_MAX_SIZE must be positive"))
	}
	if c.Database.URL != "" && c.Provider.File != "" {
		errs = append(errs, errors.New("DATABASE_URL and PROVIDERS_FILE are mutually exclusive"))
	}

	return errors.Join(errs...)
}
