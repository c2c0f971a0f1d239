package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration, per the enumerated
// configuration shape: host/port/unix_socket, auth, watcher, cache, logging,
// and max_connections.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	UnixSocket     string        `mapstructure:"unix_socket"`
	MaxConnections int           `mapstructure:"max_connections"`
	RepositoryRoot string        `mapstructure:"repository_root"`

	Auth    AuthConfig    `mapstructure:"auth"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`

	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// RateLimitConfig holds the per-transport-kind request-per-window caps.
type RateLimitConfig struct {
	HTTPRPM  int `mapstructure:"http_rpm"`
	WSMPM    int `mapstructure:"ws_mpm"`
	LocalMPM int `mapstructure:"local_mpm"`
}

// AuditLoggingConfig configures the Session Manager's audit ledger.
type AuditLoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// SecurityConfig configures brute-force lockout and session/IP policy.
type SecurityConfig struct {
	MaxFailedAttempts            int           `mapstructure:"max_failed_attempts"`
	LockoutDuration               time.Duration `mapstructure:"lockout_duration_seconds"`
	InvalidateSessionOnIPChange   bool          `mapstructure:"invalidate_session_on_ip_change"`
}

// AuthConfig configures the Session/Token Manager and request pipeline.
type AuthConfig struct {
	Enabled        bool                `mapstructure:"enabled"`
	APIKey         string              `mapstructure:"api_key"`
	JWTSecret      string              `mapstructure:"jwt_secret"`
	AllowedOrigins []string            `mapstructure:"allowed_origins"`
	RateLimiting   RateLimitConfig     `mapstructure:"rate_limiting"`
	AuditLogging   AuditLoggingConfig  `mapstructure:"audit_logging"`
	Security       SecurityConfig      `mapstructure:"security"`
}

// WatcherConfig configures the file-system observer.
type WatcherConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	WatchDirs    []string `mapstructure:"watch_dirs"`
	FilePatterns []string `mapstructure:"file_patterns"`
	DebounceMS   int      `mapstructure:"debounce_ms"`
	Recursive    bool     `mapstructure:"recursive"`
	IgnoreHidden bool     `mapstructure:"ignore_hidden"`
}

// EvictionPolicy names a Cache Manager eviction strategy.
type EvictionPolicy string

const (
	EvictionLRU    EvictionPolicy = "LRU"
	EvictionLFU    EvictionPolicy = "LFU"
	EvictionFIFO   EvictionPolicy = "FIFO"
	EvictionTTL    EvictionPolicy = "TTL"
	EvictionSize   EvictionPolicy = "Size"
	EvictionHybrid EvictionPolicy = "Hybrid"
)

// CacheConfig configures the multi-layer Cache Manager.
type CacheConfig struct {
	MemoryEnabled      bool           `mapstructure:"memory_enabled"`
	TTLSeconds         int            `mapstructure:"ttl_seconds"`
	MaxEntries         int            `mapstructure:"max_entries"`
	MaxSizeBytes       int64          `mapstructure:"max_size_bytes"`
	CompressionEnabled bool           `mapstructure:"compression_enabled"`
	CompressionLevel   int            `mapstructure:"compression_level"`
	EvictionPolicy     EvictionPolicy `mapstructure:"eviction_policy"`
	RedisAddr          string         `mapstructure:"redis_addr"`
	RedisPassword      string         `mapstructure:"redis_password"`
	RedisDB            int            `mapstructure:"redis_db"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Structured bool   `mapstructure:"structured"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	setDefaults()
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8080)
	viper.SetDefault("unix_socket", "")
	viper.SetDefault("max_connections", 1000)
	viper.SetDefault("repository_root", ".")
	viper.SetDefault("read_timeout", "30s")
	viper.SetDefault("write_timeout", "30s")
	viper.SetDefault("idle_timeout", "120s")
	viper.SetDefault("graceful_shutdown_timeout", "30s")

	viper.SetDefault("auth.enabled", true)
	viper.SetDefault("auth.api_key", "")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.allowed_origins", []string{"*"})
	viper.SetDefault("auth.rate_limiting.http_rpm", 120)
	viper.SetDefault("auth.rate_limiting.ws_mpm", 60)
	viper.SetDefault("auth.rate_limiting.local_mpm", 60)
	viper.SetDefault("auth.audit_logging.enabled", true)
	viper.SetDefault("auth.audit_logging.log_file", "")
	viper.SetDefault("auth.security.max_failed_attempts", 5)
	viper.SetDefault("auth.security.lockout_duration_seconds", "15m")
	viper.SetDefault("auth.security.invalidate_session_on_ip_change", true)

	viper.SetDefault("watcher.enabled", true)
	viper.SetDefault("watcher.watch_dirs", []string{"."})
	viper.SetDefault("watcher.file_patterns", []string{"*.yaml", "*.yml"})
	viper.SetDefault("watcher.debounce_ms", 300)
	viper.SetDefault("watcher.recursive", true)
	viper.SetDefault("watcher.ignore_hidden", true)

	viper.SetDefault("cache.memory_enabled", true)
	viper.SetDefault("cache.ttl_seconds", 300)
	viper.SetDefault("cache.max_entries", 10000)
	viper.SetDefault("cache.max_size_bytes", 67108864)
	viper.SetDefault("cache.compression_enabled", true)
	viper.SetDefault("cache.compression_level", 6)
	viper.SetDefault("cache.eviction_policy", "LRU")
	viper.SetDefault("cache.redis_addr", "")
	viper.SetDefault("cache.redis_password", "")
	viper.SetDefault("cache.redis_db", 0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.structured", true)
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}

	if c.RepositoryRoot == "" {
		return fmt.Errorf("repository_root cannot be empty")
	}

	switch c.Cache.EvictionPolicy {
	case EvictionLRU, EvictionLFU, EvictionFIFO, EvictionTTL, EvictionSize, EvictionHybrid:
	default:
		return fmt.Errorf("invalid cache eviction policy: %s", c.Cache.EvictionPolicy)
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	return nil
}

// UsesLocalSocket returns true when the unix socket transport is enabled.
func (c *Config) UsesLocalSocket() bool {
	return c.UnixSocket != ""
}

// UsesRedis returns true when the Cache Manager's L2 layer is configured.
func (c *Config) UsesRedis() bool {
	return c.Cache.RedisAddr != ""
}
