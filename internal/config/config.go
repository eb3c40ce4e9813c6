package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/asterlearn/aster-backend/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded from
// configs/config.<APP_ENV>.yaml with ${ENV_VAR} placeholders resolved.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	Download DownloadConfig `yaml:"download"`
	Storage  StorageConfig  `yaml:"storage"`
}

// AppConfig identifies the runtime environment
type AppConfig struct {
	Env string `yaml:"env"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// GetDSN builds the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig Redis settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig bearer-token verification settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// CORSConfig cross-origin settings
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// DownloadConfig tunables for the redemption and download pipeline
type DownloadConfig struct {
	// TokenTTLSeconds is the download token lifetime
	TokenTTLSeconds int `yaml:"token_ttl_seconds"`
	// CodeAttemptsPerMinute and DownloadsPerMinute are the per-IP window limits
	CodeAttemptsPerMinute int `yaml:"code_attempts_per_minute"`
	DownloadsPerMinute    int `yaml:"downloads_per_minute"`
	// CooldownMinutes applies after a window breach
	CooldownMinutes int `yaml:"cooldown_minutes"`
	// Quota defaults applied at redemption time
	DefaultMaxDownloads int `yaml:"default_max_downloads"`
	DefaultExpiryDays   int `yaml:"default_expiry_days"`
	HourlyDownloadCap   int `yaml:"hourly_download_cap"`
	// SuspiciousThreshold flags IPs with this many recent failures
	SuspiciousThreshold int `yaml:"suspicious_threshold"`
	// AssetDir is the local asset base directory
	AssetDir string `yaml:"asset_dir"`
}

// StorageConfig S3-compatible blob storage; disabled means local disk
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

var envPlaceholder = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads and parses the yaml config at path. ${VAR} placeholders are
// replaced with the environment value, empty when unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from APP_ENV, set by the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := envPlaceholder.ReplaceAllStringFunc(string(raw), func(m string) string {
		return os.Getenv(envPlaceholder.FindStringSubmatch(m)[1])
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "local"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Download.TokenTTLSeconds == 0 {
		c.Download.TokenTTLSeconds = 300
	}
	if c.Download.CodeAttemptsPerMinute == 0 {
		c.Download.CodeAttemptsPerMinute = 5
	}
	if c.Download.DownloadsPerMinute == 0 {
		c.Download.DownloadsPerMinute = 10
	}
	if c.Download.CooldownMinutes == 0 {
		c.Download.CooldownMinutes = 15
	}
	if c.Download.DefaultMaxDownloads == 0 {
		c.Download.DefaultMaxDownloads = 3
	}
	if c.Download.DefaultExpiryDays == 0 {
		c.Download.DefaultExpiryDays = 365
	}
	if c.Download.HourlyDownloadCap == 0 {
		c.Download.HourlyDownloadCap = 3
	}
	if c.Download.SuspiciousThreshold == 0 {
		c.Download.SuspiciousThreshold = 10
	}
	if c.Download.AssetDir == "" {
		c.Download.AssetDir = "./assets"
	}
}

// IsDevelopment reports whether the app runs in a development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "development"
}

// LogResolved logs the effective non-secret configuration at startup
func LogResolved(c *Config) {
	logger.Get().Info().
		Str("env", c.App.Env).
		Int("port", c.Server.Port).
		Str("db_host", c.Database.Host).
		Str("db_name", c.Database.Name).
		Str("redis_host", c.Redis.Host).
		Bool("s3_enabled", c.Storage.Enabled).
		Int("token_ttl_seconds", c.Download.TokenTTLSeconds).
		Int("code_attempts_per_minute", c.Download.CodeAttemptsPerMinute).
		Int("downloads_per_minute", c.Download.DownloadsPerMinute).
		Msg("configuration loaded")
}
