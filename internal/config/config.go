package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Events   EventsConfig   `yaml:"events"`
	Pool     PoolConfig     `yaml:"pool"`
	Auth     AuthConfig     `yaml:"auth"`
	Admin    AdminConfig    `yaml:"admin"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Mode is the gin mode: debug, release or test
	Mode string `yaml:"mode"`
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig database configuration. Driver "memory" keeps pool state
// in process and needs no DSN.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	Driver          string `yaml:"driver"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	Stream          string `yaml:"stream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
}

// EventsConfig outbox dispatcher configuration
type EventsConfig struct {
	BatchSize    int `yaml:"batch_size"`
	PollInterval int `yaml:"poll_interval"` // milliseconds
}

// PoolConfig pool service configuration
type PoolConfig struct {
	// AllowCredit exposes the custody funding endpoint for devnets
	AllowCredit bool `yaml:"allow_credit"`
}

// AuthConfig caller authentication configuration
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	TokenTTL     int    `yaml:"token_ttl"`     // seconds
	ChallengeTTL int    `yaml:"challenge_ttl"` // seconds
	Issuer       string `yaml:"issuer"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
	TOTPSecret string   `yaml:"totp_secret"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

var AppConfig *Config

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "postgres", MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 300},
		NATS: NATSConfig{
			Timeout:       5,
			ReconnectWait: 2,
			MaxReconnects: 60,
			Stream:        "SHIELDPOOL",
			SubjectPrefix: "shieldpool.events",
		},
		Events: EventsConfig{BatchSize: 100, PollInterval: 1000},
		Auth:   AuthConfig{TokenTTL: 86400, ChallengeTTL: 300, Issuer: "shieldpool"},
	}
}

// LoadConfig loads the configuration file, applies environment overrides
// and stores the result in AppConfig.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Info("Using local configuration file: config.local.yaml")
		}
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		logrus.WithField("path", configPath).Info("Loaded configuration file")
	case os.IsNotExist(err):
		logrus.WithField("path", configPath).Warn("Config file not found, using defaults and environment")
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(cfg.Admin.AllowedIPs) > 0 {
		logrus.WithField("count", len(cfg.Admin.AllowedIPs)).Info("Admin IP whitelist loaded")
	} else {
		logrus.Info("Admin IP whitelist not configured (localhost-only mode)")
	}
	if cfg.Admin.TOTPSecret == "" {
		logrus.Warn("ADMIN_TOTP_SECRET not set, admin endpoints will not require a TOTP code")
	}

	AppConfig = cfg
	return nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for driver postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnMaxLifetimeDuration returns the pool connection lifetime.
func (d DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// PollIntervalDuration returns the dispatcher poll interval.
func (e EventsConfig) PollIntervalDuration() time.Duration {
	return time.Duration(e.PollInterval) * time.Millisecond
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.Mode = mode
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}
	if js := os.Getenv("NATS_ENABLE_JETSTREAM"); js != "" {
		config.NATS.EnableJetStream = js == "true" || js == "1"
	}

	if credit := os.Getenv("POOL_ALLOW_CREDIT"); credit != "" {
		config.Pool.AllowCredit = credit == "true" || credit == "1"
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("ADMIN_TOTP_SECRET"); secret != "" {
		config.Admin.TOTPSecret = secret
	}
	if ips := os.Getenv("ADMIN_ALLOWED_IPS"); ips != "" {
		config.Admin.AllowedIPs = splitList(ips)
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
