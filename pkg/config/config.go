package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-flux.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
// InfluxDB tokens are never configured here; they arrive with each connect request.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"3001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Session   SessionConfig   `yaml:"session"`
	Influx    InfluxConfig    `yaml:"influx"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// SessionConfig controls the in-memory session store.
type SessionConfig struct {
	// TTL is the sliding idle timeout; every successful lookup restarts it.
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"2h"`
	// SweepInterval is how often expired sessions are purged in the background.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL" env-default:"30m"`
}

// InfluxConfig holds settings applied to every upstream InfluxDB client.
type InfluxConfig struct {
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"INFLUX_REQUEST_TIMEOUT" env-default:"30s"`
	DefaultRowLimit int           `yaml:"default_row_limit" env:"INFLUX_DEFAULT_ROW_LIMIT" env-default:"100"`
	MaxRowLimit     int           `yaml:"max_row_limit" env:"INFLUX_MAX_ROW_LIMIT" env-default:"10000"`
	MinTokenLength  int           `yaml:"min_token_length" env:"INFLUX_MIN_TOKEN_LENGTH" env-default:"10"`
	// ResolveDockerHost rewrites localhost InfluxDB URLs to host.docker.internal
	// when the gateway itself runs in a container.
	ResolveDockerHost bool `yaml:"resolve_docker_host" env:"INFLUX_RESOLVE_DOCKER_HOST" env-default:"true"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://localhost:5174"`
}

// RateLimitConfig throttles connect attempts per client IP.
// A zero ConnectPerMinute disables throttling.
type RateLimitConfig struct {
	ConnectPerMinute int `yaml:"connect_per_minute" env:"RATE_LIMIT_CONNECT_PER_MINUTE" env-default:"10"`
	ConnectBurst     int `yaml:"connect_burst" env:"RATE_LIMIT_CONNECT_BURST" env-default:"5"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml is absent only the environment (and defaults) are used.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must be set")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("session.sweep_interval must be positive")
	}
	if c.Influx.RequestTimeout <= 0 {
		return errors.New("influx.request_timeout must be positive")
	}
	if c.Influx.DefaultRowLimit <= 0 {
		return errors.New("influx.default_row_limit must be positive")
	}
	if c.Influx.MaxRowLimit < c.Influx.DefaultRowLimit {
		return fmt.Errorf("influx.max_row_limit (%d) must be at least influx.default_row_limit (%d)",
			c.Influx.MaxRowLimit, c.Influx.DefaultRowLimit)
	}
	if c.Influx.MinTokenLength < 0 {
		return errors.New("influx.min_token_length must not be negative")
	}
	if c.RateLimit.ConnectPerMinute < 0 || c.RateLimit.ConnectBurst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return c.validateTLS()
}

// IsProduction reports whether internal error details must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}
