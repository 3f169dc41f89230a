// Package config loads the server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/storydesk/curation/pkg/logger"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Auth      AuthConfig           `yaml:"auth"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	CORS      CORSConfig           `yaml:"cors"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the PostgreSQL connection. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	Secret     string   `yaml:"secret"`
	AccessTTL  Duration `yaml:"access_ttl"`
	RefreshTTL Duration `yaml:"refresh_ttl"`
}

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// CORSConfig configures allowed origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Auth: AuthConfig{
			AccessTTL:  Duration(30 * time.Minute),
			RefreshTTL: Duration(14 * 24 * time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if cfg.Auth.Secret == "" {
		return Config{}, fmt.Errorf("auth secret is required (set AUTH_SECRET or auth.secret)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("AUTH_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.AccessTTL = Duration(d)
		}
	}
	if v := os.Getenv("AUTH_REFRESH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.RefreshTTL = Duration(d)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
