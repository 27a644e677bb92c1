// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/chat-relay/internal/domain"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Relay RelayConfig `koanf:"relay"`
	Auth  AuthConfig  `koanf:"auth"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	HTTPPort     int    `koanf:"http_port"`
	DBPath       string `koanf:"db_path"`
	UploadDir    string `koanf:"upload_dir"`
	WordsFile    string `koanf:"words_file"`
	HistoryLimit int    `koanf:"history_limit"`
}

// AuthConfig holds the token verifier configuration. An empty secret
// disables verification: every connection resolves to the guest role.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Relay: RelayConfig{
			HTTPPort:     8080,
			DBPath:       "chat.db",
			UploadDir:    "uploads",
			WordsFile:    "banned-words.txt",
			HistoryLimit: domain.DefaultHistoryLimit,
		},
		Auth: AuthConfig{
			Issuer: "chat-relay",
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	// Start with compiled defaults
	cfg := defaults()

	// Load environment variables. No prefix; a section prefix maps to its
	// nested config key (RELAY_DB_PATH -> relay.db_path), everything else
	// stays a flat root key (LOG_LEVEL -> log_level). Empty values are
	// treated as unset so they cannot blank out a default.
	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		key = strings.ToLower(key)
		for _, section := range []string{"relay_", "auth_", "otel_"} {
			if strings.HasPrefix(key, section) {
				return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section), value
			}
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRequired checks that required configuration is present.
func validateRequired(cfg *Config) error {
	if cfg.Relay.HistoryLimit <= 0 {
		return fmt.Errorf("%w: relay.history_limit must be positive", domain.ErrConfigRequired)
	}

	// In production the verifier secret is mandatory: a prod relay without
	// role resolution would silently demote all staff to guests.
	if cfg.Environment == "prod" {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("%w: auth.jwt_secret", domain.ErrConfigRequired)
		}
		if cfg.Relay.DBPath == "" {
			return fmt.Errorf("%w: relay.db_path", domain.ErrConfigRequired)
		}
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
