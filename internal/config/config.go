// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
)

// Duration wraps time.Duration so YAML configs can carry values like "30s"
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

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig controls where relying-party state is persisted
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite
	Path   string `yaml:"path"`   // sqlite database file
}

// AuthConfig controls JWT issuance after successful authentication
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	KeyFile   string   `yaml:"key_file"` // PEM-encoded ECDSA P-256 private key
	Issuer    string   `yaml:"issuer"`
	Audience  string   `yaml:"audience"`
	ExpiresIn Duration `yaml:"expires_in"`
}

// RateLimitConfig controls per-client rate limiting on ceremony endpoints
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// WebAuthnConfig contains the relying-party identity and ceremony settings
type WebAuthnConfig struct {
	RPID                    string   `yaml:"id"`
	RPDisplayName           string   `yaml:"display_name"`
	RPOrigin                string   `yaml:"origin"`
	ChallengeTTL            Duration `yaml:"challenge_ttl"`
	UserVerification        string   `yaml:"user_verification"`
	AuthenticatorAttachment string   `yaml:"authenticator_attachment"`
	Debug                   bool     `yaml:"debug"`
}

// Address returns the host:port the HTTP listener binds to
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Engine converts the WebAuthn section into the ceremony engine's
// configuration.
func (w WebAuthnConfig) Engine() *webauthn.Config {
	return &webauthn.Config{
		RPID:                    w.RPID,
		RPDisplayName:           w.RPDisplayName,
		RPOrigin:                w.RPOrigin,
		ChallengeTTL:            w.ChallengeTTL.Std(),
		UserVerification:        w.UserVerification,
		AuthenticatorAttachment: w.AuthenticatorAttachment,
		Debug:                   w.Debug,
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// Read the config file
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("RELYINGPARTY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portValue := os.Getenv("RELYINGPARTY_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			log.Printf("Warning: invalid RELYINGPARTY_PORT value %q, using default %d: %v",
				portValue, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid RELYINGPARTY_PORT value %q (out of range 1-65535), using default %d",
				portValue, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("RELYINGPARTY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("RELYINGPARTY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Storage
	if driver := os.Getenv("RELYINGPARTY_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if dataPath := os.Getenv("RELYINGPARTY_STORAGE_PATH"); dataPath != "" {
		cfg.Storage.Path = dataPath
	}

	// Relying party identity
	if rpID := os.Getenv("RELYINGPARTY_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origin := os.Getenv("RELYINGPARTY_RP_ORIGIN"); origin != "" {
		cfg.WebAuthn.RPOrigin = origin
	}

	// Auth
	if keyFile := os.Getenv("RELYINGPARTY_JWT_KEY_FILE"); keyFile != "" {
		cfg.Auth.KeyFile = keyFile
	}
}

// SetDefaults fills unset fields with their defaults
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(30 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "go-relyingparty"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "go-relyingparty"
	}
	if c.Auth.ExpiresIn == 0 {
		c.Auth.ExpiresIn = Duration(time.Hour)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin == 0 {
		c.RateLimit.RequestsPerMin = 60
	}
	if c.WebAuthn.ChallengeTTL == 0 {
		c.WebAuthn.ChallengeTTL = Duration(webauthn.DefaultChallengeTTL)
	}
	if c.WebAuthn.UserVerification == "" {
		c.WebAuthn.UserVerification = "preferred"
	}
	if c.WebAuthn.AuthenticatorAttachment == "" {
		c.WebAuthn.AuthenticatorAttachment = "platform"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate storage
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory or sqlite)", c.Storage.Driver)
	}

	// Validate auth
	if c.Auth.Enabled && c.Auth.KeyFile == "" {
		return fmt.Errorf("auth key_file is required when auth is enabled")
	}

	// Validate relying-party identity
	return c.WebAuthn.Engine().Validate()
}
