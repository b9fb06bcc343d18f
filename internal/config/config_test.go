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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
webauthn:
  id: example.com
  display_name: Example Corp
  origin: https://example.com
`

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Address())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "go-relyingparty", cfg.Auth.Issuer)
	assert.Equal(t, time.Hour, cfg.Auth.ExpiresIn.Std())

	assert.Equal(t, "example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, "https://example.com", cfg.WebAuthn.RPOrigin)
	assert.Equal(t, 5*time.Minute, cfg.WebAuthn.ChallengeTTL.Std())
	assert.Equal(t, "preferred", cfg.WebAuthn.UserVerification)
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5s
  shutdown_timeout: 15s
logging:
  level: debug
  format: text
metrics:
  enabled: true
storage:
  driver: sqlite
  path: /var/lib/relyingparty/rp.db
auth:
  enabled: true
  key_file: /etc/relyingparty/jwt.pem
  issuer: accounts.example.com
  expires_in: 30m
webauthn:
  id: example.com
  display_name: Example Corp
  origin: https://example.com
  challenge_ttl: 2m
  user_verification: required
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/relyingparty/rp.db", cfg.Storage.Path)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "accounts.example.com", cfg.Auth.Issuer)
	assert.Equal(t, 30*time.Minute, cfg.Auth.ExpiresIn.Std())
	assert.Equal(t, 2*time.Minute, cfg.WebAuthn.ChallengeTTL.Std())
	assert.Equal(t, "required", cfg.WebAuthn.UserVerification)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
server:
  read_timeout: fast
`))
	assert.ErrorContains(t, err, "invalid duration")
}

func TestWebAuthnConfig_Engine(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	engine := cfg.WebAuthn.Engine()
	assert.Equal(t, "example.com", engine.RPID)
	assert.Equal(t, "Example Corp", engine.RPDisplayName)
	assert.Equal(t, "https://example.com", engine.RPOrigin)
	assert.Equal(t, 5*time.Minute, engine.ChallengeTTL)
	assert.NoError(t, engine.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a mapping"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELYINGPARTY_PORT", "9999")
	t.Setenv("RELYINGPARTY_LOG_LEVEL", "warn")
	t.Setenv("RELYINGPARTY_RP_ORIGIN", "https://login.example.com")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "https://login.example.com", cfg.WebAuthn.RPOrigin)
}

func TestLoad_InvalidEnvPortFallsBack(t *testing.T) {
	t.Setenv("RELYINGPARTY_PORT", "not-a-port")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: "invalid log format",
		},
		{
			name:    "bad storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "invalid storage driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Driver = "sqlite"
				c.Storage.Path = ""
			},
			wantErr: "storage path is required",
		},
		{
			name:    "auth without key file",
			mutate:  func(c *Config) { c.Auth.Enabled = true },
			wantErr: "auth key_file is required",
		},
		{
			name:    "missing rp id",
			mutate:  func(c *Config) { c.WebAuthn.RPID = "" },
			wantErr: "RPID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.WebAuthn.RPID = "example.com"
			cfg.WebAuthn.RPDisplayName = "Example Corp"
			cfg.WebAuthn.RPOrigin = "https://example.com"
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
