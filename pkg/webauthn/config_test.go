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

package webauthn

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid minimal",
			config: Config{
				RPID:          "example.com",
				RPDisplayName: "Example Corp",
				RPOrigin:      "https://example.com",
			},
		},
		{
			name: "missing RPID",
			config: Config{
				RPDisplayName: "Example Corp",
				RPOrigin:      "https://example.com",
			},
			wantErr: true,
		},
		{
			name: "missing display name",
			config: Config{
				RPID:     "example.com",
				RPOrigin: "https://example.com",
			},
			wantErr: true,
		},
		{
			name: "missing origin",
			config: Config{
				RPID:          "example.com",
				RPDisplayName: "Example Corp",
			},
			wantErr: true,
		},
		{
			name: "invalid user verification",
			config: Config{
				RPID:             "example.com",
				RPDisplayName:    "Example Corp",
				RPOrigin:         "https://example.com",
				UserVerification: "always",
			},
			wantErr: true,
		},
		{
			name: "invalid attachment",
			config: Config{
				RPID:                    "example.com",
				RPDisplayName:           "Example Corp",
				RPOrigin:                "https://example.com",
				AuthenticatorAttachment: "usb",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigin:      "https://example.com",
	}
	cfg.SetDefaults()

	assert.Equal(t, DefaultChallengeTTL, cfg.ChallengeTTL)
	assert.Equal(t, "preferred", cfg.UserVerification)
	assert.Equal(t, "platform", cfg.AuthenticatorAttachment)
}

func TestConfig_SetDefaults_PreservesExplicit(t *testing.T) {
	cfg := &Config{
		RPID:                    "example.com",
		RPDisplayName:           "Example Corp",
		RPOrigin:                "https://example.com",
		ChallengeTTL:            time.Minute,
		UserVerification:        "required",
		AuthenticatorAttachment: "cross-platform",
	}
	cfg.SetDefaults()

	assert.Equal(t, time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, "required", cfg.UserVerification)
	assert.Equal(t, "cross-platform", cfg.AuthenticatorAttachment)
}

func TestConfig_CredentialParameters(t *testing.T) {
	cfg := testConfig()

	params := cfg.CredentialParameters()
	require.Len(t, params, 2)
	assert.Equal(t, protocol.PublicKeyCredentialType, params[0].Type)
}

func TestConfig_ToWebAuthnConfig(t *testing.T) {
	cfg := &Config{
		RPID:                    "example.com",
		RPDisplayName:           "Example Corp",
		RPOrigin:                "https://example.com",
		ChallengeTTL:            2 * time.Minute,
		UserVerification:        "required",
		AuthenticatorAttachment: "platform",
	}

	wcfg := cfg.ToWebAuthnConfig()
	assert.Equal(t, "example.com", wcfg.RPID)
	assert.Equal(t, []string{"https://example.com"}, wcfg.RPOrigins)
	assert.Equal(t, protocol.PreferNoAttestation, wcfg.AttestationPreference)
	assert.Equal(t, protocol.VerificationRequired, wcfg.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.Platform, wcfg.AuthenticatorSelection.AuthenticatorAttachment)
	assert.True(t, wcfg.Timeouts.Login.Enforce)
	assert.Equal(t, 2*time.Minute, wcfg.Timeouts.Registration.Timeout)
}
