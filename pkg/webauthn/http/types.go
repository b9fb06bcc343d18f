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

package http

import (
	"encoding/json"
	"time"
)

// BeginCeremonyRequest is the request body for starting a registration or
// authentication ceremony.
type BeginCeremonyRequest struct {
	// Username is the account's unique login name (required).
	Username string `json:"username"`
}

// BeginCeremonyResponse carries the WebAuthn options produced at ceremony
// begin.
type BeginCeremonyResponse struct {
	// UserID identifies the account for the finish call.
	UserID string `json:"user_id"`

	// Options is the WebAuthn creation or request options to pass to the
	// browser's credential API.
	Options interface{} `json:"options"`

	// Message is a human-readable status line, set on registration begin.
	Message string `json:"message,omitempty"`
}

// FinishCeremonyRequest is the request body for completing a ceremony.
type FinishCeremonyRequest struct {
	// UserID is the account identifier returned at ceremony begin (required).
	UserID string `json:"user_id"`

	// Credential is the authenticator response JSON exactly as produced by
	// the browser's credential API (required).
	Credential json.RawMessage `json:"credential"`
}

// FinishRegistrationResponse is returned after a successful registration
// ceremony.
type FinishRegistrationResponse struct {
	Verified bool        `json:"verified"`
	User     interface{} `json:"user"`
}

// FinishAuthenticationResponse is returned after a successful authentication
// ceremony.
type FinishAuthenticationResponse struct {
	Verified bool        `json:"verified"`
	User     interface{} `json:"user"`

	// Token is a session token, present when a token generator is
	// configured.
	Token string `json:"token,omitempty"`
}

// CredentialSummary is the public view of an enrolled credential.
type CredentialSummary struct {
	ID           string    `json:"id"`
	CredentialID string    `json:"credential_id"`
	SignCount    uint32    `json:"sign_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListCredentialsResponse is returned by the credential listing endpoint.
type ListCredentialsResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeInternalError      = "internal_error"
)
