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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-relyingparty/pkg/encoding"
)

// User is the relying-party account record. Accounts are provisioned by an
// external system; this engine only reads them and assigns the WebAuthn
// user handle.
type User struct {
	// ID is the primary account identifier.
	ID string `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// DisplayName is the human-readable name shown by authenticators.
	DisplayName string `json:"display_name"`

	// Email is the account email address.
	Email string `json:"email"`

	// Role is the account role assigned by the external account system.
	Role string `json:"role"`

	// Status is the account lifecycle status (e.g. "active").
	Status string `json:"status"`

	// WebAuthnUserID is the stable random user handle presented to
	// authenticators. Assigned on the first registration attempt and never
	// changed afterward, so existing credentials keep resolving to this
	// account.
	WebAuthnUserID []byte `json:"webauthn_user_id,omitempty"`
}

// Profile is the sanitized view of a User returned after a successful
// ceremony. It never carries challenge state or credential material.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Profile returns the sanitized view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Name:     u.DisplayName,
		Username: u.Username,
		Email:    u.Email,
		UserID:   encoding.EncodeBase64URL(u.WebAuthnUserID),
		Role:     u.Role,
		Status:   u.Status,
	}
}

// Authenticator is an enrolled WebAuthn credential. Rows are created only by
// successful registration verification; the only mutation afterward is the
// signature counter update on successful authentication.
type Authenticator struct {
	// ID is the record identifier.
	ID string `json:"id"`

	// UserID is the owning account.
	UserID string `json:"user_id"`

	// CredentialID is the authenticator-assigned credential identifier,
	// base64url encoded, unique across all users.
	CredentialID string `json:"credential_id"`

	// PublicKey is the credential public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// SignCount is the signature counter for clone detection. Non-decreasing
	// per credential, enforced at verification time.
	SignCount uint32 `json:"sign_count"`

	// AAGUID identifies the authenticator model, when reported.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`
}

// ToWebAuthn converts the stored record to the go-webauthn credential type.
func (a *Authenticator) ToWebAuthn() (webauthn.Credential, error) {
	id, err := encoding.DecodeBase64URL(a.CredentialID)
	if err != nil {
		return webauthn.Credential{}, WrapError("decode credential id", err)
	}

	return webauthn.Credential{
		ID:        id,
		PublicKey: a.PublicKey,
		Authenticator: webauthn.Authenticator{
			AAGUID:    a.AAGUID,
			SignCount: a.SignCount,
		},
	}, nil
}

// Descriptor returns the credential descriptor used in allow and exclude
// lists.
func (a *Authenticator) Descriptor() (protocol.CredentialDescriptor, error) {
	id, err := encoding.DecodeBase64URL(a.CredentialID)
	if err != nil {
		return protocol.CredentialDescriptor{}, WrapError("decode credential id", err)
	}

	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: id,
	}, nil
}

// ceremonyUser adapts a User and its enrolled authenticators to the
// go-webauthn user contract for the duration of one ceremony.
type ceremonyUser struct {
	user           *User
	authenticators []*Authenticator
}

// WebAuthnID returns the user handle.
func (c *ceremonyUser) WebAuthnID() []byte {
	return c.user.WebAuthnUserID
}

// WebAuthnName returns the login name.
func (c *ceremonyUser) WebAuthnName() string {
	return c.user.Username
}

// WebAuthnDisplayName returns the display name, falling back to the
// username.
func (c *ceremonyUser) WebAuthnDisplayName() string {
	if c.user.DisplayName == "" {
		return c.user.Username
	}
	return c.user.DisplayName
}

// WebAuthnCredentials returns the user's enrolled credentials.
func (c *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(c.authenticators))
	for _, a := range c.authenticators {
		cred, err := a.ToWebAuthn()
		if err != nil {
			// An undecodable record cannot participate in a ceremony.
			continue
		}
		creds = append(creds, cred)
	}
	return creds
}
