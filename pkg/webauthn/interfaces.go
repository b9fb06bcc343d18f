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
	"context"
	"time"
)

// UserStore is the persistence interface for relying-party accounts.
// Account provisioning and deletion belong to an external system; the
// ceremony engine only resolves users and persists the lazily assigned
// WebAuthn user handle.
type UserStore interface {
	// GetByID retrieves a user by their account ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by their unique username.
	// Returns ErrUserNotFound if the user does not exist.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create provisions a new user record.
	Create(ctx context.Context, user *User) error

	// Save persists changes to an existing user (the WebAuthn user handle).
	Save(ctx context.Context, user *User) error

	// Delete removes a user by their account ID.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, id string) error
}

// AuthenticatorStore is the persistence interface for enrolled credentials.
type AuthenticatorStore interface {
	// Save stores a new authenticator. Returns ErrCredentialExists when the
	// credential ID is already enrolled, for any user.
	Save(ctx context.Context, authenticator *Authenticator) error

	// GetByUserID retrieves all authenticators enrolled for a user.
	// Returns an empty slice if the user has none.
	GetByUserID(ctx context.Context, userID string) ([]*Authenticator, error)

	// GetByCredentialID retrieves an authenticator by its base64url
	// credential ID. Returns ErrCredentialNotFound if absent.
	GetByCredentialID(ctx context.Context, credentialID string) (*Authenticator, error)

	// UpdateSignCount persists the signature counter after a successful
	// authentication. Returns ErrCredentialNotFound if absent.
	UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error

	// DeleteByUserID removes all authenticators for a user. Invoked by the
	// external account system when it cascades a user deletion.
	DeleteByUserID(ctx context.Context, userID string) error
}

// ChallengeStore persists the single pending ceremony allowed per user.
// Put overwrites unconditionally: issuing a new challenge invalidates any
// ceremony already in flight for that user.
type ChallengeStore interface {
	// Put stores the pending ceremony for a user, replacing any prior one.
	Put(ctx context.Context, userID string, pending *PendingCeremony) error

	// Get retrieves the pending ceremony for a user.
	// Returns ErrNoPendingChallenge if none is stored.
	Get(ctx context.Context, userID string) (*PendingCeremony, error)

	// Delete removes the pending ceremony for a user.
	Delete(ctx context.Context, userID string) error

	// DeleteExpired removes ceremonies whose expiry precedes now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TokenGenerator is an optional interface for minting a session token after
// a successful authentication ceremony. If not provided, no token is
// returned.
type TokenGenerator interface {
	// GenerateToken creates a token for the authenticated user.
	GenerateToken(ctx context.Context, user *User) (string, error)
}
