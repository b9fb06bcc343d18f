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

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// CeremonyKind tags which ceremony a pending challenge belongs to.
type CeremonyKind string

const (
	// CeremonyRegistration marks a credential enrollment ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication marks a login verification ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// PendingCeremony is the single in-flight ceremony allowed per user. The
// challenge itself lives inside the session data; it is duplicated here so
// stores and audit logs can reference it without unpacking the session.
type PendingCeremony struct {
	// CeremonyID uniquely identifies this begin/complete exchange.
	CeremonyID string `json:"ceremony_id"`

	// Kind is the ceremony this challenge was issued for. Completing the
	// other kind against it fails.
	Kind CeremonyKind `json:"kind"`

	// Challenge is the base64url-encoded challenge issued to the client.
	Challenge string `json:"challenge"`

	// Session is the ceremony session state produced at begin time.
	Session webauthn.SessionData `json:"session"`

	// ExpiresAt bounds how long the challenge stays consumable.
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeManager issues and consumes the per-user ceremony challenge.
//
// The challenge slot is single-valued: issuing a new challenge silently
// invalidates any ceremony already in flight for the same user, so at most
// one ceremony per user can ever complete. Entropy comes from the protocol
// layer, which draws 32 bytes from crypto/rand per challenge.
type ChallengeManager struct {
	store ChallengeStore
	ttl   time.Duration
}

// NewChallengeManager creates a challenge manager over the given store.
// A non-positive ttl falls back to DefaultChallengeTTL.
func NewChallengeManager(store ChallengeStore, ttl time.Duration) *ChallengeManager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeManager{
		store: store,
		ttl:   ttl,
	}
}

// Issue records a pending ceremony for the user, overwriting any prior one.
func (m *ChallengeManager) Issue(ctx context.Context, userID string, kind CeremonyKind, session *webauthn.SessionData) (*PendingCeremony, error) {
	pending := &PendingCeremony{
		CeremonyID: uuid.NewString(),
		Kind:       kind,
		Challenge:  session.Challenge,
		Session:    *session,
		ExpiresAt:  time.Now().UTC().Add(m.ttl),
	}

	if err := m.store.Put(ctx, userID, pending); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return pending, nil
}

// Consume returns the user's pending ceremony for the given kind. The
// caller must Clear the slot once the ceremony reaches a terminal outcome
// so the same response cannot be verified twice.
//
// Expired challenges are removed eagerly and reported as
// ErrChallengeExpired; a challenge issued for the other ceremony kind is
// not consumable and reports ErrNoPendingChallenge.
func (m *ChallengeManager) Consume(ctx context.Context, userID string, kind CeremonyKind) (*PendingCeremony, error) {
	pending, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if time.Now().After(pending.ExpiresAt) {
		_ = m.store.Delete(ctx, userID)
		return nil, ErrChallengeExpired
	}

	if pending.Kind != kind {
		return nil, ErrNoPendingChallenge
	}

	return pending, nil
}

// Clear removes the user's pending ceremony.
func (m *ChallengeManager) Clear(ctx context.Context, userID string) error {
	return m.store.Delete(ctx, userID)
}

// Sweep removes all expired pending ceremonies and returns how many were
// removed. Intended to run periodically from the server.
func (m *ChallengeManager) Sweep(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, time.Now().UTC())
}

// TTL returns the configured challenge lifetime.
func (m *ChallengeManager) TTL() time.Duration {
	return m.ttl
}
