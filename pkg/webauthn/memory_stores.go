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
	"sync"
	"time"
)

// MemoryUserStore is an in-memory UserStore for testing and development.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
	}
}

// GetByID retrieves a user by their account ID.
func (s *MemoryUserStore) GetByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetByUsername retrieves a user by their unique username.
func (s *MemoryUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// Create provisions a new user record.
func (s *MemoryUserStore) Create(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyUser(user)
	s.byID[stored.ID] = stored
	s.byUsername[stored.Username] = stored
	return nil
}

// Save persists changes to an existing user.
func (s *MemoryUserStore) Save(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; !ok {
		return ErrUserNotFound
	}

	stored := copyUser(user)
	s.byID[stored.ID] = stored
	s.byUsername[stored.Username] = stored
	return nil
}

// Delete removes a user by their account ID.
func (s *MemoryUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}

	delete(s.byUsername, user.Username)
	delete(s.byID, id)
	return nil
}

// Count returns the number of stored users.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func copyUser(user *User) *User {
	dup := *user
	if user.WebAuthnUserID != nil {
		dup.WebAuthnUserID = append([]byte(nil), user.WebAuthnUserID...)
	}
	return &dup
}

// MemoryAuthenticatorStore is an in-memory AuthenticatorStore for testing
// and development.
type MemoryAuthenticatorStore struct {
	mu       sync.RWMutex
	byCredID map[string]*Authenticator
	byUser   map[string][]string
}

// NewMemoryAuthenticatorStore creates a new in-memory authenticator store.
func NewMemoryAuthenticatorStore() *MemoryAuthenticatorStore {
	return &MemoryAuthenticatorStore{
		byCredID: make(map[string]*Authenticator),
		byUser:   make(map[string][]string),
	}
}

// Save stores a new authenticator. The credential ID is globally unique:
// a duplicate fails with ErrCredentialExists regardless of owner.
func (s *MemoryAuthenticatorStore) Save(ctx context.Context, authenticator *Authenticator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCredID[authenticator.CredentialID]; ok {
		return ErrCredentialExists
	}

	stored := copyAuthenticator(authenticator)
	s.byCredID[stored.CredentialID] = stored
	s.byUser[stored.UserID] = append(s.byUser[stored.UserID], stored.CredentialID)
	return nil
}

// GetByUserID retrieves all authenticators enrolled for a user.
func (s *MemoryAuthenticatorStore) GetByUserID(ctx context.Context, userID string) ([]*Authenticator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	authenticators := make([]*Authenticator, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.byCredID[id]; ok {
			authenticators = append(authenticators, copyAuthenticator(a))
		}
	}
	return authenticators, nil
}

// GetByCredentialID retrieves an authenticator by its base64url credential ID.
func (s *MemoryAuthenticatorStore) GetByCredentialID(ctx context.Context, credentialID string) (*Authenticator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byCredID[credentialID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyAuthenticator(a), nil
}

// UpdateSignCount persists the signature counter for a credential.
func (s *MemoryAuthenticatorStore) UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byCredID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	a.SignCount = signCount
	return nil
}

// DeleteByUserID removes all authenticators for a user.
func (s *MemoryAuthenticatorStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		delete(s.byCredID, id)
	}
	delete(s.byUser, userID)
	return nil
}

// Count returns the number of stored authenticators.
func (s *MemoryAuthenticatorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCredID)
}

func copyAuthenticator(a *Authenticator) *Authenticator {
	dup := *a
	if a.PublicKey != nil {
		dup.PublicKey = append([]byte(nil), a.PublicKey...)
	}
	if a.AAGUID != nil {
		dup.AAGUID = append([]byte(nil), a.AAGUID...)
	}
	return &dup
}

// MemoryChallengeStore is an in-memory ChallengeStore for testing and
// development.
type MemoryChallengeStore struct {
	mu      sync.RWMutex
	pending map[string]*PendingCeremony
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		pending: make(map[string]*PendingCeremony),
	}
}

// Put stores the pending ceremony for a user, replacing any prior one.
func (s *MemoryChallengeStore) Put(ctx context.Context, userID string, pending *PendingCeremony) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := *pending
	s.pending[userID] = &dup
	return nil
}

// Get retrieves the pending ceremony for a user.
func (s *MemoryChallengeStore) Get(ctx context.Context, userID string) (*PendingCeremony, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending, ok := s.pending[userID]
	if !ok {
		return nil, ErrNoPendingChallenge
	}

	dup := *pending
	return &dup, nil
}

// Delete removes the pending ceremony for a user.
func (s *MemoryChallengeStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, userID)
	return nil
}

// DeleteExpired removes ceremonies whose expiry precedes now.
func (s *MemoryChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, pending := range s.pending {
		if now.After(pending.ExpiresAt) {
			delete(s.pending, userID)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of pending ceremonies.
func (s *MemoryChallengeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
