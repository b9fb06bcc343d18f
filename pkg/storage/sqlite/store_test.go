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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rp "github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "relyingparty.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func seedUser(t *testing.T, store *Store, id, username string) *rp.User {
	t.Helper()

	user := &rp.User{
		ID:          id,
		Username:    username,
		DisplayName: username + " Example",
		Email:       username + "@example.com",
		Role:        "user",
		Status:      "active",
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	_, err = Open("   ")
	assert.Error(t, err)
}

func TestOpen_ConnectionPragmas(t *testing.T) {
	store := openTestStore(t)

	var foreignKeys int
	require.NoError(t, store.DB().QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var journalMode string
	require.NoError(t, store.DB().QueryRow(`PRAGMA journal_mode`).Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relyingparty.db")

	store, err := Open(path)
	require.NoError(t, err)
	seedUser(t, store, "user-1", "alice")
	require.NoError(t, store.Close())

	// Reopening applies no migrations twice and keeps existing data.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	user, err := store.Users().GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	users := store.Users()

	seedUser(t, store, "user-1", "alice")

	byID, err := users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Nil(t, byID.WebAuthnUserID)

	byName, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byName.ID)

	byID.WebAuthnUserID = []byte("handle-bytes")
	require.NoError(t, users.Save(ctx, byID))

	saved, err := users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("handle-bytes"), saved.WebAuthnUserID)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, rp.ErrUserNotFound)
	_, err = users.GetByUsername(ctx, "missing")
	assert.ErrorIs(t, err, rp.ErrUserNotFound)
	assert.ErrorIs(t, users.Save(ctx, &rp.User{ID: "missing", Username: "ghost"}), rp.ErrUserNotFound)
	assert.ErrorIs(t, users.Delete(ctx, "missing"), rp.ErrUserNotFound)

	require.NoError(t, users.Delete(ctx, "user-1"))
	_, err = users.GetByID(ctx, "user-1")
	assert.ErrorIs(t, err, rp.ErrUserNotFound)
}

func TestStore_Authenticators(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	authenticators := store.Authenticators()
	seedUser(t, store, "user-1", "alice")

	a := &rp.Authenticator{
		ID:           "auth-1",
		UserID:       "user-1",
		CredentialID: "Y3JlZC0x",
		PublicKey:    []byte{0x01, 0x02, 0x03},
		SignCount:    0,
		AAGUID:       []byte("0123456789abcdef"),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, authenticators.Save(ctx, a))

	// The credential ID is unique across all users.
	seedUser(t, store, "user-2", "bob")
	err := authenticators.Save(ctx, &rp.Authenticator{
		ID:           "auth-2",
		UserID:       "user-2",
		CredentialID: "Y3JlZC0x",
		PublicKey:    []byte{0x04},
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, rp.ErrCredentialExists)

	byCred, err := authenticators.GetByCredentialID(ctx, "Y3JlZC0x")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byCred.UserID)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, byCred.PublicKey)

	byUser, err := authenticators.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)

	empty, err := authenticators.GetByUserID(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, authenticators.UpdateSignCount(ctx, "Y3JlZC0x", 9))
	updated, err := authenticators.GetByCredentialID(ctx, "Y3JlZC0x")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), updated.SignCount)

	assert.ErrorIs(t, authenticators.UpdateSignCount(ctx, "missing", 1), rp.ErrCredentialNotFound)
	_, err = authenticators.GetByCredentialID(ctx, "missing")
	assert.ErrorIs(t, err, rp.ErrCredentialNotFound)

	require.NoError(t, authenticators.DeleteByUserID(ctx, "user-1"))
	_, err = authenticators.GetByCredentialID(ctx, "Y3JlZC0x")
	assert.ErrorIs(t, err, rp.ErrCredentialNotFound)
}

func TestStore_UserDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	seedUser(t, store, "user-1", "alice")

	require.NoError(t, store.Authenticators().Save(ctx, &rp.Authenticator{
		ID:           "auth-1",
		UserID:       "user-1",
		CredentialID: "Y3JlZC0x",
		PublicKey:    []byte{0x01},
		CreatedAt:    time.Now().UTC(),
	}))
	require.NoError(t, store.Ceremonies().Put(ctx, "user-1", &rp.PendingCeremony{
		CeremonyID: "ceremony-1",
		Kind:       rp.CeremonyRegistration,
		Challenge:  "Y2hhbGxlbmdl",
		ExpiresAt:  time.Now().Add(time.Minute).UTC(),
	}))

	require.NoError(t, store.Users().Delete(ctx, "user-1"))

	_, err := store.Authenticators().GetByCredentialID(ctx, "Y3JlZC0x")
	assert.ErrorIs(t, err, rp.ErrCredentialNotFound)
	_, err = store.Ceremonies().Get(ctx, "user-1")
	assert.ErrorIs(t, err, rp.ErrNoPendingChallenge)
}

func TestStore_PendingCeremonies(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ceremonies := store.Ceremonies()
	seedUser(t, store, "user-1", "alice")

	_, err := ceremonies.Get(ctx, "user-1")
	assert.ErrorIs(t, err, rp.ErrNoPendingChallenge)

	first := &rp.PendingCeremony{
		CeremonyID: "ceremony-1",
		Kind:       rp.CeremonyRegistration,
		Challenge:  "Y2hhbGxlbmdl",
		Session: webauthn.SessionData{
			Challenge: "Y2hhbGxlbmdl",
			UserID:    []byte("handle"),
		},
		ExpiresAt: time.Now().Add(time.Minute).UTC(),
	}
	require.NoError(t, ceremonies.Put(ctx, "user-1", first))

	got, err := ceremonies.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ceremony-1", got.CeremonyID)
	assert.Equal(t, rp.CeremonyRegistration, got.Kind)
	assert.Equal(t, []byte("handle"), got.Session.UserID)
	assert.WithinDuration(t, first.ExpiresAt, got.ExpiresAt, time.Millisecond)

	// Put replaces the existing row.
	second := &rp.PendingCeremony{
		CeremonyID: "ceremony-2",
		Kind:       rp.CeremonyAuthentication,
		Challenge:  "b3RoZXI",
		Session:    webauthn.SessionData{Challenge: "b3RoZXI"},
		ExpiresAt:  time.Now().Add(time.Minute).UTC(),
	}
	require.NoError(t, ceremonies.Put(ctx, "user-1", second))

	got, err = ceremonies.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ceremony-2", got.CeremonyID)
	assert.Equal(t, rp.CeremonyAuthentication, got.Kind)

	require.NoError(t, ceremonies.Delete(ctx, "user-1"))
	_, err = ceremonies.Get(ctx, "user-1")
	assert.ErrorIs(t, err, rp.ErrNoPendingChallenge)

	// A ceremony row requires an existing user.
	err = ceremonies.Put(ctx, "ghost", &rp.PendingCeremony{
		CeremonyID: "ceremony-3",
		Kind:       rp.CeremonyRegistration,
		Challenge:  "Z2hvc3Q",
		ExpiresAt:  time.Now().Add(time.Minute).UTC(),
	})
	assert.ErrorIs(t, err, rp.ErrStorage)
}

func TestStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ceremonies := store.Ceremonies()
	now := time.Now().UTC()

	seedUser(t, store, "expired-1", "alice")
	seedUser(t, store, "expired-2", "bob")
	seedUser(t, store, "live", "carol")

	require.NoError(t, ceremonies.Put(ctx, "expired-1", &rp.PendingCeremony{
		CeremonyID: "ceremony-1",
		Kind:       rp.CeremonyRegistration,
		Challenge:  "YQ",
		ExpiresAt:  now.Add(-time.Minute),
	}))
	require.NoError(t, ceremonies.Put(ctx, "expired-2", &rp.PendingCeremony{
		CeremonyID: "ceremony-2",
		Kind:       rp.CeremonyAuthentication,
		Challenge:  "Yg",
		ExpiresAt:  now.Add(-time.Second),
	}))
	require.NoError(t, ceremonies.Put(ctx, "live", &rp.PendingCeremony{
		CeremonyID: "ceremony-3",
		Kind:       rp.CeremonyRegistration,
		Challenge:  "Yw",
		ExpiresAt:  now.Add(time.Minute),
	}))

	removed, err := ceremonies.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = ceremonies.Get(ctx, "live")
	assert.NoError(t, err)
}

// TestStore_BacksFullCeremony wires the SQLite store into the ceremony
// service and runs a registration followed by an authentication.
func TestStore_BacksFullCeremony(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	seedUser(t, store, "user-1", "alice")

	svc, err := rp.NewService(rp.ServiceParams{
		Config: &rp.Config{
			RPID:          "example.com",
			RPDisplayName: "Example Corp",
			RPOrigin:      "https://example.com",
		},
		UserStore:          store.Users(),
		AuthenticatorStore: store.Authenticators(),
		ChallengeStore:     store.Ceremonies(),
	})
	require.NoError(t, err)

	options, user, err := svc.BeginRegistration(ctx, "alice")
	require.NoError(t, err)

	mock, err := rp.NewMockAuthenticator("example.com")
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(options.Response.Challenge.String(), "https://example.com")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, user.ID, attestation)
	require.NoError(t, err)

	current, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, current.WebAuthnUserID)

	authOptions, _, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	assertion, err := mock.CreateAssertionResponse(authOptions.Response.Challenge.String(), "https://example.com", current.WebAuthnUserID)
	require.NoError(t, err)

	profile, _, err := svc.FinishAuthentication(ctx, user.ID, assertion)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	stored, err := store.Authenticators().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint32(1), stored[0].SignCount)
}
