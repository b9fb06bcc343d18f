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
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
)

// AuthenticatorStore is the authenticator persistence view of a Store. It
// implements the engine's AuthenticatorStore interface.
type AuthenticatorStore struct {
	db *sql.DB
}

// Save stores a new authenticator. The credential_id column carries a
// unique index, so enrolling the same credential twice fails regardless of
// which user owns it.
func (s *AuthenticatorStore) Save(ctx context.Context, authenticator *webauthn.Authenticator) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO authenticators (id, user_id, credential_id, public_key, sign_count, aaguid, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		authenticator.ID,
		authenticator.UserID,
		authenticator.CredentialID,
		authenticator.PublicKey,
		authenticator.SignCount,
		authenticator.AAGUID,
		toMillis(authenticator.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return webauthn.ErrCredentialExists
		}
		return webauthn.WrapError("save authenticator", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return nil
}

// GetByUserID retrieves all authenticators enrolled for a user.
func (s *AuthenticatorStore) GetByUserID(ctx context.Context, userID string) ([]*webauthn.Authenticator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, credential_id, public_key, sign_count, aaguid, created_at
FROM authenticators
WHERE user_id = ?
ORDER BY created_at`, userID)
	if err != nil {
		return nil, webauthn.WrapError("list authenticators", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	defer rows.Close()

	authenticators := make([]*webauthn.Authenticator, 0)
	for rows.Next() {
		a, err := scanAuthenticator(rows)
		if err != nil {
			return nil, err
		}
		authenticators = append(authenticators, a)
	}
	if err := rows.Err(); err != nil {
		return nil, webauthn.WrapError("list authenticators", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return authenticators, nil
}

// GetByCredentialID retrieves an authenticator by its base64url credential
// ID.
func (s *AuthenticatorStore) GetByCredentialID(ctx context.Context, credentialID string) (*webauthn.Authenticator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, credential_id, public_key, sign_count, aaguid, created_at
FROM authenticators
WHERE credential_id = ?`, credentialID)

	a, err := scanAuthenticator(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateSignCount persists the signature counter after a successful
// authentication.
func (s *AuthenticatorStore) UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE authenticators SET sign_count = ? WHERE credential_id = ?`,
		signCount, credentialID)
	if err != nil {
		return webauthn.WrapError("update sign count", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return webauthn.WrapError("update sign count", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	if affected == 0 {
		return webauthn.ErrCredentialNotFound
	}
	return nil
}

// DeleteByUserID removes all authenticators for a user.
func (s *AuthenticatorStore) DeleteByUserID(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM authenticators WHERE user_id = ?`, userID)
	if err != nil {
		return webauthn.WrapError("delete authenticators", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthenticator(row rowScanner) (*webauthn.Authenticator, error) {
	var a webauthn.Authenticator
	var createdAt int64
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.CredentialID,
		&a.PublicKey,
		&a.SignCount,
		&a.AAGUID,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrCredentialNotFound
		}
		return nil, webauthn.WrapError("scan authenticator", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}
