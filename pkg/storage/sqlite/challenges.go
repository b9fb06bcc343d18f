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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
)

// CeremonyStore is the pending-ceremony persistence view of a Store. It
// implements the engine's ChallengeStore interface.
type CeremonyStore struct {
	db *sql.DB
}

// Put stores the pending ceremony for a user, replacing any prior one. The
// user id is the table's primary key, so the single-slot invariant is
// enforced by the schema.
func (s *CeremonyStore) Put(ctx context.Context, userID string, pending *webauthn.PendingCeremony) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sessionJSON, err := json.Marshal(pending.Session)
	if err != nil {
		return webauthn.WrapError("encode session", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pending_ceremonies (user_id, ceremony_id, kind, challenge, session_json, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    ceremony_id = excluded.ceremony_id,
    kind = excluded.kind,
    challenge = excluded.challenge,
    session_json = excluded.session_json,
    expires_at = excluded.expires_at`,
		userID,
		pending.CeremonyID,
		string(pending.Kind),
		pending.Challenge,
		string(sessionJSON),
		toMillis(pending.ExpiresAt),
	)
	if err != nil {
		return webauthn.WrapError("put pending ceremony", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return nil
}

// Get retrieves the pending ceremony for a user.
func (s *CeremonyStore) Get(ctx context.Context, userID string) (*webauthn.PendingCeremony, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		pending     webauthn.PendingCeremony
		kind        string
		sessionJSON string
		expiresAt   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT ceremony_id, kind, challenge, session_json, expires_at
FROM pending_ceremonies
WHERE user_id = ?`, userID).Scan(
		&pending.CeremonyID,
		&kind,
		&pending.Challenge,
		&sessionJSON,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrNoPendingChallenge
		}
		return nil, webauthn.WrapError("get pending ceremony", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	if err := json.Unmarshal([]byte(sessionJSON), &pending.Session); err != nil {
		return nil, webauthn.WrapError("decode session", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	pending.Kind = webauthn.CeremonyKind(kind)
	pending.ExpiresAt = fromMillis(expiresAt)
	return &pending, nil
}

// Delete removes the pending ceremony for a user.
func (s *CeremonyStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_ceremonies WHERE user_id = ?`, userID)
	if err != nil {
		return webauthn.WrapError("delete pending ceremony", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return nil
}

// DeleteExpired removes ceremonies whose expiry precedes now.
func (s *CeremonyStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_ceremonies WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, webauthn.WrapError("delete expired ceremonies", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, webauthn.WrapError("delete expired ceremonies", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return int(affected), nil
}
