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
	"strings"
	"time"

	"github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
)

const userColumns = `id, username, display_name, email, role, status, webauthn_user_id`

// UserStore is the user persistence view of a Store. It implements the
// engine's UserStore interface.
type UserStore struct {
	db *sql.DB
}

// GetByID retrieves a user by their account ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*webauthn.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByUsername retrieves a user by their unique username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*webauthn.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// Create provisions a new user record.
func (s *UserStore) Create(ctx context.Context, user *webauthn.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(user.Username) == "" {
		return fmt.Errorf("username is required")
	}

	now := toMillis(time.Now())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, display_name, email, role, status, webauthn_user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Email,
		user.Role,
		user.Status,
		user.WebAuthnUserID,
		now,
		now,
	)
	if err != nil {
		return webauthn.WrapError("create user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return nil
}

// Save persists changes to an existing user.
func (s *UserStore) Save(ctx context.Context, user *webauthn.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
UPDATE users
SET username = ?, display_name = ?, email = ?, role = ?, status = ?, webauthn_user_id = ?, updated_at = ?
WHERE id = ?`,
		user.Username,
		user.DisplayName,
		user.Email,
		user.Role,
		user.Status,
		user.WebAuthnUserID,
		toMillis(time.Now()),
		user.ID,
	)
	if err != nil {
		return webauthn.WrapError("save user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return webauthn.WrapError("save user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	if affected == 0 {
		return webauthn.ErrUserNotFound
	}
	return nil
}

// Delete removes a user by their account ID. Enrolled authenticators and
// any pending ceremony are removed by the foreign key cascades.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return webauthn.WrapError("delete user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return webauthn.WrapError("delete user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	if affected == 0 {
		return webauthn.ErrUserNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*webauthn.User, error) {
	var user webauthn.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Email,
		&user.Role,
		&user.Status,
		&user.WebAuthnUserID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrUserNotFound
		}
		return nil, webauthn.WrapError("scan user", fmt.Errorf("%w: %v", webauthn.ErrStorage, err))
	}
	return &user, nil
}
