// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/welwitschi/welwitschi/internal/account"
)

// SessionRepository implements account.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

var _ account.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get retrieves the session row of an account.
func (r *SessionRepository) Get(ctx context.Context, accountID int64) (*account.SessionRecord, error) {
	var rec account.SessionRecord
	err := conn(ctx, r.db).QueryRow(ctx, `
		SELECT account_id, login_hash, api_hash
		FROM sessions
		WHERE account_id = $1
	`, accountID).Scan(&rec.AccountID, &rec.LoginHash, &rec.APIHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("account_id", accountID).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session").
			With("account_id", accountID).
			Wrap(err)
	}
	return &rec, nil
}

// UpsertLoginHash writes the login hash, creating the row if needed.
func (r *SessionRepository) UpsertLoginHash(ctx context.Context, accountID int64, hash string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO sessions (account_id, login_hash)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET login_hash = EXCLUDED.login_hash
	`, accountID, hash)
	return upsertError(err, accountID, "login_hash")
}

// UpsertAPIHash writes the API hash, creating the row if needed.
func (r *SessionRepository) UpsertAPIHash(ctx context.Context, accountID int64, hash string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO sessions (account_id, api_hash)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET api_hash = EXCLUDED.api_hash
	`, accountID, hash)
	return upsertError(err, accountID, "api_hash")
}

func upsertError(err error, accountID int64, column string) error {
	if err == nil {
		return nil
	}
	if isForeignKeyViolation(err) {
		return oops.Code("SESSION_ACCOUNT_NOT_FOUND").
			With("account_id", accountID).
			Wrap(account.ErrNotFound)
	}
	return oops.Code("SESSION_UPSERT_FAILED").
		With("operation", "upsert "+column).
		With("account_id", accountID).
		Wrap(err)
}

// Delete removes the session row. A missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, accountID int64) error {
	_, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}
