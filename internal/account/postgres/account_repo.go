// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/welwitschi/welwitschi/internal/account"
)

const accountColumns = `id, username, email, password_hash, confirmation, created_at, updated_at`

// AccountRepository implements account.Repository using PostgreSQL.
// Username and email uniqueness is case-insensitive (unique indexes on LOWER()).
type AccountRepository struct {
	db DB
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts rec and fills in its id and timestamps.
func (r *AccountRepository) Create(ctx context.Context, rec *account.Record) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, confirmation)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, rec.Username, rec.Email, rec.PasswordHash, rec.Confirmation).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("username", rec.Username).
			With("email", rec.Email).
			Wrap(account.ErrConflict)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", rec.Username).
			Wrap(err)
	}
	return nil
}

// FindOne returns the single account matching any selector. At most two rows
// are read: a second row already makes the result ambiguous.
func (r *AccountRepository) FindOne(ctx context.Context, selectors ...account.Selector) (*account.Record, error) {
	if len(selectors) == 0 {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	where, args := selectorClause(selectors, 1)

	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where+` LIMIT 2`, args...)
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "find account").
			Wrap(err)
	}
	defer rows.Close()

	var found []*account.Record
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_SCAN_FAILED").
				With("operation", "scan account row").
				Wrap(err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "iterate account rows").
			Wrap(err)
	}
	if len(found) != 1 {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("matches", len(found)).
			Wrap(account.ErrNotFound)
	}
	return found[0], nil
}

// Taken reports whether an account other than exceptID matches any selector.
func (r *AccountRepository) Taken(ctx context.Context, exceptID int64, selectors ...account.Selector) (bool, error) {
	if len(selectors) == 0 {
		return false, nil
	}
	where, args := selectorClause(selectors, 2)
	args = append([]any{exceptID}, args...)

	var taken bool
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id <> $1 AND (`+where+`))`, args...).
		Scan(&taken)
	if err != nil {
		return false, oops.Code("ACCOUNT_QUERY_FAILED").
			With("operation", "check taken").
			Wrap(err)
	}
	return taken, nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateColumn(ctx, id, "password_hash", passwordHash)
}

// UpdateUsername renames the account.
func (r *AccountRepository) UpdateUsername(ctx context.Context, id int64, username string) error {
	return r.updateColumn(ctx, id, "username", username)
}

// UpdateEmail changes the email address.
func (r *AccountRepository) UpdateEmail(ctx context.Context, id int64, email string) error {
	return r.updateColumn(ctx, id, "email", email)
}

// updateColumn sets one column of one account. column is never caller input.
func (r *AccountRepository) updateColumn(ctx context.Context, id int64, column, value string) error {
	result, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE accounts SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_CONFLICT").
			With("id", id).
			With("column", column).
			Wrap(account.ErrConflict)
	}
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update "+column).
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// Confirm swaps the pending token for the confirmed marker in one statement,
// so concurrent confirmations of the same account succeed at most once.
func (r *AccountRepository) Confirm(ctx context.Context, id int64, token string) (bool, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE accounts SET confirmation = $3, updated_at = NOW()
		WHERE id = $1 AND confirmation = $2 AND confirmation <> $3
	`, id, token, account.Confirmed)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "confirm account").
			With("id", id).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// Delete removes the account. Its session row goes with it (ON DELETE CASCADE).
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	return nil
}

// selectorClause renders selectors as an OR of equality tests with
// placeholders numbered from first.
func selectorClause(selectors []account.Selector, first int) (string, []any) {
	terms := make([]string, 0, len(selectors))
	args := make([]any, 0, len(selectors))
	for i, sel := range selectors {
		placeholder := "$" + strconv.Itoa(first+i)
		switch s := sel.(type) {
		case account.ByID:
			terms = append(terms, "id = "+placeholder)
			args = append(args, int64(s))
		case account.ByUsername:
			terms = append(terms, "LOWER(username) = LOWER("+placeholder+")")
			args = append(args, string(s))
		case account.ByEmail:
			terms = append(terms, "LOWER(email) = LOWER("+placeholder+")")
			args = append(args, string(s))
		}
	}
	return strings.Join(terms, " OR "), args
}

// scanAccount scans a row into a Record. pgx.ErrNoRows is returned unchanged.
func scanAccount(row pgx.Row) (*account.Record, error) {
	var rec account.Record
	err := row.Scan(&rec.ID, &rec.Username, &rec.Email, &rec.PasswordHash,
		&rec.Confirmation, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, oops.With("operation", "scan account").Wrap(err)
	}
	return &rec, nil
}
