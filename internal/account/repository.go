// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import "context"

// Repository manages account persistence.
type Repository interface {
	// Create inserts the record and sets its ID.
	// Returns ErrConflict if the username or email is already taken.
	Create(ctx context.Context, rec *Record) error

	// FindOne returns the single record matching any of the selectors.
	// Returns ErrNotFound when no record or more than one record matches.
	FindOne(ctx context.Context, selectors ...Selector) (*Record, error)

	// Taken reports whether any record other than exceptID matches any of the
	// selectors. An exceptID of 0 excludes nothing.
	Taken(ctx context.Context, exceptID int64, selectors ...Selector) (bool, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// UpdateUsername renames the account. Returns ErrConflict on collision.
	UpdateUsername(ctx context.Context, id int64, username string) error

	// UpdateEmail changes the email. Returns ErrConflict on collision.
	UpdateEmail(ctx context.Context, id int64, email string) error

	// Confirm marks the account confirmed if its pending token is still token.
	// Returns false when the account was already confirmed or the token differs.
	Confirm(ctx context.Context, id int64, token string) (bool, error)

	// Delete removes the account.
	Delete(ctx context.Context, id int64) error
}

// SessionRecord is the persisted session row of one account. Either hash may
// be nil independently.
type SessionRecord struct {
	AccountID int64
	LoginHash *string
	APIHash   *string
}

// SessionRepository manages session row persistence.
type SessionRepository interface {
	// Get returns the session row of an account, or ErrNotFound.
	Get(ctx context.Context, accountID int64) (*SessionRecord, error)

	// UpsertLoginHash writes the login hash, leaving the API hash untouched.
	UpsertLoginHash(ctx context.Context, accountID int64, hash string) error

	// UpsertAPIHash writes the API hash, leaving the login hash untouched.
	UpsertAPIHash(ctx context.Context, accountID int64, hash string) error

	// Delete removes the session row. Deleting a missing row is not an error.
	Delete(ctx context.Context, accountID int64) error
}

// Transactor runs fn in a single store transaction. Repository calls made
// with the context passed to fn participate in it.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
