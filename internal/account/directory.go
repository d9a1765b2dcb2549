// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/welwitschi/welwitschi/internal/vault"
	"github.com/welwitschi/welwitschi/pkg/errutil"
)

var tracer = otel.Tracer("welwitschi/account")

// ConfirmationTokenBytes is the random part of a confirmation token. A ULID
// is appended to it.
const ConfirmationTokenBytes = 32

// Directory creates, finds and deletes accounts.
type Directory struct {
	accounts Repository
	sessions SessionRepository
	tx       Transactor
	hasher   vault.Hasher
	logger   *slog.Logger
}

// NewDirectory creates a Directory logging to slog.Default.
func NewDirectory(accounts Repository, sessions SessionRepository, tx Transactor, hasher vault.Hasher) (*Directory, error) {
	return NewDirectoryWithLogger(accounts, sessions, tx, hasher, slog.Default())
}

// NewDirectoryWithLogger creates a Directory with an explicit logger.
func NewDirectoryWithLogger(accounts Repository, sessions SessionRepository, tx Transactor, hasher vault.Hasher, logger *slog.Logger) (*Directory, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		accounts: accounts,
		sessions: sessions,
		tx:       tx,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// CreateAccount registers a new, unconfirmed account. It returns false with
// a nil error when the username or email already belongs to an account, and
// false with a validation error (see IsValidationError) for malformed input.
func (d *Directory) CreateAccount(ctx context.Context, username, email, password string) (ok bool, err error) {
	ctx, span := tracer.Start(ctx, "account.create")
	defer func() {
		endSpan(span, err)
		recordOperation("create", ok, err)
	}()

	username = NormalizeKey(username)
	email = NormalizeKey(email)
	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	if err := ValidateEmail(email); err != nil {
		return false, err
	}

	taken, err := d.accounts.Taken(ctx, 0, ByUsername(username), ByEmail(email))
	if err != nil {
		return false, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "check uniqueness").
			With("username", username).
			Wrap(err)
	}
	if taken {
		d.logger.DebugContext(ctx, "account create refused: key taken", "username", username)
		return false, nil
	}

	hash, err := d.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, vault.ErrEmptySecret) {
			return false, oops.Code("ACCOUNT_INVALID_PASSWORD").Errorf("password cannot be empty")
		}
		return false, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	token, err := newConfirmationToken()
	if err != nil {
		return false, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "generate confirmation token").
			Wrap(err)
	}

	rec := &Record{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Confirmation: token,
	}
	err = d.accounts.Create(ctx, rec)
	if errors.Is(err, ErrConflict) {
		d.logger.DebugContext(ctx, "account create lost uniqueness race", "username", username)
		return false, nil
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", username).
			Wrap(err)
	}

	span.SetAttributes(attribute.Int64("account.id", rec.ID))
	d.logger.InfoContext(ctx, "account created", "account_id", rec.ID, "username", username)
	return true, nil
}

func newConfirmationToken() (string, error) {
	token, err := vault.RandomToken(ConfirmationTokenBytes)
	if err != nil {
		return "", err
	}
	return token + strings.ToLower(ulid.Make().String()), nil
}

// LookupAccount returns the one account matching any of the selectors.
// Returns an error wrapping ErrNotFound when no account or more than one
// account matches, or when no selector is given. Selectors whose key could
// never be stored are dropped before the store is asked.
func (d *Directory) LookupAccount(ctx context.Context, selectors ...Selector) (acct *Account, err error) {
	ctx, span := tracer.Start(ctx, "account.lookup",
		trace.WithAttributes(attribute.String("account.selectors", describeSelectors(selectors))),
	)
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			endSpan(span, err)
			return
		}
		span.End()
	}()

	storable := storableSelectors(selectors)
	if len(storable) == 0 {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("selectors", describeSelectors(selectors)).
			Wrap(ErrNotFound)
	}

	rec, err := d.accounts.FindOne(ctx, storable...)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("selectors", describeSelectors(selectors)).
			Wrap(err)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("selectors", describeSelectors(selectors)).
			Wrap(err)
	}
	return newAccount(rec, d), nil
}

// LookupByID returns the account with the given id.
func (d *Directory) LookupByID(ctx context.Context, id int64) (*Account, error) {
	return d.LookupAccount(ctx, ByID(id))
}

// LookupByUsername returns the account with the given username.
func (d *Directory) LookupByUsername(ctx context.Context, username string) (*Account, error) {
	return d.LookupAccount(ctx, ByUsername(NormalizeKey(username)))
}

// LookupByEmail returns the account with the given email address.
func (d *Directory) LookupByEmail(ctx context.Context, email string) (*Account, error) {
	return d.LookupAccount(ctx, ByEmail(NormalizeKey(email)))
}

// LookupByLogin returns the account whose username or email is login, as
// typed into a sign-in form.
func (d *Directory) LookupByLogin(ctx context.Context, login string) (*Account, error) {
	login = NormalizeKey(login)
	return d.LookupAccount(ctx, ByUsername(login), ByEmail(login))
}

// DeleteAccount removes acct and its session row after checking password.
// Returns false with a nil error when the password is wrong. acct must not
// be used afterwards.
func (d *Directory) DeleteAccount(ctx context.Context, acct *Account, password string) (ok bool, err error) {
	ctx, span := tracer.Start(ctx, "account.delete")
	defer func() {
		endSpan(span, err)
		recordOperation("delete", ok, err)
	}()

	if acct == nil {
		return false, oops.Errorf("account is required")
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	id := acct.rec.ID
	span.SetAttributes(attribute.Int64("account.id", id))

	if !d.hasher.Verify(password, acct.rec.PasswordHash) {
		d.logger.DebugContext(ctx, "account delete refused: password mismatch", "account_id", id)
		return false, nil
	}

	err = d.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := acct.sessions.Wipe(ctx); err != nil {
			return err
		}
		return d.accounts.Delete(ctx, id)
	})
	if errors.Is(err, ErrNotFound) {
		return false, oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id).
			Wrap(err)
	}
	if err != nil {
		errutil.LogErrorContext(ctx, d.logger, "account delete failed", err)
		return false, oops.Code("ACCOUNT_DELETE_FAILED").
			With("account_id", id).
			Wrap(err)
	}

	d.logger.InfoContext(ctx, "account deleted", "account_id", id, "username", acct.rec.Username)
	return true, nil
}

// ResolveSession returns the account a caller session is signed in as.
// Returns an error wrapping ErrNotFound when the session is empty, names an
// unknown account, or carries a token that is no longer valid.
func (d *Directory) ResolveSession(ctx context.Context, sess *Session) (*Account, error) {
	if sess.IsEmpty() {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
	}
	acct, err := d.LookupByID(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	loggedIn, err := acct.IsLoggedIn(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !loggedIn {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", sess.AccountID).
			Wrap(ErrNotFound)
	}
	return acct, nil
}

// AuthenticateAPIKey returns the account selected by sel if key is its
// current API key. A wrong key is reported as ErrNotFound so callers cannot
// tell unknown accounts from bad keys.
func (d *Directory) AuthenticateAPIKey(ctx context.Context, sel Selector, key string) (acct *Account, err error) {
	defer func() {
		if errors.Is(err, ErrNotFound) {
			recordOperation("authenticate_api_key", false, nil)
			return
		}
		recordOperation("authenticate_api_key", acct != nil, err)
	}()

	acct, err = d.LookupAccount(ctx, sel)
	if err != nil {
		return nil, err
	}
	valid, err := acct.VerifyAPIKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("selectors", sel.String()).
			Wrap(ErrNotFound)
	}
	return acct, nil
}

// storableSelectors drops username and email selectors that fail validation.
func storableSelectors(selectors []Selector) []Selector {
	out := make([]Selector, 0, len(selectors))
	for _, sel := range selectors {
		switch key := sel.(type) {
		case ByUsername:
			if ValidateUsername(string(key)) != nil {
				continue
			}
		case ByEmail:
			if ValidateEmail(string(key)) != nil {
				continue
			}
		}
		out = append(out, sel)
	}
	return out
}

func describeSelectors(selectors []Selector) string {
	parts := make([]string, 0, len(selectors))
	for _, s := range selectors {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " OR ")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
