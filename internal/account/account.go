// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/welwitschi/welwitschi/internal/vault"
	"github.com/welwitschi/welwitschi/pkg/errutil"
)

// ErrSessionRequired is returned when an operation needs a caller session and
// got nil.
var ErrSessionRequired = oops.Code("ACCOUNT_SESSION_REQUIRED").Errorf("session context is required")

// Account is one stored account plus its session state. Obtain it from a
// Directory. It must not be used after the account has been deleted.
type Account struct {
	mu       sync.Mutex
	rec      Record
	accounts Repository
	tx       Transactor
	sessions *SessionManager
	hasher   vault.Hasher
	logger   *slog.Logger
}

func newAccount(rec *Record, d *Directory) *Account {
	return &Account{
		rec:      *rec,
		accounts: d.accounts,
		tx:       d.tx,
		sessions: NewSessionManager(rec.ID, d.sessions, d.hasher),
		hasher:   d.hasher,
		logger:   d.logger.With("account_id", rec.ID),
	}
}

// ID returns the store-assigned id.
func (a *Account) ID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.ID
}

// Username returns the stored username.
func (a *Account) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.Username
}

// Email returns the stored email address.
func (a *Account) Email() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.Email
}

// DisplayUsername returns the username escaped for HTML output.
func (a *Account) DisplayUsername() string {
	return html.EscapeString(a.Username())
}

// DisplayEmail returns the email address escaped for HTML output.
func (a *Account) DisplayEmail() string {
	return html.EscapeString(a.Email())
}

// PasswordHash returns the cached password hash.
func (a *Account) PasswordHash() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.PasswordHash
}

// IsConfirmed reports whether the account has been confirmed.
func (a *Account) IsConfirmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.IsConfirmed()
}

// PendingConfirmationToken returns the confirmation token until the account
// is confirmed.
func (a *Account) PendingConfirmationToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.PendingToken()
}

// Record returns a copy of the cached record.
func (a *Account) Record() Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec
}

// Sessions returns the account's SessionManager.
func (a *Account) Sessions() *SessionManager {
	return a.sessions
}

// DoesPasswordMatch reports whether password matches the cached hash.
func (a *Account) DoesPasswordMatch(password string) bool {
	return a.hasher.Verify(password, a.PasswordHash())
}

// Confirm consumes the pending confirmation token. It fails when the account
// is already confirmed or token does not match.
func (a *Account) Confirm(ctx context.Context, token string) (ok bool, err error) {
	defer func() { recordOperation("confirm", ok, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	pending, isPending := a.rec.PendingToken()
	if !isPending || subtle.ConstantTimeCompare([]byte(token), []byte(pending)) != 1 {
		return false, nil
	}

	ok, err = a.accounts.Confirm(ctx, a.rec.ID, token)
	if err != nil {
		return false, oops.Code("ACCOUNT_CONFIRM_FAILED").
			With("account_id", a.rec.ID).
			Wrap(err)
	}
	if !ok {
		return false, nil
	}

	a.rec.Confirmation = Confirmed
	a.rec.UpdatedAt = time.Now()
	a.logger.InfoContext(ctx, "account confirmed")
	return true, nil
}

// Login signs the account in on sess. Unconfirmed accounts cannot log in.
// If sess already proves this account is logged in, Login succeeds without
// issuing a new token, whatever password is given. Otherwise the password is
// checked and a fresh login token is written into sess, replacing any
// account sess held before.
func (a *Account) Login(ctx context.Context, sess *Session, password string) (ok bool, err error) {
	defer func() { recordOperation("login", ok, err) }()

	if sess == nil {
		return false, ErrSessionRequired
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.rec.IsConfirmed() {
		a.logger.DebugContext(ctx, "login refused for unconfirmed account")
		return false, nil
	}

	loggedIn, err := a.isLoggedIn(ctx, sess)
	if err != nil {
		return false, err
	}
	if loggedIn {
		return true, nil
	}

	if !a.hasher.Verify(password, a.rec.PasswordHash) {
		a.logger.DebugContext(ctx, "login refused: password mismatch")
		return false, nil
	}

	if a.hasher.NeedsUpgrade(a.rec.PasswordHash) {
		a.upgradePasswordHash(ctx, password)
	}

	token, err := a.sessions.IssueLoginToken(ctx)
	if err != nil {
		return false, err
	}

	sess.AccountID = a.rec.ID
	sess.LoginToken = token
	return true, nil
}

// upgradePasswordHash rehashes with the current vault settings. Failures are
// logged and ignored; the login itself already succeeded.
func (a *Account) upgradePasswordHash(ctx context.Context, password string) {
	newHash, err := a.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, a.logger, "password hash upgrade failed", err)
		return
	}
	if err := a.accounts.UpdatePassword(ctx, a.rec.ID, newHash); err != nil {
		errutil.LogErrorContext(ctx, a.logger, "password hash upgrade failed", err)
		return
	}
	a.rec.PasswordHash = newHash
	a.logger.DebugContext(ctx, "password hash upgraded")
}

// IsLoggedIn reports whether sess names this account and carries a login
// token matching the stored hash.
func (a *Account) IsLoggedIn(ctx context.Context, sess *Session) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isLoggedIn(ctx, sess)
}

func (a *Account) isLoggedIn(ctx context.Context, sess *Session) (bool, error) {
	if sess.IsEmpty() || sess.AccountID != a.rec.ID {
		return false, nil
	}
	return a.sessions.IsValidLoginToken(ctx, sess.LoginToken)
}

// Logout clears the caller's session. The stored login hash is not revoked:
// a copy of the token kept elsewhere stays valid until the next login,
// password reset or account deletion.
func (a *Account) Logout(sess *Session) {
	if sess != nil {
		sess.Clear()
	}
}

// ChangePassword replaces the password if oldPassword matches. Existing
// sessions stay valid.
func (a *Account) ChangePassword(ctx context.Context, oldPassword, newPassword string) (ok bool, err error) {
	defer func() { recordOperation("change_password", ok, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasher.Verify(oldPassword, a.rec.PasswordHash) {
		return false, nil
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, vault.ErrEmptySecret) {
			return false, oops.Code("ACCOUNT_INVALID_PASSWORD").Errorf("password cannot be empty")
		}
		return false, oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	if err := a.accounts.UpdatePassword(ctx, a.rec.ID, hash); err != nil {
		return false, oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	a.rec.PasswordHash = hash
	a.rec.UpdatedAt = time.Now()
	return true, nil
}

// ResetPassword sets a random password, wipes the session row so every
// existing login and API token stops working, and returns the new password.
func (a *Account) ResetPassword(ctx context.Context) (password string, err error) {
	defer func() { recordOperation("reset_password", err == nil, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	password, err = vault.RandomToken(ResetPasswordBytes)
	if err != nil {
		return "", oops.Code("ACCOUNT_RESET_PASSWORD_FAILED").
			With("operation", "generate password").
			With("account_id", a.rec.ID).
			Wrap(err)
	}
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return "", oops.Code("ACCOUNT_RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	err = a.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := a.accounts.UpdatePassword(ctx, a.rec.ID, hash); err != nil {
			return err
		}
		return a.sessions.Wipe(ctx)
	})
	if err != nil {
		return "", oops.Code("ACCOUNT_RESET_PASSWORD_FAILED").
			With("operation", "persist password").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	a.rec.PasswordHash = hash
	a.rec.UpdatedAt = time.Now()
	a.logger.InfoContext(ctx, "password reset")
	return password, nil
}

// ChangeUsername renames the account. sess must prove the account is logged
// in, and the name must not belong to another account.
func (a *Account) ChangeUsername(ctx context.Context, sess *Session, username string) (ok bool, err error) {
	defer func() { recordOperation("change_username", ok, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	loggedIn, err := a.isLoggedIn(ctx, sess)
	if err != nil || !loggedIn {
		return false, err
	}

	username = NormalizeKey(username)
	if err := ValidateUsername(username); err != nil {
		return false, err
	}

	free, err := a.keyFree(ctx, ByUsername(username))
	if err != nil || !free {
		return false, err
	}

	err = a.accounts.UpdateUsername(ctx, a.rec.ID, username)
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_CHANGE_USERNAME_FAILED").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	a.rec.Username = username
	a.rec.UpdatedAt = time.Now()
	return true, nil
}

// ChangeEmail changes the email address. sess must prove the account is
// logged in, and the address must not belong to another account.
func (a *Account) ChangeEmail(ctx context.Context, sess *Session, email string) (ok bool, err error) {
	defer func() { recordOperation("change_email", ok, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	loggedIn, err := a.isLoggedIn(ctx, sess)
	if err != nil || !loggedIn {
		return false, err
	}

	email = NormalizeKey(email)
	if err := ValidateEmail(email); err != nil {
		return false, err
	}

	free, err := a.keyFree(ctx, ByEmail(email))
	if err != nil || !free {
		return false, err
	}

	err = a.accounts.UpdateEmail(ctx, a.rec.ID, email)
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_CHANGE_EMAIL_FAILED").
			With("account_id", a.rec.ID).
			Wrap(err)
	}

	a.rec.Email = email
	a.rec.UpdatedAt = time.Now()
	return true, nil
}

// keyFree reports whether no other account holds key. Callers hold a.mu.
func (a *Account) keyFree(ctx context.Context, key Selector) (bool, error) {
	taken, err := a.accounts.Taken(ctx, a.rec.ID, key)
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "check key").
			With("key", key.String()).
			Wrap(err)
	}
	return !taken, nil
}

// GenerateNewAPIKey issues a new API key, replacing the previous one, and
// returns it. ok is false for unconfirmed accounts.
func (a *Account) GenerateNewAPIKey(ctx context.Context) (key string, ok bool, err error) {
	defer func() { recordOperation("generate_api_key", ok, err) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.rec.IsConfirmed() {
		return "", false, nil
	}

	key, err = vault.RandomToken(APIKeyBytes)
	if err != nil {
		return "", false, oops.Code("ACCOUNT_API_KEY_FAILED").
			With("account_id", a.rec.ID).
			Wrap(err)
	}
	if err := a.sessions.IssueAPIToken(ctx, key); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// VerifyAPIKey reports whether key is the account's current API key.
func (a *Account) VerifyAPIKey(ctx context.Context, key string) (bool, error) {
	return a.sessions.IsValidAPIToken(ctx, key)
}
