// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/welwitschi/welwitschi/internal/vault"
)

// Token sizes in random bytes. Hex encoding doubles the length.
const (
	LoginTokenBytes    = 64
	APIKeyBytes        = 64
	ResetPasswordBytes = 20
)

// Session is the caller-owned session context: which account the caller is
// signed in as and the login token proving it. The transport layer stores it
// between requests (cookie, server-side session, ...). One Session holds at
// most one account.
type Session struct {
	AccountID  int64
	LoginToken string
}

// Clear forgets the signed-in account.
func (s *Session) Clear() {
	s.AccountID = 0
	s.LoginToken = ""
}

// IsEmpty reports whether the session holds no account.
func (s *Session) IsEmpty() bool {
	return s == nil || s.AccountID == 0 || s.LoginToken == ""
}

// SessionManager owns the login and API token hashes of one account.
type SessionManager struct {
	accountID int64
	repo      SessionRepository
	hasher    vault.Hasher
}

// NewSessionManager creates a SessionManager for accountID.
func NewSessionManager(accountID int64, repo SessionRepository, hasher vault.Hasher) *SessionManager {
	return &SessionManager{accountID: accountID, repo: repo, hasher: hasher}
}

// IssueLoginToken generates a login token, stores its hash and returns the
// plaintext. The API hash is left untouched.
func (m *SessionManager) IssueLoginToken(ctx context.Context) (string, error) {
	token, err := vault.RandomToken(LoginTokenBytes)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "generate login token").
			With("account_id", m.accountID).
			Wrap(err)
	}
	hash, err := m.hasher.Hash(token)
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "hash login token").
			With("account_id", m.accountID).
			Wrap(err)
	}
	if err := m.repo.UpsertLoginHash(ctx, m.accountID, hash); err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "store login hash").
			With("account_id", m.accountID).
			Wrap(err)
	}
	return token, nil
}

// IssueAPIToken stores the hash of key as the account's API token,
// replacing any previous one. The login hash is left untouched.
func (m *SessionManager) IssueAPIToken(ctx context.Context, key string) error {
	hash, err := m.hasher.Hash(key)
	if err != nil {
		return oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "hash api token").
			With("account_id", m.accountID).
			Wrap(err)
	}
	if err := m.repo.UpsertAPIHash(ctx, m.accountID, hash); err != nil {
		return oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "store api hash").
			With("account_id", m.accountID).
			Wrap(err)
	}
	return nil
}

// IsValidLoginToken reports whether candidate matches the stored login hash.
// Accounts without a login hash never match.
func (m *SessionManager) IsValidLoginToken(ctx context.Context, candidate string) (bool, error) {
	rec, err := m.load(ctx)
	if err != nil || rec == nil || rec.LoginHash == nil {
		return false, err
	}
	return m.hasher.Verify(candidate, *rec.LoginHash), nil
}

// IsValidAPIToken reports whether candidate matches the stored API hash.
// Accounts without an API hash never match.
func (m *SessionManager) IsValidAPIToken(ctx context.Context, candidate string) (bool, error) {
	rec, err := m.load(ctx)
	if err != nil || rec == nil || rec.APIHash == nil {
		return false, err
	}
	return m.hasher.Verify(candidate, *rec.APIHash), nil
}

// TokenHashes returns the stored session row, or ErrNotFound.
func (m *SessionManager) TokenHashes(ctx context.Context) (*SessionRecord, error) {
	return m.repo.Get(ctx, m.accountID)
}

// Wipe deletes the session row, invalidating both tokens.
func (m *SessionManager) Wipe(ctx context.Context) error {
	if err := m.repo.Delete(ctx, m.accountID); err != nil {
		return oops.Code("SESSION_WIPE_FAILED").
			With("account_id", m.accountID).
			Wrap(err)
	}
	return nil
}

// load returns the session row, or nil when there is none.
func (m *SessionManager) load(ctx context.Context) (*SessionRecord, error) {
	rec, err := m.repo.Get(ctx, m.accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("account_id", m.accountID).
			Wrap(err)
	}
	return rec, nil
}
