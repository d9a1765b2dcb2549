// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Confirmed is the confirmation value of an account whose pending token has
// been consumed.
const Confirmed = "confirmed"

// MaxKeyLength is the maximum length, in characters, of usernames and emails.
const MaxKeyLength = 128

// Record is the persisted form of an account.
type Record struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	// Confirmation holds either Confirmed or the pending confirmation token.
	Confirmation string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsConfirmed reports whether the account has been confirmed.
func (r *Record) IsConfirmed() bool {
	return r.Confirmation == Confirmed
}

// PendingToken returns the confirmation token while the account is pending.
func (r *Record) PendingToken() (string, bool) {
	if r.IsConfirmed() || r.Confirmation == "" {
		return "", false
	}
	return r.Confirmation, true
}

// NormalizeKey trims surrounding whitespace from a username or email.
func NormalizeKey(s string) string {
	return strings.TrimSpace(s)
}

// ValidateUsername checks the stored form of a username.
func ValidateUsername(username string) error {
	return validateKey("ACCOUNT_INVALID_USERNAME", "username", username)
}

// ValidateEmail checks the stored form of an email address. Only presence
// and length are enforced; deliverability is the confirmation flow's job.
func ValidateEmail(email string) error {
	return validateKey("ACCOUNT_INVALID_EMAIL", "email", email)
}

func validateKey(code, field, value string) error {
	if value == "" {
		return oops.Code(code).Errorf("%s cannot be empty", field)
	}
	if !utf8.ValidString(value) || strings.ContainsRune(value, 0) {
		return oops.Code(code).Errorf("%s must be valid UTF-8 without NUL bytes", field)
	}
	if n := utf8.RuneCountInString(value); n > MaxKeyLength {
		return oops.Code(code).
			With("max", MaxKeyLength).
			With("length", n).
			Errorf("%s must be at most %d characters", field, MaxKeyLength)
	}
	return nil
}
