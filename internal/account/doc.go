// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package account implements the account lifecycle and its credential and
// session state.
//
// # Types
//
//   - Directory creates, looks up and deletes accounts.
//   - Account is the in-memory projection of one stored account. Every
//     successful mutation writes the store and then updates the cached
//     record, so the same instance never observes stale state.
//   - SessionManager owns the login and API token hashes of one account.
//   - Session is the caller-owned session context (account id and login
//     token) that the transport layer keeps between requests.
//
// # Results
//
// Wrong passwords, wrong tokens and uniqueness conflicts are reported as a
// false result with a nil error. Lookups that match nothing (or more than
// one account) return ErrNotFound. Any other non-nil error is a store or
// infrastructure fault and must not be treated as a failed credential check.
//
// # Concurrency
//
// An Account serialises its own mutating calls. Different instances for the
// same stored account rely on the store's unique indexes, conditional
// updates and upserts; the last committed write wins.
package account
