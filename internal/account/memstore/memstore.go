// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package memstore provides in-memory account and session repositories.
// They follow the same contracts as the postgres repositories, including
// case-insensitive uniqueness of usernames and emails, and are meant for
// tests and local tooling.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/welwitschi/welwitschi/internal/account"
)

// Store holds accounts and session rows. Its zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]account.Record
	sessions map[int64]account.SessionRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]account.Record),
		sessions: make(map[int64]account.SessionRecord),
	}
}

// Accounts returns the store as an account.Repository.
func (s *Store) Accounts() account.Repository { return (*accountRepo)(s) }

// Sessions returns the store as an account.SessionRepository.
func (s *Store) Sessions() account.SessionRepository { return (*sessionRepo)(s) }

// InTransaction runs fn and rolls the store back to its prior state if fn
// fails. Transactions are not isolated from concurrent writers.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapshot := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.nextID, s.accounts, s.sessions = snapshot.nextID, snapshot.accounts, snapshot.sessions
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) cloneLocked() *Store {
	c := &Store{
		nextID:   s.nextID,
		accounts: make(map[int64]account.Record, len(s.accounts)),
		sessions: make(map[int64]account.SessionRecord, len(s.sessions)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

var (
	_ account.Transactor = (*Store)(nil)
	_ account.Repository = (*accountRepo)(nil)
	_ account.SessionRepository = (*sessionRepo)(nil)
)

type accountRepo Store

func matches(rec *account.Record, sel account.Selector) bool {
	switch s := sel.(type) {
	case account.ByID:
		return rec.ID == int64(s)
	case account.ByUsername:
		return strings.EqualFold(rec.Username, string(s))
	case account.ByEmail:
		return strings.EqualFold(rec.Email, string(s))
	default:
		return false
	}
}

func matchesAny(rec *account.Record, selectors []account.Selector) bool {
	for _, sel := range selectors {
		if matches(rec, sel) {
			return true
		}
	}
	return false
}

// conflictsLocked reports whether another record shares rec's username or email.
func (r *accountRepo) conflictsLocked(rec *account.Record) bool {
	for id := range r.accounts {
		other := r.accounts[id]
		if other.ID == rec.ID {
			continue
		}
		if strings.EqualFold(other.Username, rec.Username) || strings.EqualFold(other.Email, rec.Email) {
			return true
		}
	}
	return false
}

func (r *accountRepo) Create(_ context.Context, rec *account.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictsLocked(rec) {
		return account.ErrConflict
	}
	r.nextID++
	now := time.Now()
	rec.ID = r.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.accounts[rec.ID] = *rec
	return nil
}

func (r *accountRepo) FindOne(_ context.Context, selectors ...account.Selector) (*account.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *account.Record
	for id := range r.accounts {
		rec := r.accounts[id]
		if !matchesAny(&rec, selectors) {
			continue
		}
		if found != nil {
			return nil, account.ErrNotFound
		}
		found = &rec
	}
	if found == nil {
		return nil, account.ErrNotFound
	}
	return found, nil
}

func (r *accountRepo) Taken(_ context.Context, exceptID int64, selectors ...account.Selector) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.accounts {
		rec := r.accounts[id]
		if rec.ID != exceptID && matchesAny(&rec, selectors) {
			return true, nil
		}
	}
	return false, nil
}

// update applies fn to the record with id, rejecting results that collide
// with another record.
func (r *accountRepo) update(id int64, fn func(rec *account.Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	fn(&rec)
	if r.conflictsLocked(&rec) {
		return account.ErrConflict
	}
	rec.UpdatedAt = time.Now()
	r.accounts[id] = rec
	return nil
}

func (r *accountRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	return r.update(id, func(rec *account.Record) { rec.PasswordHash = passwordHash })
}

func (r *accountRepo) UpdateUsername(_ context.Context, id int64, username string) error {
	return r.update(id, func(rec *account.Record) { rec.Username = username })
}

func (r *accountRepo) UpdateEmail(_ context.Context, id int64, email string) error {
	return r.update(id, func(rec *account.Record) { rec.Email = email })
}

func (r *accountRepo) Confirm(_ context.Context, id int64, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.accounts[id]
	if !ok || rec.IsConfirmed() || rec.Confirmation != token {
		return false, nil
	}
	rec.Confirmation = account.Confirmed
	rec.UpdatedAt = time.Now()
	r.accounts[id] = rec
	return true, nil
}

func (r *accountRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return account.ErrNotFound
	}
	delete(r.accounts, id)
	delete(r.sessions, id)
	return nil
}

type sessionRepo Store

func (r *sessionRepo) Get(_ context.Context, accountID int64) (*account.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[accountID]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &rec, nil
}

func (r *sessionRepo) upsert(accountID int64, fn func(rec *account.SessionRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[accountID]; !ok {
		return account.ErrNotFound
	}
	rec := r.sessions[accountID]
	rec.AccountID = accountID
	fn(&rec)
	r.sessions[accountID] = rec
	return nil
}

func (r *sessionRepo) UpsertLoginHash(_ context.Context, accountID int64, hash string) error {
	return r.upsert(accountID, func(rec *account.SessionRecord) { rec.LoginHash = &hash })
}

func (r *sessionRepo) UpsertAPIHash(_ context.Context, accountID int64, hash string) error {
	return r.upsert(accountID, func(rec *account.SessionRecord) { rec.APIHash = &hash })
}

func (r *sessionRepo) Delete(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, accountID)
	return nil
}
