// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package mocks provides testify mocks of the account store contracts.
// Variadic selectors are recorded as a single []account.Selector argument.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/welwitschi/welwitschi/internal/account"
)

// Repository is a mock for account.Repository.
type Repository struct {
	mock.Mock
}

var _ account.Repository = (*Repository)(nil)

func (m *Repository) Create(ctx context.Context, rec *account.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *Repository) FindOne(ctx context.Context, selectors ...account.Selector) (*account.Record, error) {
	args := m.Called(ctx, selectors)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Record), args.Error(1)
}

func (m *Repository) Taken(ctx context.Context, exceptID int64, selectors ...account.Selector) (bool, error) {
	args := m.Called(ctx, exceptID, selectors)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *Repository) UpdateUsername(ctx context.Context, id int64, username string) error {
	args := m.Called(ctx, id, username)
	return args.Error(0)
}

func (m *Repository) UpdateEmail(ctx context.Context, id int64, email string) error {
	args := m.Called(ctx, id, email)
	return args.Error(0)
}

func (m *Repository) Confirm(ctx context.Context, id int64, token string) (bool, error) {
	args := m.Called(ctx, id, token)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SessionRepository is a mock for account.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

var _ account.SessionRepository = (*SessionRepository)(nil)

func (m *SessionRepository) Get(ctx context.Context, accountID int64) (*account.SessionRecord, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.SessionRecord), args.Error(1)
}

func (m *SessionRepository) UpsertLoginHash(ctx context.Context, accountID int64, hash string) error {
	args := m.Called(ctx, accountID, hash)
	return args.Error(0)
}

func (m *SessionRepository) UpsertAPIHash(ctx context.Context, accountID int64, hash string) error {
	args := m.Called(ctx, accountID, hash)
	return args.Error(0)
}

func (m *SessionRepository) Delete(ctx context.Context, accountID int64) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// Transactor runs fn inline without a real transaction. Set Err to make
// InTransaction fail before fn is called.
type Transactor struct {
	Err   error
	Calls int
}

var _ account.Transactor = (*Transactor)(nil)

func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	if t.Err != nil {
		return t.Err
	}
	return fn(ctx)
}
