// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welwitschi/welwitschi/internal/account"
	"github.com/welwitschi/welwitschi/internal/account/postgres"
	"github.com/welwitschi/welwitschi/pkg/errutil"
)

var (
	errConnRefused = errors.New("connection refused")
	accountCols    = []string{"id", "username", "email", "password_hash", "confirmation", "created_at", "updated_at"}
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

func TestAccountRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantIs    error
		wantCode  string
	}{
		{
			name: "returns generated id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO accounts")).
					WithArgs("alice", "a@x.com", "hash", "token").
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))
			},
			wantID: 7,
		},
		{
			name: "unique violation is a conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO accounts")).
					WithArgs("alice", "a@x.com", "hash", "token").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_username_lower_idx"})
			},
			wantIs:   account.ErrConflict,
			wantCode: "ACCOUNT_CONFLICT",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO accounts")).
					WithArgs("alice", "a@x.com", "hash", "token").
					WillReturnError(errConnRefused)
			},
			wantIs:   errConnRefused,
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			rec := &account.Record{Username: "alice", Email: "a@x.com", PasswordHash: "hash", Confirmation: "token"}
			err := postgres.NewAccountRepository(mock).Create(ctx, rec)

			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, rec.ID)
				assert.Equal(t, now, rec.CreatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccountRepository_FindOne(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("single match", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("WHERE id = $1 OR LOWER(username) = LOWER($2) OR LOWER(email) = LOWER($3) LIMIT 2")).
			WithArgs(int64(7), "alice", "a@x.com").
			WillReturnRows(pgxmock.NewRows(accountCols).
				AddRow(int64(7), "alice", "a@x.com", "hash", account.Confirmed, now, now))

		rec, err := postgres.NewAccountRepository(mock).FindOne(ctx,
			account.ByID(7), account.ByUsername("alice"), account.ByEmail("a@x.com"))
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.ID)
		assert.Equal(t, "alice", rec.Username)
		assert.True(t, rec.IsConfirmed())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("two matches are not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("FROM accounts WHERE")).
			WithArgs("alice", "b@x.com").
			WillReturnRows(pgxmock.NewRows(accountCols).
				AddRow(int64(1), "alice", "a@x.com", "h1", account.Confirmed, now, now).
				AddRow(int64(2), "bob", "b@x.com", "h2", account.Confirmed, now, now))

		_, err := postgres.NewAccountRepository(mock).FindOne(ctx, account.ByUsername("alice"), account.ByEmail("b@x.com"))
		require.ErrorIs(t, err, account.ErrNotFound)
		errutil.AssertErrorContext(t, err, "matches", 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("FROM accounts WHERE")).
			WithArgs(int64(99)).
			WillReturnRows(pgxmock.NewRows(accountCols))

		_, err := postgres.NewAccountRepository(mock).FindOne(ctx, account.ByID(99))
		require.ErrorIs(t, err, account.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no selectors skip the query", func(t *testing.T) {
		mock := newMock(t)
		_, err := postgres.NewAccountRepository(mock).FindOne(ctx)
		require.ErrorIs(t, err, account.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error is not a miss", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("FROM accounts WHERE")).
			WithArgs(int64(7)).
			WillReturnError(errConnRefused)

		_, err := postgres.NewAccountRepository(mock).FindOne(ctx, account.ByID(7))
		require.ErrorIs(t, err, errConnRefused)
		assert.NotErrorIs(t, err, account.ErrNotFound)
		errutil.AssertErrorCode(t, err, "ACCOUNT_QUERY_FAILED")
	})
}

func TestAccountRepository_Taken(t *testing.T) {
	ctx := context.Background()

	mock := newMock(t)
	mock.ExpectQuery(q("SELECT EXISTS (SELECT 1 FROM accounts WHERE id <> $1 AND (LOWER(username) = LOWER($2) OR LOWER(email) = LOWER($3)))")).
		WithArgs(int64(7), "Bob", "b@x.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := postgres.NewAccountRepository(mock).Taken(ctx, 7, account.ByUsername("Bob"), account.ByEmail("b@x.com"))
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Updates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		column   string
		call     func(r *postgres.AccountRepository) error
		result   pgconn.CommandTag
		err      error
		wantIs   error
		wantCode string
	}{
		{
			name:   "password",
			column: "password_hash",
			call:   func(r *postgres.AccountRepository) error { return r.UpdatePassword(ctx, 7, "v") },
			result: pgxmock.NewResult("UPDATE", 1),
		},
		{
			name:   "username",
			column: "username",
			call:   func(r *postgres.AccountRepository) error { return r.UpdateUsername(ctx, 7, "v") },
			result: pgxmock.NewResult("UPDATE", 1),
		},
		{
			name:     "email collision",
			column:   "email",
			call:     func(r *postgres.AccountRepository) error { return r.UpdateEmail(ctx, 7, "v") },
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation},
			wantIs:   account.ErrConflict,
			wantCode: "ACCOUNT_CONFLICT",
		},
		{
			name:     "missing account",
			column:   "username",
			call:     func(r *postgres.AccountRepository) error { return r.UpdateUsername(ctx, 7, "v") },
			result:   pgxmock.NewResult("UPDATE", 0),
			wantIs:   account.ErrNotFound,
			wantCode: "ACCOUNT_NOT_FOUND",
		},
		{
			name:     "database error",
			column:   "password_hash",
			call:     func(r *postgres.AccountRepository) error { return r.UpdatePassword(ctx, 7, "v") },
			err:      errConnRefused,
			wantIs:   errConnRefused,
			wantCode: "ACCOUNT_UPDATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(q("UPDATE accounts SET "+tt.column+" = $2, updated_at = NOW() WHERE id = $1")).
				WithArgs(int64(7), "v")
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := tt.call(postgres.NewAccountRepository(mock))
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccountRepository_Confirm(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		name string
		rows int64
		want bool
	}{
		{"pending token matches", 1, true},
		{"already confirmed or wrong token", 0, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(q("UPDATE accounts SET confirmation = $3")).
				WithArgs(int64(7), "token", account.Confirmed).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.rows))

			ok, err := postgres.NewAccountRepository(mock).Confirm(ctx, 7, "token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccountRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("DELETE FROM accounts WHERE id = $1")).
			WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, postgres.NewAccountRepository(mock).Delete(ctx, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("DELETE FROM accounts WHERE id = $1")).
			WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := postgres.NewAccountRepository(mock).Delete(ctx, 7)
		require.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestSessionRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns hashes", func(t *testing.T) {
		mock := newMock(t)
		login := "login-hash"
		mock.ExpectQuery(q("FROM sessions")).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"account_id", "login_hash", "api_hash"}).
				AddRow(int64(7), &login, (*string)(nil)))

		rec, err := postgres.NewSessionRepository(mock).Get(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.AccountID)
		require.NotNil(t, rec.LoginHash)
		assert.Equal(t, login, *rec.LoginHash)
		assert.Nil(t, rec.APIHash)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("FROM sessions")).
			WithArgs(int64(7)).
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewSessionRepository(mock).Get(ctx, 7)
		require.ErrorIs(t, err, account.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(q("FROM sessions")).
			WithArgs(int64(7)).
			WillReturnError(errConnRefused)

		_, err := postgres.NewSessionRepository(mock).Get(ctx, 7)
		require.ErrorIs(t, err, errConnRefused)
		assert.NotErrorIs(t, err, account.ErrNotFound)
	})
}

func TestSessionRepository_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("login hash touches only its column", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("ON CONFLICT (account_id) DO UPDATE SET login_hash = EXCLUDED.login_hash")).
			WithArgs(int64(7), "h").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewSessionRepository(mock).UpsertLoginHash(ctx, 7, "h"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("api hash touches only its column", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("ON CONFLICT (account_id) DO UPDATE SET api_hash = EXCLUDED.api_hash")).
			WithArgs(int64(7), "h").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, postgres.NewSessionRepository(mock).UpsertAPIHash(ctx, 7, "h"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("INSERT INTO sessions")).
			WithArgs(int64(7), "h").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

		err := postgres.NewSessionRepository(mock).UpsertLoginHash(ctx, 7, "h")
		require.ErrorIs(t, err, account.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_ACCOUNT_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(q("INSERT INTO sessions")).
			WithArgs(int64(7), "h").
			WillReturnError(errConnRefused)

		err := postgres.NewSessionRepository(mock).UpsertAPIHash(ctx, 7, "h")
		require.ErrorIs(t, err, errConnRefused)
		errutil.AssertErrorContext(t, err, "operation", "upsert api_hash")
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	mock.ExpectExec(q("DELETE FROM sessions WHERE account_id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, postgres.NewSessionRepository(mock).Delete(ctx, 7), "missing row is fine")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and routes queries through the transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(q("DELETE FROM sessions")).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(q("DELETE FROM accounts")).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		sessions := postgres.NewSessionRepository(mock)
		accounts := postgres.NewAccountRepository(mock)
		err := postgres.NewTransactor(mock).InTransaction(ctx, func(ctx context.Context) error {
			if err := sessions.Delete(ctx, 7); err != nil {
				return err
			}
			return accounts.Delete(ctx, 7)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := postgres.NewTransactor(mock).InTransaction(ctx, func(context.Context) error {
			return errConnRefused
		})
		require.ErrorIs(t, err, errConnRefused)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errConnRefused)

		called := false
		err := postgres.NewTransactor(mock).InTransaction(ctx, func(context.Context) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, errConnRefused)
		errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
		assert.False(t, called)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		tx := postgres.NewTransactor(mock)
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			return tx.InTransaction(ctx, func(context.Context) error { return nil })
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
