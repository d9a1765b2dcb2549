// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package vault_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/welwitschi/welwitschi/internal/vault"
	"github.com/welwitschi/welwitschi/pkg/errutil"
)

func newTestVault(t *testing.T, opts ...vault.Option) *vault.Vault {
	t.Helper()
	v, err := vault.New(append([]vault.Option{vault.WithBcryptCost(bcrypt.MinCost)}, opts...)...)
	require.NoError(t, err)
	return v
}

func TestNew(t *testing.T) {
	t.Run("defaults to bcrypt", func(t *testing.T) {
		v, err := vault.New()
		require.NoError(t, err)
		assert.Equal(t, vault.AlgorithmBcrypt, v.Algorithm())
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		_, err := vault.New(vault.WithAlgorithm("md5"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "VAULT_INVALID_ALGORITHM")
	})

	t.Run("rejects out of range cost", func(t *testing.T) {
		_, err := vault.New(vault.WithBcryptCost(bcrypt.MaxCost + 1))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "VAULT_INVALID_COST")
	})
}

func TestHash(t *testing.T) {
	for _, algorithm := range []string{vault.AlgorithmBcrypt, vault.AlgorithmArgon2id} {
		t.Run(algorithm, func(t *testing.T) {
			v := newTestVault(t, vault.WithAlgorithm(algorithm))

			t.Run("same secret produces different hashes (salt)", func(t *testing.T) {
				hash1, err := v.Hash("samepassword")
				require.NoError(t, err)
				hash2, err := v.Hash("samepassword")
				require.NoError(t, err)
				assert.NotEqual(t, hash1, hash2)
				assert.True(t, v.Verify("samepassword", hash1))
				assert.True(t, v.Verify("samepassword", hash2))
			})

			t.Run("hash is not the plaintext", func(t *testing.T) {
				hash, err := v.Hash("1")
				require.NoError(t, err)
				assert.NotEqual(t, "1", hash)
			})

			t.Run("rejects empty secret", func(t *testing.T) {
				_, err := v.Hash("")
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "VAULT_EMPTY_SECRET")
			})
		})
	}
}

func TestVerify(t *testing.T) {
	v := newTestVault(t)

	t.Run("correct secret verifies", func(t *testing.T) {
		hash, err := v.Hash("correctpassword")
		require.NoError(t, err)
		assert.True(t, v.Verify("correctpassword", hash))
	})

	t.Run("incorrect secret fails", func(t *testing.T) {
		hash, err := v.Hash("correctpassword")
		require.NoError(t, err)
		assert.False(t, v.Verify("wrongpassword", hash))
	})

	t.Run("long tokens are not truncated", func(t *testing.T) {
		token, err := vault.RandomToken(64)
		require.NoError(t, err)
		hash, err := v.Hash(token)
		require.NoError(t, err)

		assert.True(t, v.Verify(token, hash))
		// same first 72 bytes, different tail
		tampered := token[:100] + strings.Repeat("0", len(token)-100)
		if tampered != token {
			assert.False(t, v.Verify(tampered, hash))
		}
	})

	t.Run("digest of a long secret is not an alias", func(t *testing.T) {
		passphrase := strings.Repeat("correct horse battery staple ", 4)
		require.Greater(t, len(passphrase), 72)
		hash, err := v.Hash(passphrase)
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(passphrase))
		assert.False(t, v.Verify(hex.EncodeToString(sum[:]), hash))
		assert.False(t, v.Verify(base64.StdEncoding.EncodeToString(sum[:]), hash))
		assert.True(t, v.Verify(passphrase, hash))
	})

	t.Run("short secrets are not aliases of their digest", func(t *testing.T) {
		hash, err := v.Hash("hunter2")
		require.NoError(t, err)
		sum := sha256.Sum256([]byte("hunter2"))
		assert.False(t, v.Verify(base64.StdEncoding.EncodeToString(sum[:]), hash))
	})

	t.Run("verifies across algorithms", func(t *testing.T) {
		argon := newTestVault(t, vault.WithAlgorithm(vault.AlgorithmArgon2id))
		hash, err := argon.Hash("password")
		require.NoError(t, err)
		assert.True(t, v.Verify("password", hash))
	})

	malformed := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"garbage", "not-a-valid-hash"},
		{"truncated bcrypt", "$2a$04$abc"},
		{"wrong argon variant", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA"},
		{"invalid hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"excessive time", "$argon2id$v=19$m=8,t=200000,p=1$c2FsdA$aGFzaA"},
		{"excessive memory", "$argon2id$v=19$m=4194304,t=1,p=1$c2FsdA$aGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA"},
	}
	for _, tt := range malformed {
		t.Run("malformed hash never matches: "+tt.name, func(t *testing.T) {
			assert.False(t, v.Verify("password", tt.hash))
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	bcryptHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"

	t.Run("argon2id vault upgrades bcrypt hashes", func(t *testing.T) {
		v := newTestVault(t, vault.WithAlgorithm(vault.AlgorithmArgon2id))
		assert.True(t, v.NeedsUpgrade(bcryptHash))

		hash, err := v.Hash("password")
		require.NoError(t, err)
		assert.False(t, v.NeedsUpgrade(hash))
	})

	t.Run("bcrypt vault upgrades lower cost hashes", func(t *testing.T) {
		v, err := vault.New(vault.WithBcryptCost(12))
		require.NoError(t, err)
		assert.True(t, v.NeedsUpgrade(bcryptHash))
	})

	t.Run("bcrypt vault keeps equal cost hashes", func(t *testing.T) {
		v, err := vault.New(vault.WithBcryptCost(10))
		require.NoError(t, err)
		assert.False(t, v.NeedsUpgrade(bcryptHash))
	})

	t.Run("bcrypt vault upgrades argon2id hashes", func(t *testing.T) {
		v := newTestVault(t)
		assert.True(t, v.NeedsUpgrade("$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"))
	})
}

func TestRandomToken(t *testing.T) {
	t.Run("hex encodes requested bytes", func(t *testing.T) {
		token, err := vault.RandomToken(64)
		require.NoError(t, err)
		assert.Len(t, token, 128)
		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("tokens differ", func(t *testing.T) {
		a, err := vault.RandomToken(20)
		require.NoError(t, err)
		b, err := vault.RandomToken(20)
		require.NoError(t, err)
		assert.Len(t, a, 40)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		_, err := vault.RandomToken(0)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "VAULT_INVALID_LENGTH")
	})
}
