// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

// Package vault provides secret hashing, verification and random secret
// generation. It holds no state beyond its hashing parameters.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// Supported hash algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("VAULT_EMPTY_SECRET").Errorf("secret cannot be empty")

// Hasher hashes and verifies secrets.
type Hasher interface {
	// Hash produces a salted hash of the secret. Two calls with the same
	// secret never return the same encoding.
	Hash(secret string) (string, error)

	// Verify reports whether secret matches hash. Malformed hashes never match.
	Verify(secret, hash string) bool

	// NeedsUpgrade reports whether hash was produced with weaker or different
	// parameters than the vault is configured with.
	NeedsUpgrade(hash string) bool
}

// Vault implements Hasher with bcrypt or argon2id.
type Vault struct {
	algorithm  string
	bcryptCost int
}

// Option configures a Vault.
type Option func(*Vault)

// WithAlgorithm selects the algorithm used for new hashes. Verification
// always accepts both.
func WithAlgorithm(algorithm string) Option {
	return func(v *Vault) {
		v.algorithm = algorithm
	}
}

// WithBcryptCost sets the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(v *Vault) {
		v.bcryptCost = cost
	}
}

// New creates a Vault. Defaults to bcrypt at bcrypt.DefaultCost.
func New(opts ...Option) (*Vault, error) {
	v := &Vault{
		algorithm:  AlgorithmBcrypt,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(v)
	}

	switch v.algorithm {
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		return nil, oops.Code("VAULT_INVALID_ALGORITHM").
			With("algorithm", v.algorithm).
			Errorf("unsupported hash algorithm: %s", v.algorithm)
	}
	if v.bcryptCost < bcrypt.MinCost || v.bcryptCost > bcrypt.MaxCost {
		return nil, oops.Code("VAULT_INVALID_COST").
			With("cost", v.bcryptCost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return v, nil
}

// Algorithm returns the algorithm used for new hashes.
func (v *Vault) Algorithm() string {
	return v.algorithm
}

// Hash produces a salted hash of the secret.
func (v *Vault) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if v.algorithm == AlgorithmArgon2id {
		return hashArgon2id(secret)
	}
	return hashBcrypt(secret, v.bcryptCost)
}

// Verify reports whether secret matches hash.
func (v *Vault) Verify(secret, hash string) bool {
	switch {
	case strings.HasPrefix(hash, argon2idPrefix):
		return verifyArgon2id(secret, hash)
	case isBcryptHash(hash):
		return verifyBcrypt(secret, hash)
	default:
		return false
	}
}

// NeedsUpgrade reports whether hash should be regenerated with the current
// settings.
func (v *Vault) NeedsUpgrade(hash string) bool {
	if v.algorithm == AlgorithmArgon2id {
		return !strings.HasPrefix(hash, argon2idPrefix)
	}
	if !isBcryptHash(hash) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < v.bcryptCost
}

// RandomToken returns n cryptographically random bytes, hex encoded.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", oops.Code("VAULT_INVALID_LENGTH").
			With("requested_bytes", n).
			Errorf("token length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("VAULT_RANDOM_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", n).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// Compile-time interface check.
var _ Hasher = (*Vault)(nil)
