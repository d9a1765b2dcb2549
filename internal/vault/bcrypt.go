// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package vault

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// bcryptInput maps every secret onto bcrypt's 72-byte input domain as the
// base64 SHA-256 digest of the secret. Applying it to all secrets, not only
// long ones, keeps the mapping free of aliases: no secret's input equals
// another secret taken verbatim.
func bcryptInput(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func hashBcrypt(secret string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword(bcryptInput(secret), cost)
	if err != nil {
		return "", oops.Code("VAULT_HASH_FAILED").
			With("algorithm", AlgorithmBcrypt).
			Wrap(err)
	}
	return string(h), nil
}

func verifyBcrypt(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(secret)) == nil
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}
