// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a lookup matches no account, or more than one.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by repositories when a write violates a unique key.
var ErrConflict = errors.New("conflict")

// validationCodes are the oops codes of input validation failures.
var validationCodes = map[string]struct{}{
	"ACCOUNT_INVALID_USERNAME": {},
	"ACCOUNT_INVALID_EMAIL":    {},
	"ACCOUNT_INVALID_PASSWORD": {},
}

// IsValidationError reports whether err rejects caller input rather than
// signalling a store fault.
func IsValidationError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	code, ok := oopsErr.Code().(string)
	if !ok {
		return false
	}
	_, found := validationCodes[code]
	return found
}
