// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package account

import "strconv"

// Selector names one unique key of an account. It is implemented by ByID,
// ByUsername and ByEmail only.
type Selector interface {
	isSelector()
	String() string
}

// ByID selects the account with the given id.
type ByID int64

// ByUsername selects the account with the given username (case-insensitive).
type ByUsername string

// ByEmail selects the account with the given email (case-insensitive).
type ByEmail string

func (ByID) isSelector()       {}
func (ByUsername) isSelector() {}
func (ByEmail) isSelector()    {}

func (s ByID) String() string       { return "id=" + strconv.FormatInt(int64(s), 10) }
func (s ByUsername) String() string { return "username=" + string(s) }
func (s ByEmail) String() string    { return "email=" + string(s) }
