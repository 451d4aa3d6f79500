// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import "github.com/google/uuid"

// newID mints a fresh identifier for generator steps. Never reused.
func newID() string {
	return uuid.NewString()
}
