// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import "time"

// Record is a single content-addressed row keyed by (Key, ID).
//
// Three lifecycle states map onto the nullability of Payload/Meta:
//   - Absent: no row exists.
//   - Claimed: row exists, Payload == nil && Meta == nil.
//   - Committed: row exists, Payload != nil && Meta != nil.
//
// A row is never observed with exactly one of Payload/Meta set; Commit
// writes both in a single transaction.
type Record struct {
	Key       string `gorm:"column:key;primaryKey"`
	ID        string `gorm:"column:id;primaryKey"`
	Payload   *string `gorm:"column:payload"`
	Meta      *string `gorm:"column:meta"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the GORM table name regardless of struct renames.
func (Record) TableName() string {
	return "data"
}

// Committed reports whether the record has passed Commit.
func (r Record) Committed() bool {
	return r.Payload != nil && r.Meta != nil
}
