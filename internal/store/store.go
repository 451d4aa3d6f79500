// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/logger"
)

// Store is the content-addressed record store every Step and the
// Dispatcher operate against. Claim is the sole concurrency primitive:
// it must distinguish "already claimed by someone else" from any other
// failure so callers can treat the former as an ordinary race, not an
// error.
type Store interface {
	// Claim atomically inserts the claim sentinel row (key, id, nil, nil).
	// It reports claimed=false, err=nil when the row already exists
	// (claimed concurrently, or already committed) — that is not an error.
	Claim(ctx context.Context, key, id string) (claimed bool, err error)

	// Commit atomically replaces a claimed row's payload and meta,
	// marshaled to JSON. Both are written together or not at all.
	Commit(ctx context.Context, key, id string, payload, meta any) error

	// Abort atomically removes a claimed row, returning the key/id to
	// the Absent state so it can be claimed again.
	Abort(ctx context.Context, key, id string) error

	// Load returns the decoded payload/meta for a committed row. ok is
	// false if the row is absent or still only claimed.
	Load(ctx context.Context, key, id string, payload, meta any) (ok bool, err error)

	// Find returns every committed record under key, or under (key, id)
	// when id is non-empty.
	Find(ctx context.Context, key, id string) ([]Record, error)

	// AllKeys returns the distinct set of keys with at least one row.
	AllKeys(ctx context.Context) ([]string, error)

	// AllIDs returns the distinct set of ids present under key, for any
	// lifecycle state (used by pending_inputs to compute O, the set of
	// outputs already claimed or committed).
	AllIDs(ctx context.Context, key string) ([]string, error)

	// RecoverOrphanClaims deletes claimed-but-never-committed rows older
	// than olderThan, returning the count removed. Answers the "Open
	// question — claim recovery" in the dispatcher design: this engine
	// recovers orphans with an explicit startup scan, not automatically
	// during normal operation, so a genuinely slow in-flight claim is
	// never mistaken for an orphan mid-run.
	RecoverOrphanClaims(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}

// SQLStore is the Store implementation backed by a single SQLite file,
// one per project, opened through gorm.io/driver/sqlite.
type SQLStore struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite-backed store for a
// project, migrating the schema if needed.
func Open(cfg *config.StoreConfig, project string) (*SQLStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store data dir: %w", err)
	}

	dsn := cfg.GetDSN(project)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %q: %w", dsn, err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Claim(ctx context.Context, key, id string) (bool, error) {
	err := s.db.WithContext(ctx).Create(&Record{Key: key, ID: id}).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.GetStoreLogger().Debug().Str("key", key).Str("id", id).Msg("claim conflict")
		return false, nil
	}
	return false, fmt.Errorf("claim %s/%s: %w", key, id, err)
}

func (s *SQLStore) Commit(ctx context.Context, key, id string, payload, meta any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s/%s: %w", key, id, err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta for %s/%s: %w", key, id, err)
	}

	payloadStr := string(payloadJSON)
	metaStr := string(metaJSON)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Record{}).
			Where("key = ? AND id = ?", key, id).
			Updates(map[string]any{"payload": payloadStr, "meta": metaStr})
		if result.Error != nil {
			return fmt.Errorf("commit %s/%s: %w", key, id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("commit %s/%s: no claimed row found", key, id)
		}
		return nil
	})
}

func (s *SQLStore) Abort(ctx context.Context, key, id string) error {
	err := s.db.WithContext(ctx).
		Where("key = ? AND id = ?", key, id).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("abort %s/%s: %w", key, id, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, key, id string, payload, meta any) (bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("key = ? AND id = ?", key, id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load %s/%s: %w", key, id, err)
	}
	if !rec.Committed() {
		return false, nil
	}
	if payload != nil {
		if err := json.Unmarshal([]byte(*rec.Payload), payload); err != nil {
			return false, fmt.Errorf("unmarshal payload for %s/%s: %w", key, id, err)
		}
	}
	if meta != nil {
		if err := json.Unmarshal([]byte(*rec.Meta), meta); err != nil {
			return false, fmt.Errorf("unmarshal meta for %s/%s: %w", key, id, err)
		}
	}
	return true, nil
}

func (s *SQLStore) Find(ctx context.Context, key, id string) ([]Record, error) {
	q := s.db.WithContext(ctx).
		Where("key = ?", key).
		Where("payload IS NOT NULL AND meta IS NOT NULL")
	if id != "" {
		q = q.Where("id = ?", id)
	}
	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find key=%s id=%s: %w", key, id, err)
	}
	return recs, nil
}

func (s *SQLStore) AllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Distinct("key").
		Order("key").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("all keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) AllIDs(ctx context.Context, key string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("key = ?", key).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("all ids for %s: %w", key, err)
	}
	return ids, nil
}

func (s *SQLStore) RecoverOrphanClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan == 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Where("payload IS NULL AND meta IS NULL AND created_at < ?", cutoff).
		Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("recover orphan claims: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.GetStoreLogger().Warn().Int64("count", result.RowsAffected).Msg("recovered orphan claims")
	}
	return int(result.RowsAffected), nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dataFilePath is exposed for callers (e.g. the CLI banner) that want to
// print where the project's store file lives.
func dataFilePath(cfg *config.StoreConfig, project string) string {
	return filepath.Clean(cfg.GetDSN(project))
}

// DataFilePath returns the on-disk path of the project's store file.
func DataFilePath(cfg *config.StoreConfig, project string) string {
	return dataFilePath(cfg, project)
}
