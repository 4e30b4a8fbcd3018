package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqliteChunk keeps IN lists under SQLite's bound-variable limit.
const sqliteChunk = 500

type cacheRow struct {
	CacheKey  string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (cacheRow) TableName() string { return "cache_entries" }

// SQLite is a file-backed BulkStore, the default persistent cache
type SQLite struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database at path
func NewSQLite(path string, log *zap.Logger) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&cacheRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	log.Debug("sqlite store opened", zap.String("path", path))
	return &SQLite{db: db, logger: log}, nil
}

func (s *SQLite) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	found := make(map[string][]byte, len(keys))

	for start := 0; start < len(keys); start += sqliteChunk {
		end := min(start+sqliteChunk, len(keys))

		var rows []cacheRow
		err := s.db.WithContext(ctx).
			Where("cache_key IN ?", keys[start:end]).
			Find(&rows).Error
		if err != nil {
			return nil, WrapError(err, "select cache entries")
		}
		for _, r := range rows {
			if r.Value == nil {
				r.Value = []byte{}
			}
			found[r.CacheKey] = r.Value
		}
	}

	for i, k := range keys {
		if v, ok := found[k]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *SQLite) SetMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]cacheRow, len(entries))
	for i, e := range entries {
		v := e.Value
		if v == nil {
			v = []byte{}
		}
		rows[i] = cacheRow{CacheKey: e.Key, Value: v, UpdatedAt: now}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).CreateInBatches(rows, sqliteChunk/3).Error
	})
	if err != nil {
		return WrapError(err, "store cache entries")
	}
	return nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
