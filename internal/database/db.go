package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speakout-gateway/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore keeps every record as a row of kv_entries in a sqlite file.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the sqlite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if !strings.HasPrefix(path, "file:") {
		// 创建数据目录
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		path += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *SQLiteStore) GetVersioned(ctx context.Context, key string) (Entry, error) {
	var row model.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, storeErr("get", key, err)
	}
	return Entry{Value: []byte(row.Value), Version: row.Version}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	row := &model.KVEntry{Key: key, Value: string(value), Version: 1, UpdatedAt: now}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      row.Value,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}),
	}).Create(row).Error
	if err != nil {
		return storeErr("put", key, err)
	}
	return nil
}

func (s *SQLiteStore) PutIfVersion(ctx context.Context, key string, value []byte, version int64) error {
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)

	var result *gorm.DB
	if version == 0 {
		result = db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.KVEntry{Key: key, Value: string(value), Version: 1, UpdatedAt: now})
	} else {
		result = db.Model(&model.KVEntry{}).
			Where("key = ? AND version = ?", key, version).
			Updates(map[string]interface{}{
				"value":      string(value),
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
	}
	if result.Error != nil {
		return storeErr("put", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeErr("ping", "", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
