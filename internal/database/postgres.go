package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore is the kv_entries table on a postgres server.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with dsn and ensures the kv_entries table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *PostgresStore) GetVersioned(ctx context.Context, key string) (Entry, error) {
	var (
		value   string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM kv_entries WHERE key = $1`, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, storeErr("get", key, err)
	}
	return Entry{Value: []byte(value), Version: version}, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			version = kv_entries.version + 1,
			updated_at = NOW()`, key, string(value))
	if err != nil {
		return storeErr("put", key, err)
	}
	return nil
}

func (s *PostgresStore) PutIfVersion(ctx context.Context, key string, value []byte, version int64) error {
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO kv_entries (key, value, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (key) DO NOTHING`, key, string(value))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE kv_entries SET value = $2, version = version + 1, updated_at = NOW()
			WHERE key = $1 AND version = $3`, key, string(value), version)
	}
	if err != nil {
		return storeErr("put", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("put", key, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
