package database

import (
	"context"
	"fmt"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	Redis       RedisOptions
}

// Open returns the backend selected by opts.Driver.
func Open(ctx context.Context, opts Options) (VersionedStore, error) {
	var (
		store VersionedStore
		err   error
	)
	switch opts.Driver {
	case DriverSQLite:
		store, err = OpenSQLite(opts.SQLitePath)
	case DriverPostgres:
		store, err = OpenPostgres(ctx, opts.PostgresDSN)
	case DriverRedis:
		store, err = OpenRedis(ctx, opts.Redis)
	case DriverMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
