package database

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a normal negative result, not a failure.
	ErrNotFound = errors.New("database: key not found")
	// ErrConflict is returned by PutIfVersion when the stored version moved.
	ErrConflict = errors.New("database: version conflict")
)

// Store is a get/put key-value store of opaque JSON values.
// There is no atomicity across keys and the last write to a key wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Entry is a stored value together with its write version.
// Version 0 means the key does not exist.
type Entry struct {
	Value   []byte
	Version int64
}

// VersionedStore is implemented by backends that can do conditional writes.
type VersionedStore interface {
	Store
	GetVersioned(ctx context.Context, key string) (Entry, error)
	// PutIfVersion writes value only when the stored version equals version.
	// A version of 0 creates the key only when it is absent.
	PutIfVersion(ctx context.Context, key string, value []byte, version int64) error
}

// StoreError wraps an underlying backend failure so it can be told apart
// from ErrNotFound and ErrConflict.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("database: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, key string, err error) error {
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsStoreFailure reports whether err came from the backend itself.
func IsStoreFailure(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
