package service

import (
	"context"
	"errors"

	"speakout-gateway/internal/database"
)

const defaultCASAttempts = 5

// StoreOptions selects the write protocol used against the store.
type StoreOptions struct {
	// ConditionalWrites turns read-then-write into compare-and-swap when the
	// backend supports versioned writes.
	ConditionalWrites bool
	CASAttempts       int
}

// records runs single-key read-modify-write cycles. Without a versioned
// store the cycle is a plain get followed by a put and the last writer wins.
type records struct {
	store     database.Store
	versioned database.VersionedStore
	attempts  int
}

func newRecords(store database.Store, opts StoreOptions) records {
	r := records{store: store, attempts: opts.CASAttempts}
	if r.attempts <= 0 {
		r.attempts = defaultCASAttempts
	}
	if vs, ok := store.(database.VersionedStore); ok && opts.ConditionalWrites {
		r.versioned = vs
	}
	return r
}

func (r records) get(ctx context.Context, key string) ([]byte, error) {
	return r.store.Get(ctx, key)
}

// update applies fn to the current value of key and writes the result back.
// An error from fn aborts the cycle without writing.
func (r records) update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if r.versioned == nil {
		current, err := r.store.Get(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return r.store.Put(ctx, key, next)
	}

	for i := 0; i < r.attempts; i++ {
		e, err := r.versioned.GetVersioned(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(e.Value)
		if err != nil {
			return err
		}
		err = r.versioned.PutIfVersion(ctx, key, next, e.Version)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		return err
	}
	return ErrContention
}

// create writes value under a key that must not exist yet. Only the
// versioned path makes the check and the write one step.
func (r records) create(ctx context.Context, key string, value []byte) error {
	if r.versioned != nil {
		err := r.versioned.PutIfVersion(ctx, key, value, 0)
		if errors.Is(err, database.ErrConflict) {
			return ErrCodeExists
		}
		return err
	}

	_, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		return ErrCodeExists
	case !errors.Is(err, database.ErrNotFound):
		return err
	}
	return r.store.Put(ctx, key, value)
}

func (r records) put(ctx context.Context, key string, value []byte) error {
	return r.store.Put(ctx, key, value)
}
