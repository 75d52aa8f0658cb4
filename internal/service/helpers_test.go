package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"speakout-gateway/internal/database"
	"speakout-gateway/internal/model"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// faultyStore fails every write to a key for which failPut returns true.
type faultyStore struct {
	database.VersionedStore
	failPut func(key string) bool
}

var errInjected = errors.New("injected write failure")

func (s *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPut != nil && s.failPut(key) {
		return &database.StoreError{Op: "put", Key: key, Err: errInjected}
	}
	return s.VersionedStore.Put(ctx, key, value)
}

func (s *faultyStore) PutIfVersion(ctx context.Context, key string, value []byte, version int64) error {
	if s.failPut != nil && s.failPut(key) {
		return &database.StoreError{Op: "put", Key: key, Err: errInjected}
	}
	return s.VersionedStore.PutIfVersion(ctx, key, value, version)
}

// plainStore hides the versioned methods so the managers fall back to
// read-then-write.
type plainStore struct {
	database.Store
}

type fixture struct {
	store    database.VersionedStore
	licenses *LicenseManager
	codes    *CodeManager
	ledger   *LedgerService
}

var writeModes = []struct {
	name        string
	conditional bool
}{
	{name: "plain", conditional: false},
	{name: "conditional", conditional: true},
}

func newFixture(t *testing.T, store database.VersionedStore, conditional bool) *fixture {
	t.Helper()

	var backend database.Store = store
	if !conditional {
		backend = plainStore{store}
	}
	opts := StoreOptions{ConditionalWrites: conditional}

	licenses := NewLicenseManager(backend, opts)
	codes := NewCodeManager(backend, opts)
	codes.now = func() time.Time { return fixedNow }
	ledger := NewLedgerService(licenses, codes)
	ledger.now = func() time.Time { return fixedNow }

	return &fixture{store: store, licenses: licenses, codes: codes, ledger: ledger}
}

func (f *fixture) seedLicense(t *testing.T, key string, balance int64) {
	t.Helper()
	rec := &model.LicenseRecord{Type: "pro"}
	rec.SetBalance(balance)
	require.NoError(t, f.licenses.Provision(context.Background(), key, rec))
}

func (f *fixture) seedCode(t *testing.T, code string, value int64) {
	t.Helper()
	_, err := f.codes.Create(context.Background(), code, value)
	require.NoError(t, err)
}
