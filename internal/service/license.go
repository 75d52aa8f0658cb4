package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"speakout-gateway/internal/database"
	"speakout-gateway/internal/model"
)

// LicenseManager owns the license records, stored under the raw key.
type LicenseManager struct {
	records records
}

func NewLicenseManager(store database.Store, opts StoreOptions) *LicenseManager {
	return &LicenseManager{records: newRecords(store, opts)}
}

func (m *LicenseManager) Fetch(ctx context.Context, key string) (*model.LicenseRecord, error) {
	raw, err := m.records.get(ctx, key)
	if err != nil {
		return nil, licenseStoreErr(err)
	}
	return decodeLicense(raw)
}

// ApplyDelta adds delta seconds to the balance, never going below zero, and
// returns the record as written.
func (m *LicenseManager) ApplyDelta(ctx context.Context, key string, delta int64) (*model.LicenseRecord, error) {
	var written *model.LicenseRecord
	err := m.records.update(ctx, key, func(current []byte) ([]byte, error) {
		rec, err := decodeLicense(current)
		if err != nil {
			return nil, err
		}
		rec.SetBalance(clampedAdd(rec.CurrentBalance(), delta))
		written = rec
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, licenseStoreErr(err)
	}
	return written, nil
}

// Provision writes rec as is. Used for seeding, the ledger never creates licenses.
func (m *LicenseManager) Provision(ctx context.Context, key string, rec *model.LicenseRecord) error {
	if key == "" {
		return invalid("license key", "must not be empty")
	}
	if rec.Balance != nil && *rec.Balance < 0 {
		return invalid("balance", "must not be negative")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := m.records.put(ctx, key, raw); err != nil {
		return storeFailure(err)
	}
	return nil
}

func decodeLicense(raw []byte) (*model.LicenseRecord, error) {
	var rec model.LicenseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, storeFailure(fmt.Errorf("decode license record: %w", err))
	}
	return &rec, nil
}

func licenseStoreErr(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrLicenseNotFound
	case database.IsStoreFailure(err):
		return storeFailure(err)
	}
	return err
}

// clampedAdd returns max(0, balance+delta) without overflowing. A negative
// balance is treated as zero.
func clampedAdd(balance, delta int64) int64 {
	balance = max(balance, 0)
	switch {
	case delta > 0 && balance > math.MaxInt64-delta:
		return math.MaxInt64
	case delta < 0 && balance+delta < 0:
		return 0
	}
	return balance + delta
}
