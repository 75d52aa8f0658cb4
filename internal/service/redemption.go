package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"speakout-gateway/internal/database"
	"speakout-gateway/internal/model"
)

// CodeManager owns the redemption code records under the CODE: prefix.
type CodeManager struct {
	records records
	now     func() time.Time
}

func NewCodeManager(store database.Store, opts StoreOptions) *CodeManager {
	return &CodeManager{records: newRecords(store, opts), now: time.Now}
}

func (m *CodeManager) Fetch(ctx context.Context, code string) (*model.RedemptionCode, error) {
	raw, err := m.records.get(ctx, model.CodeKey(code))
	if err != nil {
		return nil, codeStoreErr(err)
	}
	return decodeCode(raw)
}

// MarkUsed consumes code on behalf of redeemer and returns the consumed record.
// In plain mode two concurrent calls can both see used=false; with
// conditional writes only one of them wins and the other gets ErrAlreadyUsed.
func (m *CodeManager) MarkUsed(ctx context.Context, code, redeemer string) (*model.RedemptionCode, error) {
	var written *model.RedemptionCode
	err := m.records.update(ctx, model.CodeKey(code), func(current []byte) ([]byte, error) {
		rec, err := decodeCode(current)
		if err != nil {
			return nil, err
		}
		if rec.Used {
			return nil, ErrAlreadyUsed
		}
		at := m.now().UTC()
		rec.Used = true
		rec.RedeemedBy = redeemer
		rec.RedeemedAt = &at
		written = rec
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, codeStoreErr(err)
	}
	return written, nil
}

// Create stores a fresh unused code worth value seconds.
func (m *CodeManager) Create(ctx context.Context, code string, value int64) (*model.RedemptionCode, error) {
	at := m.now().UTC()
	rec := &model.RedemptionCode{
		Type:      model.RechargeCodeType,
		Value:     model.Seconds(value),
		Used:      false,
		CreatedAt: &at,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := m.records.create(ctx, model.CodeKey(code), raw); err != nil {
		return nil, codeStoreErr(err)
	}
	return rec, nil
}

func decodeCode(raw []byte) (*model.RedemptionCode, error) {
	var rec model.RedemptionCode
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, storeFailure(fmt.Errorf("decode redemption code: %w", err))
	}
	return &rec, nil
}

func codeStoreErr(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrCodeNotFound
	case database.IsStoreFailure(err):
		return storeFailure(err)
	}
	return err
}
