package model

import (
	"encoding/json"
	"time"
)

const (
	// CodeKeyPrefix separates code records from license records.
	CodeKeyPrefix = "CODE:"
	// RechargeCodeType is the type tag written on every issued code.
	RechargeCodeType = "recharge_code"
)

// RedemptionCode is stored under CodeKeyPrefix + code.
type RedemptionCode struct {
	Type       string     `json:"type"`
	Value      Seconds    `json:"value"`
	Used       bool       `json:"used"`
	RedeemedBy string     `json:"usedBy,omitempty"`
	RedeemedAt *time.Time `json:"usedAt,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`

	extra map[string]json.RawMessage
}

var codeFields = []string{"type", "value", "used", "usedBy", "usedAt", "createdAt"}

func CodeKey(code string) string {
	return CodeKeyPrefix + code
}

func (c *RedemptionCode) UnmarshalJSON(data []byte) error {
	type plain RedemptionCode
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, codeFields)
	if err != nil {
		return err
	}
	*c = RedemptionCode(p)
	c.extra = extra
	return nil
}

func (c RedemptionCode) MarshalJSON() ([]byte, error) {
	type plain RedemptionCode
	return mergeFields(plain(c), c.extra)
}
