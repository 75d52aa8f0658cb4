package model

import (
	"encoding/json"
	"time"
)

// UncappedBalance is reported by verify for records without a balance field.
const UncappedBalance int64 = 999999

// LicenseRecord is stored under the raw license key.
type LicenseRecord struct {
	Type    string     `json:"type"`
	Expiry  *time.Time `json:"expiry,omitempty"`
	Balance *Seconds   `json:"balance,omitempty"`

	// fields written by provisioning that the ledger does not know about
	extra map[string]json.RawMessage
}

var licenseFields = []string{"type", "expiry", "balance"}

// Expired reports whether the record carries an expiry that is before now.
func (r *LicenseRecord) Expired(now time.Time) bool {
	return r.Expiry != nil && r.Expiry.Before(now)
}

// CurrentBalance is the stored balance, with an absent field counting as zero.
// Negative values written out of band also read as zero.
func (r *LicenseRecord) CurrentBalance() int64 {
	if r.Balance == nil || *r.Balance < 0 {
		return 0
	}
	return int64(*r.Balance)
}

func (r *LicenseRecord) SetBalance(v int64) {
	s := Seconds(v)
	r.Balance = &s
}

func (r *LicenseRecord) UnmarshalJSON(data []byte) error {
	type plain LicenseRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, licenseFields)
	if err != nil {
		return err
	}
	*r = LicenseRecord(p)
	r.extra = extra
	return nil
}

func (r LicenseRecord) MarshalJSON() ([]byte, error) {
	type plain LicenseRecord
	return mergeFields(plain(r), r.extra)
}

func unknownFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeFields(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return base, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(base, &all); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := all[k]; !ok {
			all[k] = raw
		}
	}
	return json.Marshal(all)
}
