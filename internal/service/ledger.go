package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"speakout-gateway/internal/logging"
	"speakout-gateway/internal/model"

	"github.com/rs/zerolog/log"
)

const maxCodeLength = 128

type VerifyResult struct {
	Tier    string
	Balance int64
}

type ReportResult struct {
	// Applied is false for reports that were short-circuited without a write.
	Applied   bool
	Remaining int64
}

type RedeemResult struct {
	Code       string
	Added      int64
	NewBalance int64
	RedeemedAt time.Time
}

// LedgerService runs verify, usage reports and redemptions. Every call is a
// short sequence of single-key reads and writes; nothing is cached between
// calls.
type LedgerService struct {
	licenses *LicenseManager
	codes    *CodeManager
	now      func() time.Time
}

func NewLedgerService(licenses *LicenseManager, codes *CodeManager) *LedgerService {
	return &LedgerService{licenses: licenses, codes: codes, now: time.Now}
}

func (s *LedgerService) Verify(ctx context.Context, key string) (*VerifyResult, error) {
	rec, err := s.licenses.Fetch(ctx, key)
	if err != nil {
		return nil, licenseErr(err)
	}
	if rec.Expired(s.now()) {
		return nil, ErrLicenseExpired
	}

	balance := model.UncappedBalance
	if rec.Balance != nil {
		balance = rec.CurrentBalance()
	}
	return &VerifyResult{Tier: rec.Type, Balance: balance}, nil
}

// ReportUsage debits elapsed seconds, clamping the balance at zero.
// Non-positive reports succeed without touching the store.
func (s *LedgerService) ReportUsage(ctx context.Context, key string, elapsed int64) (*ReportResult, error) {
	if elapsed <= 0 {
		return &ReportResult{}, nil
	}

	rec, err := s.licenses.ApplyDelta(ctx, key, -elapsed)
	if err != nil {
		return nil, licenseErr(err)
	}
	return &ReportResult{Applied: true, Remaining: rec.CurrentBalance()}, nil
}

// Redeem consumes code and credits its value to key. The code is marked used
// before the balance is credited: if the credit fails the code stays burnt
// and the customer is under-credited, never the other way around.
func (s *LedgerService) Redeem(ctx context.Context, key, code string) (*RedeemResult, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}

	existing, err := s.codes.Fetch(ctx, code)
	if err != nil {
		return nil, codeErr(err)
	}
	if existing.Used {
		return nil, ErrAlreadyUsed
	}

	consumed, err := s.codes.MarkUsed(ctx, code, key)
	if err != nil {
		return nil, codeErr(err)
	}

	// ApplyDelta re-reads the license, a missing record means the key is bogus
	rec, err := s.licenses.ApplyDelta(ctx, key, int64(consumed.Value))
	if err != nil {
		log.Error().Err(err).
			Str("code", code).
			Str("license", logging.MaskKey(key)).
			Int64("value", int64(consumed.Value)).
			Msg("redemption code consumed but balance was not credited")
		return nil, licenseErr(err)
	}

	return &RedeemResult{
		Code:       code,
		Added:      int64(consumed.Value),
		NewBalance: rec.CurrentBalance(),
		RedeemedAt: *consumed.RedeemedAt,
	}, nil
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return invalid("code", "missing")
	}
	if len(code) > maxCodeLength {
		return invalid("code", "too long")
	}
	if strings.IndexFunc(code, unicode.IsControl) >= 0 {
		return invalid("code", "contains control characters")
	}
	return nil
}

func licenseErr(err error) error {
	if errors.Is(err, ErrLicenseNotFound) {
		return ErrUnauthenticated
	}
	return err
}

func codeErr(err error) error {
	if errors.Is(err, ErrCodeNotFound) {
		return ErrInvalidCode
	}
	return err
}
