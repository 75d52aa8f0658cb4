package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	MaxCodesPerRequest = 100
	maxCreateAttempts  = 3
)

type GenerateRequest struct {
	Amount int64
	Count  int
	Prefix string
}

// IssuedCode is a freshly created code. Codes are bearer secrets and are
// only ever shown in the issuance response.
type IssuedCode struct {
	Code      string
	Value     int64
	CreatedAt time.Time
}

// PartialIssueError reports a batch that failed after Issued codes had
// already been stored.
type PartialIssueError struct {
	Issued    int
	Requested int
	Err       error
}

func (e *PartialIssueError) Error() string {
	return fmt.Sprintf("service: issued %d of %d codes: %v", e.Issued, e.Requested, e.Err)
}

func (e *PartialIssueError) Unwrap() error { return e.Err }

type IssuanceService struct {
	codes  *CodeManager
	secret AdminSecret
	random io.Reader
}

func NewIssuanceService(codes *CodeManager, secret AdminSecret) *IssuanceService {
	return &IssuanceService{codes: codes, secret: secret, random: rand.Reader}
}

// Authorize checks the presented admin secret.
func (s *IssuanceService) Authorize(presentedSecret string) error {
	if !s.secret.Matches(presentedSecret) {
		return ErrUnauthorized
	}
	return nil
}

// GenerateCodes creates req.Count codes worth req.Amount seconds each.
func (s *IssuanceService) GenerateCodes(ctx context.Context, presentedSecret string, req GenerateRequest) ([]IssuedCode, error) {
	if err := s.Authorize(presentedSecret); err != nil {
		return nil, err
	}
	if err := validateGenerate(req); err != nil {
		return nil, err
	}

	issued := make([]IssuedCode, 0, req.Count)
	seen := make(map[string]struct{}, req.Count)
	for len(issued) < req.Count {
		code, err := s.createOne(ctx, req, seen)
		if err != nil {
			// codes written so far stay in the store unused and are never
			// returned; their suffixes cannot be guessed, so they are inert
			log.Error().Err(err).
				Int("issued", len(issued)).
				Int("requested", req.Count).
				Str("prefix", req.Prefix).
				Msg("code issuance stopped early")
			return nil, &PartialIssueError{Issued: len(issued), Requested: req.Count, Err: err}
		}
		seen[code.Code] = struct{}{}
		issued = append(issued, code)
	}

	log.Info().
		Int("count", len(issued)).
		Int64("amount", req.Amount).
		Str("prefix", req.Prefix).
		Msg("redemption codes issued")
	return issued, nil
}

func (s *IssuanceService) createOne(ctx context.Context, req GenerateRequest, seen map[string]struct{}) (IssuedCode, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		suffix, err := randomSuffix(s.random)
		if err != nil {
			return IssuedCode{}, err
		}
		code := req.Prefix + "-" + suffix
		if _, dup := seen[code]; dup {
			continue
		}

		rec, err := s.codes.Create(ctx, code, req.Amount)
		if errors.Is(err, ErrCodeExists) {
			continue
		}
		if err != nil {
			return IssuedCode{}, err
		}
		return IssuedCode{Code: code, Value: req.Amount, CreatedAt: *rec.CreatedAt}, nil
	}
	return IssuedCode{}, ErrCodeExists
}

func validateGenerate(req GenerateRequest) error {
	if req.Amount <= 0 {
		return invalid("amount", "must be a positive number of seconds")
	}
	if req.Count < 1 || req.Count > MaxCodesPerRequest {
		return invalid("count", "must be between 1 and 100")
	}
	if strings.TrimSpace(req.Prefix) == "" {
		return invalid("prefix", "must not be empty")
	}
	if len(req.Prefix) > maxCodeLength-suffixLength-1 {
		return invalid("prefix", "too long")
	}
	if strings.ContainsFunc(req.Prefix, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return invalid("prefix", "contains control characters")
	}
	return nil
}
