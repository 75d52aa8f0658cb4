package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"speakout-gateway/internal/logging"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// CodeExporter receives issuance and redemption events after the ledger has
// committed them. Export failures never affect the ledger.
type CodeExporter interface {
	ExportIssued(ctx context.Context, codes []IssuedCode) error
	ExportRedeemed(ctx context.Context, redeemer string, res *RedeemResult) error
}

// SheetSyncService mirrors redemption codes into a Google Sheet, one row per
// code: fingerprint, masked code, value, status, redeemed by, redeemed at,
// created at. Codes are bearer secrets, the raw value never leaves the
// gateway. Rows are keyed by an HMAC of the code so the sheet cannot be used
// to brute-force the short suffix.
type SheetSyncService struct {
	service        *sheets.Service
	spreadsheetID  string
	sheetName      string
	fingerprintKey []byte
}

// NewSheetSyncService returns nil when sync is disabled.
func NewSheetSyncService(ctx context.Context, enableSync bool, credentialPath, spreadsheetID, sheetName, fingerprintKey string) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("load sheets credentials: %w", err)
	}

	return NewSheetSyncServiceWithOptions(ctx, spreadsheetID, sheetName, fingerprintKey, option.WithCredentials(creds))
}

func NewSheetSyncServiceWithOptions(ctx context.Context, spreadsheetID, sheetName, fingerprintKey string, opts ...option.ClientOption) (*SheetSyncService, error) {
	if fingerprintKey == "" {
		return nil, errors.New("sheet sync: fingerprint key is required")
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SheetSyncService{
		service:        srv,
		spreadsheetID:  spreadsheetID,
		sheetName:      sheetName,
		fingerprintKey: []byte(fingerprintKey),
	}, nil
}

// fingerprint identifies code in the sheet without revealing it.
func (s *SheetSyncService) fingerprint(code string) string {
	mac := hmac.New(sha256.New, s.fingerprintKey)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// maskCode keeps the prefix so rows stay readable: TIME-10H-AB12CD34 becomes
// TIME-10H-********.
func maskCode(code string) string {
	i := strings.LastIndexByte(code, '-')
	if i < 0 {
		return "********"
	}
	return code[:i+1] + "********"
}

func (s *SheetSyncService) ExportIssued(ctx context.Context, codes []IssuedCode) error {
	if s == nil || len(codes) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(codes))
	for _, c := range codes {
		values = append(values, []interface{}{
			s.fingerprint(c.Code),
			maskCode(c.Code),
			strconv.FormatInt(c.Value, 10),
			"unused",
			"",
			"",
			c.CreatedAt.Format(time.RFC3339),
		})
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetName+"!A2:G",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append issued codes: %w", err)
	}

	log.Debug().Int("count", len(codes)).Str("sheet", s.sheetName).Msg("issued codes exported")
	return nil
}

// ExportRedeemed updates the row of the redeemed code, appending one if the
// code was issued before export was enabled.
func (s *SheetSyncService) ExportRedeemed(ctx context.Context, redeemer string, res *RedeemResult) error {
	if s == nil || res == nil {
		return nil
	}

	// 先检查Sheet中是否已存在该Code
	id := s.fingerprint(res.Code)
	keyResp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read code column: %w", err)
	}

	rowIndex := 0
	for i, row := range keyResp.Values {
		if len(row) > 0 && row[0] == id {
			rowIndex = i + 2 // +2因为A2开始且数组从0开始
			break
		}
	}

	if rowIndex > 0 {
		// status, redeemed by and redeemed at only, keep value and created at
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			fmt.Sprintf("%s!D%d:F%d", s.sheetName, rowIndex, rowIndex),
			&sheets.ValueRange{Values: [][]interface{}{{
				"used",
				logging.MaskKey(redeemer),
				res.RedeemedAt.Format(time.RFC3339),
			}}},
		).ValueInputOption("RAW").Context(ctx).Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:G",
			&sheets.ValueRange{Values: [][]interface{}{{
				id,
				maskCode(res.Code),
				strconv.FormatInt(res.Added, 10),
				"used",
				logging.MaskKey(redeemer),
				res.RedeemedAt.Format(time.RFC3339),
				"",
			}}},
		).ValueInputOption("RAW").Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("export redemption of %s: %w", maskCode(res.Code), err)
	}
	return nil
}
