package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"speakout-gateway/internal/database"
	"speakout-gateway/internal/middleware"
	"speakout-gateway/internal/model"
	"speakout-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

const testAdminSecret = "s3cret"

type exportEvent struct {
	kind     string
	redeemer string
	codes    []string
}

// recordingExporter forwards every export call to events.
type recordingExporter struct {
	events chan exportEvent
}

func (e *recordingExporter) ExportIssued(_ context.Context, codes []service.IssuedCode) error {
	ev := exportEvent{kind: "issued"}
	for _, c := range codes {
		ev.codes = append(ev.codes, c.Code)
	}
	e.events <- ev
	return nil
}

func (e *recordingExporter) ExportRedeemed(_ context.Context, redeemer string, res *service.RedeemResult) error {
	e.events <- exportEvent{kind: "redeemed", redeemer: redeemer, codes: []string{res.Code}}
	return nil
}

// brokenStore fails every read as an unreachable backend would.
type brokenStore struct {
	database.VersionedStore
}

var errBackendDown = errors.New("connection refused")

func (brokenStore) Get(_ context.Context, key string) ([]byte, error) {
	return nil, &database.StoreError{Op: "get", Key: key, Err: errBackendDown}
}

func (brokenStore) GetVersioned(_ context.Context, key string) (database.Entry, error) {
	return database.Entry{}, &database.StoreError{Op: "get", Key: key, Err: errBackendDown}
}

func (brokenStore) Ping(context.Context) error { return errBackendDown }

type testEnv struct {
	app      *fiber.App
	licenses *service.LicenseManager
	codes    *service.CodeManager
	exports  chan exportEvent
}

func newTestEnv(t *testing.T, store database.VersionedStore, limiter *middleware.RateLimiter) *testEnv {
	t.Helper()

	opts := service.StoreOptions{ConditionalWrites: true}
	licenses := service.NewLicenseManager(store, opts)
	codes := service.NewCodeManager(store, opts)
	ledger := service.NewLedgerService(licenses, codes)
	issuance := service.NewIssuanceService(codes, service.NewAdminSecret(testAdminSecret))
	exporter := &recordingExporter{events: make(chan exportEvent, 16)}

	h := New(ledger, issuance, exporter, store)
	app := NewApp(h, AppConfig{BodyLimit: 64 * 1024, RateLimiter: limiter})

	return &testEnv{app: app, licenses: licenses, codes: codes, exports: exporter.events}
}

func (e *testEnv) seedLicense(t *testing.T, key string, rec *model.LicenseRecord) {
	t.Helper()
	require.NoError(t, e.licenses.Provision(context.Background(), key, rec))
}

func (e *testEnv) seedCode(t *testing.T, code string, value int64) {
	t.Helper()
	_, err := e.codes.Create(context.Background(), code, value)
	require.NoError(t, err)
}

func (e *testEnv) waitExport(t *testing.T) exportEvent {
	t.Helper()
	select {
	case ev := <-e.exports:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no export received")
		return exportEvent{}
	}
}

func licenseWithBalance(balance int64) *model.LicenseRecord {
	rec := &model.LicenseRecord{Type: "pro"}
	rec.SetBalance(balance)
	return rec
}

// call sends a request and decodes the JSON response body.
func call(t *testing.T, app *fiber.App, method, path string, headers map[string]string, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func admin(secret string) map[string]string {
	return map[string]string{middleware.AdminKeyHeader: secret}
}
