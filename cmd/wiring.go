package main

import (
	"context"
	"fmt"

	"speakout-gateway/internal/config"
	"speakout-gateway/internal/database"
	"speakout-gateway/internal/logging"
	"speakout-gateway/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

type services struct {
	store    database.VersionedStore
	licenses *service.LicenseManager
	codes    *service.CodeManager
	ledger   *service.LedgerService
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

// openServices opens the configured store and builds the managers on top
// of it. The caller closes svc.store.
func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	store, err := database.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	opts := service.StoreOptions{
		ConditionalWrites: cfg.Store.ConditionalWrites,
		CASAttempts:       cfg.Store.CASAttempts,
	}
	licenses := service.NewLicenseManager(store, opts)
	codes := service.NewCodeManager(store, opts)

	log.Info().
		Str("driver", cfg.Store.Driver).
		Bool("conditional_writes", cfg.Store.ConditionalWrites).
		Msg("store opened")

	return &services{
		store:    store,
		licenses: licenses,
		codes:    codes,
		ledger:   service.NewLedgerService(licenses, codes),
	}, nil
}

// openExporter returns nil when sheet export is disabled.
func openExporter(ctx context.Context, cfg *config.Config) (service.CodeExporter, error) {
	sheetSync, err := service.NewSheetSyncService(ctx, cfg.Sheets.Enabled, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, cfg.Sheets.FingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init sheet sync: %w", err)
	}
	if sheetSync == nil {
		return nil, nil
	}
	log.Info().Str("sheet", cfg.Sheets.SheetName).Msg("code export to google sheets enabled")
	return sheetSync, nil
}
