package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"speakout-gateway/internal/handler"
	"speakout-gateway/internal/middleware"
	"speakout-gateway/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP gateway",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	exporter, err := openExporter(ctx, cfg)
	if err != nil {
		return err
	}

	secret := service.NewAdminSecret(cfg.Admin.Secret)
	if !secret.Enabled() {
		log.Warn().Msg("admin.secret is empty, /admin/generate will reject every request")
	}
	issuance := service.NewIssuanceService(svc.codes, secret)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	app := handler.NewApp(
		handler.New(svc.ledger, issuance, exporter, svc.store),
		handler.AppConfig{
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			BodyLimit:    cfg.Server.BodyLimit,
			CORSOrigins:  cfg.Server.CORSOrigins,
			RateLimiter:  limiter,
		},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Server.Addr)
	}()
	log.Info().Str("addr", cfg.Server.Addr).Str("version", version).Msg("gateway listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("gateway stopped gracefully")
	return nil
}
