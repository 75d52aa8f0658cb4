package main

import (
	"fmt"
	"time"

	"speakout-gateway/internal/config"
	"speakout-gateway/internal/model"
	"speakout-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func seedLicenseCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-license",
		Usage: "Create or overwrite a license record",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "License key", Required: true},
			&cli.StringFlag{Name: "type", Usage: "License tier", Value: "pro"},
			&cli.Int64Flag{Name: "balance", Usage: "Balance in seconds; omit for an uncapped license"},
			&cli.StringFlag{Name: "expiry", Usage: "Expiry as RFC3339, e.g. 2027-01-01T00:00:00Z"},
		},
		Action: runSeedLicense,
	}
}

func runSeedLicense(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rec := &model.LicenseRecord{Type: c.String("type")}
	if c.IsSet("balance") {
		rec.SetBalance(c.Int64("balance"))
	}
	if v := c.String("expiry"); v != "" {
		expiry, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid --expiry: %w", err)
		}
		expiry = expiry.UTC()
		rec.Expiry = &expiry
	}

	svc, err := openServices(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	key := c.String("key")
	if err := svc.licenses.Provision(c.Context, key, rec); err != nil {
		return fmt.Errorf("failed to seed license: %w", err)
	}

	fmt.Printf("Seeded license %s (type=%s)\n", key, rec.Type)
	return nil
}

func generateCodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-codes",
		Usage: "Issue redemption codes directly against the store",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "amount", Usage: "Seconds credited per code", Required: true},
			&cli.IntFlag{Name: "count", Usage: "Number of codes (1-100)", Value: 1},
			&cli.StringFlag{Name: "prefix", Usage: "Code prefix, e.g. TIME-10H", Required: true},
		},
		Action: runGenerateCodes,
	}
}

func runGenerateCodes(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := openServices(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	exporter, err := openExporter(c.Context, cfg)
	if err != nil {
		return err
	}

	// an operator with store access needs no admin secret, a one-off token
	// stands in for it
	token := uuid.NewString()
	issuance := service.NewIssuanceService(svc.codes, service.NewAdminSecret(token))

	issued, err := issuance.GenerateCodes(c.Context, token, service.GenerateRequest{
		Amount: c.Int64("amount"),
		Count:  c.Int("count"),
		Prefix: c.String("prefix"),
	})
	if err != nil {
		return fmt.Errorf("failed to generate codes: %w", err)
	}

	if exporter != nil {
		if err := exporter.ExportIssued(c.Context, issued); err != nil {
			fmt.Printf("Warning: sheet export failed: %s\n", err)
		}
	}

	for _, code := range issued {
		fmt.Println(code.Code)
	}
	return nil
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path",
				Value:   "speakout.toml",
			},
		},
		Action: runInitConfig,
	}
}

func runInitConfig(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}
