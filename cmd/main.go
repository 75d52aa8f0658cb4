package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

const version = "0.3.0"

func main() {
	app := &cli.App{
		Name:    "speakout-gateway",
		Usage:   "License verification, usage metering and recharge codes for SpeakOut clients",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: search ./speakout.toml, ./data/speakout.toml, ~/.speakout.toml)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			seedLicenseCommand(),
			generateCodesCommand(),
			initConfigCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
