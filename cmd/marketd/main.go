package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arkade-os/marketd/internal/config"
	"github.com/arkade-os/marketd/internal/core/application"
	"github.com/arkade-os/marketd/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var Version string

var (
	cfg            *config.Config
	shutdownMetric func(context.Context) error
)

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "marketd"
	app.Usage = "prediction market settlement engine"
	app.Flags = config.Flags
	app.Commands = append(
		app.Commands,
		&authorityCommand,
		&assetCommand,
		&holdingCommand,
		&marketCommand,
		&watchCommand,
	)
	app.Before = func(c *cli.Context) error {
		if err := applyConfigFile(c); err != nil {
			return err
		}

		var err error
		cfg, err = config.LoadConfig(c)
		if err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.SetLevel(log.Level(cfg.LogLevel))
		log.Debugf("loaded config:\n%s", cfg)

		if len(cfg.OtelCollectorEndpoint) > 0 {
			shutdownMetric, err = telemetry.InitOtelSDK(
				c.Context, cfg.OtelCollectorEndpoint, cfg.OtelPushIntervalDuration(),
			)
			if err != nil {
				return fmt.Errorf("failed to init otel sdk: %s", err)
			}
		}
		return nil
	}
	app.After = func(_ *cli.Context) error {
		if shutdownMetric == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetric(ctx); err != nil {
			log.WithError(err).Warn("failed to flush metrics")
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

// getServices validates the config, which opens the store, and returns the services bound to
// it. The caller must stop the app service once done.
func getServices() (application.Service, application.LedgerService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %s", err)
	}
	svc, err := cfg.AppService()
	if err != nil {
		return nil, nil, err
	}
	ledgerSvc, err := cfg.LedgerService()
	if err != nil {
		svc.Stop()
		return nil, nil, err
	}
	return svc, ledgerSvc, nil
}
