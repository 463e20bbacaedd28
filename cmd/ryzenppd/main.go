package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/anhol/ryzenppd/internal/acpi"
	"codeberg.org/anhol/ryzenppd/internal/config"
	"codeberg.org/anhol/ryzenppd/internal/daemon"
	"codeberg.org/anhol/ryzenppd/internal/errors"
	"codeberg.org/anhol/ryzenppd/internal/logger"
	"codeberg.org/anhol/ryzenppd/internal/pid"
	"codeberg.org/anhol/ryzenppd/internal/power"
	"codeberg.org/anhol/ryzenppd/internal/ryzenadj"
	"codeberg.org/anhol/ryzenppd/internal/telemetry"
	"codeberg.org/anhol/ryzenppd/internal/upower"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	errFactory := errors.New()

	if os.Geteuid() != 0 {
		logger.FatalWithCode(errFactory.New(errors.ErrNotRoot)).Send()
	}

	if err := pid.Write(); err != nil {
		logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Send()
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	// A configured DYTC method without the acpi_call module cannot work;
	// refuse to start rather than silently dropping platform mode writes.
	if cfg.DYTC.Method != "" {
		if err := acpi.CheckSupported(acpi.DefaultCallPath); err != nil {
			logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Send()
		}
	}

	adj, err := ryzenadj.Open(cfg.RyzenAdj.Limits)
	if err != nil {
		logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Send()
	}

	var collector telemetry.Collector
	if cfg.Telemetry {
		collector, err = telemetry.NewService(telemetry.Config{DBPath: cfg.Database})
		if err != nil {
			logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Send()
		}
		defer func() {
			if err := collector.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close telemetry")
			}
		}()
	}

	platform := acpi.NewWriter(cfg.DYTC.Method, acpi.DefaultCallPath)
	source := power.Detect(power.DefaultSupplyGlob)
	logger.Info().Msgf("Detected power source: %s", source)

	controller := daemon.New(cfg, adj, platform, collector, source)

	router, err := upower.NewRouter(controller)
	if err != nil {
		adj.Close()
		logger.FatalWithCode(errFactory.Wrap(errors.ErrInitApp, err)).Send()
	}
	router.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	// Fail fast: a dead control loop would leave stale limits applied
	// indefinitely, so any loop error terminates the process.
	err = controller.Run(ctx)

	cancel()
	router.Close()
	adj.Close()

	if err != nil {
		logger.FatalWithCode(errFactory.Wrap(errors.ErrControlLoop, err)).Send()
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
