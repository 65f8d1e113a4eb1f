// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command dumpster watches one or more netfilter drop-log files, persists
// what it sees, and installs or extends nftables blocks against repeat
// offenders. Invoke it with a single argument: the path to its TOML
// configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/dumpster/internal/config"
	"grimm.is/dumpster/internal/firewall"
	"grimm.is/dumpster/internal/httpd"
	"grimm.is/dumpster/internal/logging"
	"grimm.is/dumpster/internal/logtail"
	"grimm.is/dumpster/internal/metrics"
	"grimm.is/dumpster/internal/policy"
	"grimm.is/dumpster/internal/store"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config file>\n", os.Args[0])
		os.Exit(2)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "dumpster: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, config.DefaultLoadOptions())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := uuid.New().String()
	logLevel := logging.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = logging.LevelDebug
	case "warn":
		logLevel = logging.LevelWarn
	case "error":
		logLevel = logging.LevelError
	}
	logger := logging.New(logging.Config{Level: logLevel, JSON: cfg.LogJSON, Output: os.Stderr}).With("run_id", runID)
	logging.SetDefault(logger)

	eventStore, err := store.Open(cfg.DBFile, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer eventStore.Close()

	fwController, err := firewall.NewController(logger.With("component", "firewall"))
	if err != nil {
		return fmt.Errorf("initialize firewall controller: %w", err)
	}
	if err := fwController.EnsureInitialized(); err != nil {
		return fmt.Errorf("initialize nftables objects: %w", err)
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	tailers := make([]*logtail.Tailer, 0, len(cfg.LogFiles))
	for label, path := range cfg.LogFiles {
		tl := logtail.New(label, path, logger.With("component", "logtail", "label", label))
		tl.Metrics = metricsRegistry
		tl.ProtocolsPath = "/etc/protocols"
		tailers = append(tailers, tl)
	}

	policyCfg := policy.Config{
		RepeatPeriod:   cfg.RepeatPeriod.Duration,
		RepeatCount:    cfg.RepeatCount,
		Timeout:        cfg.Timeout.Duration,
		BadIPThreshold: cfg.BadIPThreshold,
		ScanDirections: cfg.Directions(),
	}
	engine := policy.New(policyCfg, eventStore, fwController, tailers, metricsRegistry, logger.With("component", "policy"))

	httpServer := httpd.New(cfg.MetricsAddr, reg, engine, logger.With("component", "httpd"))
	httpServer.Start()
	defer httpServer.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("received reload signal")
				for _, tl := range tailers {
					tl.Reload()
				}
			default:
				logger.Info("received shutdown signal", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	logger.Info("dumpster starting", "log_files", len(tailers), "metrics_addr", cfg.MetricsAddr)
	return engine.Run(ctx)
}
