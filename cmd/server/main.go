// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package main is the entry point for the Nivesh server.
//
// Nivesh is an investment tracking backend. Accounts hold invested
// principal and a referral tree; scheduled batch cycles credit interest
// and multi-level referral bonuses, and a maturity sweeper releases the
// principal of aged investment transactions back into withdrawable
// balance.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load layered settings (Koanf v2: env > file > defaults)
//  2. Store: open the Badger-backed account and audit store
//  3. Notify: SMTP alert mailer and SMS gateway client
//  4. Engines: accrual engine and maturity sweeper
//  5. Scheduler: cron-driven jobs with a self-healing monitor
//  6. HTTP server: read-only ops API with Prometheus metrics
//  7. Supervisor tree: all long-running pieces under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, then an optional YAML file
// (CONFIG_PATH or ./config.yaml), then built-in defaults.
//
// The accrual tier-2 referral rate has no default. Set it explicitly:
//
//	export ACCRUAL_TIER2_RATE=0.002
//
// # Example Usage
//
// Run with the accrual cycle at 00:30 UTC and maturity sweep at 02:00:
//
//	export STORE_PATH=/data/nivesh
//	export ACCRUAL_ENABLED=true
//	export ACCRUAL_TIER2_RATE=0.002
//	export MATURITY_ENABLED=true
//	./nivesh
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree drains, in-flight HTTP requests get 10 seconds to
// complete, scheduled jobs are stopped, and the store is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/niveshhq/nivesh/internal/accrual"
	"github.com/niveshhq/nivesh/internal/api"
	"github.com/niveshhq/nivesh/internal/config"
	"github.com/niveshhq/nivesh/internal/logging"
	"github.com/niveshhq/nivesh/internal/maturity"
	"github.com/niveshhq/nivesh/internal/notify"
	"github.com/niveshhq/nivesh/internal/referral"
	"github.com/niveshhq/nivesh/internal/scheduler"
	"github.com/niveshhq/nivesh/internal/store"
	"github.com/niveshhq/nivesh/internal/supervisor"
	"github.com/niveshhq/nivesh/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("accrual_enabled", cfg.Accrual.Enabled).
		Bool("maturity_enabled", cfg.Maturity.Enabled).
		Msg("Configuration loaded")

	logger := logging.Logger()

	st, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	}, &logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened")

	notifier := notify.NewManager(cfg.Notify, &logger)

	rates := referral.RateTable{
		Base:  cfg.Accrual.BaseRate,
		Tier1: cfg.Accrual.Tier1Rate,
		Tier2: cfg.Accrual.Tier2Rate,
		Tier3: cfg.Accrual.Tier3Rate,
	}

	engine := accrual.New(st, notifier, accrual.Config{
		Rates:       rates,
		MinCycleGap: cfg.Accrual.MinCycleGap,
	}, &logger)

	sweeper := maturity.New(st, notifier, maturity.Config{
		Window: cfg.Maturity.Window,
	}, &logger)

	sched := scheduler.New(&logger, scheduler.Config{
		MonitorInterval: cfg.Scheduler.MonitorInterval,
	})

	if cfg.Accrual.Enabled {
		err := sched.Register("accrual", cfg.Accrual.Cron, cfg.Accrual.Timezone,
			cfg.Accrual.CycleTimeout, func(ctx context.Context) error {
				_, err := engine.RunCycle(ctx)
				// Overlap and rerun guards are normal outcomes for a
				// scheduled job, not failures to restart over.
				if errors.Is(err, accrual.ErrCycleInProgress) ||
					errors.Is(err, accrual.ErrCycleAlreadyApplied) {
					return nil
				}
				return err
			})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to register accrual job")
		}
		logging.Info().Str("cron", cfg.Accrual.Cron).Msg("Accrual cycle scheduled")
	} else {
		logging.Warn().Msg("Accrual cycle disabled (ACCRUAL_ENABLED=false)")
	}

	if cfg.Maturity.Enabled {
		err := sched.Register("maturity", cfg.Maturity.Cron, cfg.Maturity.Timezone,
			cfg.Maturity.SweepTimeout, func(ctx context.Context) error {
				_, err := sweeper.RunSweep(ctx)
				if errors.Is(err, maturity.ErrSweepInProgress) {
					return nil
				}
				return err
			})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to register maturity job")
		}
		logging.Info().Str("cron", cfg.Maturity.Cron).Msg("Maturity sweep scheduled")
	} else {
		logging.Warn().Msg("Maturity sweep disabled (MATURITY_ENABLED=false)")
	}

	handler := api.NewHandler(st, rates, &logger)
	router := api.NewRouter(handler, cfg.Server, &logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewGCService(st, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio, &logger))
	tree.AddJobService(services.NewSchedulerService(sched))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
