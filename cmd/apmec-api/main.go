package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/apmec/internal/api"
	"github.com/edvin/apmec/internal/config"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/db"
	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/logging"
	"github.com/edvin/apmec/internal/metrics"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/monitor"
	"github.com/edvin/apmec/internal/policy"
	"github.com/edvin/apmec/internal/secrets"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("apmec-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	key, err := secrets.ParseKey(cfg.VIMAuthKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid VIM_AUTH_KEY")
	}
	vault, err := secrets.NewVault(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build credential vault")
	}

	drivers, err := driver.BuildRegistries(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build driver registries")
	}

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	events := core.NewEventService(corePool)
	monitorEvents := func(instanceID, details string) {
		if err := events.Record(ctx, instanceID, model.ResTypeMEA, model.StatusActive, model.EventMonitor, details); err != nil {
			logger.Error().Str("instance_id", instanceID).Err(err).Msg("record monitor event failed")
		}
	}

	engine := monitor.NewEngine(drivers.Monitor,
		time.Duration(cfg.MonitorCheckInterval)*time.Second,
		time.Duration(cfg.BootWait)*time.Second,
		monitorEvents, logger)
	alarms := monitor.NewAlarmMonitor(drivers.Alarm, cfg.AlarmDrivers[0], monitorEvents, logger)

	pool := core.NewPool(ctx, cfg.WorkerPoolSize, logger)
	services := core.NewServices(corePool, tc, vault, drivers, engine, alarms,
		pool, time.Duration(cfg.BootWait)*time.Second, logger)

	dispatcher, err := policy.NewDispatcher(services.MEA, events, cfg.PolicyActions, cfg.NotifyURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build policy dispatcher")
	}
	services.MEA.SetPolicyInvoker(dispatcher)

	// Restore monitoring registrations for instances that were ACTIVE
	// before the last restart.
	if err := engine.Reconcile(ctx, services.MEA.MonitorSource); err != nil {
		logger.Error().Err(err).Msg("monitor reconciliation failed")
	}
	engine.Start(ctx)
	defer engine.Stop()

	srv := api.NewServer(logger, services, corePool, tc)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting apmec API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	cancel()
	pool.Wait()
}
