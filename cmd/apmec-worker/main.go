package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/apmec/internal/activity"
	"github.com/edvin/apmec/internal/config"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/db"
	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/logging"
	"github.com/edvin/apmec/internal/metrics"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/monitor"
	"github.com/edvin/apmec/internal/secrets"
	"github.com/edvin/apmec/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("apmec-worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

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

	// The worker deploys constituents synchronously inside activities, so
	// the monitor engine is built for registration bookkeeping but the
	// polling loop stays with the API process.
	engine := monitor.NewEngine(drivers.Monitor,
		time.Duration(cfg.MonitorCheckInterval)*time.Second,
		time.Duration(cfg.BootWait)*time.Second,
		nil, logger)
	events := core.NewEventService(corePool)
	alarms := monitor.NewAlarmMonitor(drivers.Alarm, cfg.AlarmDrivers[0],
		func(instanceID, details string) {
			events.Record(ctx, instanceID, model.ResTypeMEA, model.StatusActive, model.EventMonitor, details)
		}, logger)

	pool := core.NewPool(ctx, cfg.WorkerPoolSize, logger)
	services := core.NewServices(corePool, tc, vault, drivers, engine, alarms,
		pool, time.Duration(cfg.BootWait)*time.Second, logger)

	w := worker.New(tc, core.TaskQueue, worker.Options{})

	w.RegisterActivity(activity.NewChain(services))

	w.RegisterWorkflow(workflow.CreateMECAWorkflow)
	w.RegisterWorkflow(workflow.DeleteMECAWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
	pool.Wait()
}
