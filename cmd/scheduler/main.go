package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chainsave/circle-engine/internal/adapter"
	"github.com/chainsave/circle-engine/internal/config"
	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/engine"
	"github.com/chainsave/circle-engine/internal/logger"
	"github.com/chainsave/circle-engine/internal/messaging"
	"github.com/chainsave/circle-engine/internal/providers/jetstream"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	runOnStart = flag.Bool("run-on-start", false, "Run one sweep immediately on startup")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSchedulerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "payout-scheduler",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Circle Engine payout scheduler")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Connect to NATS when configured
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: "circle-engine-scheduler",
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, event publishing disabled")
	}

	// The platform address authorizes automatic payouts
	if cfg.Platform.Address == "" {
		logger.FatalCtx(ctx, "platform.address is required for the scheduler")
	}
	platformAddress, err := domain.NormalizeAddress(cfg.Platform.Address)
	if err != nil {
		logger.FatalCtx(ctx, "Invalid platform address", zap.Error(err))
	}

	clock := adapter.NewClock()
	eng := engine.New(dataStore, clock, engine.PlatformConfig{
		FeePercent:      cfg.Platform.FeePercent,
		Denomination:    cfg.Platform.Denomination,
		MinCreatorLock:  cfg.Platform.MinCreatorLock,
		PlatformAddress: platformAddress,
	})

	payoutSweeper := sweeper.NewPayoutSweeper(sweeper.Config{
		PlatformAddress: platformAddress,
		BatchSize:       cfg.Sweeper.BatchSize,
	}, eng, dataStore, publisher, clock)

	runSweep := func() {
		if err := payoutSweeper.Run(ctx); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("component", "payout_sweeper"))
		}
	}

	// Register the sweep schedule
	c := cron.New()
	if _, err := c.AddFunc(cfg.Sweeper.CronSpec, runSweep); err != nil {
		logger.FatalCtx(ctx, "Failed to register sweep schedule",
			zap.Error(err),
			zap.String("cron_spec", cfg.Sweeper.CronSpec),
		)
	}

	if *runOnStart {
		runSweep()
	}

	c.Start()
	logger.InfoCtx(ctx, "Payout scheduler started", zap.String("cron_spec", cfg.Sweeper.CronSpec))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))

	// Let an in-flight sweep finish before exiting
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for running sweep to finish")
	}

	logger.Info("Payout scheduler stopped")
}
