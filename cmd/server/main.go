// Package main is the entry point for the folio portfolio valuation server.
// It wires the storage layer, price sources, valuation and performance
// services, scheduled jobs, and the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/niveshlabs/folio/internal/clients/nav"
	"github.com/niveshlabs/folio/internal/clients/quotes"
	"github.com/niveshlabs/folio/internal/clients/stream"
	"github.com/niveshlabs/folio/internal/config"
	"github.com/niveshlabs/folio/internal/database"
	"github.com/niveshlabs/folio/internal/modules/performance"
	performancehandlers "github.com/niveshlabs/folio/internal/modules/performance/handlers"
	"github.com/niveshlabs/folio/internal/modules/portfolio"
	portfoliohandlers "github.com/niveshlabs/folio/internal/modules/portfolio/handlers"
	"github.com/niveshlabs/folio/internal/modules/snapshots"
	snapshothandlers "github.com/niveshlabs/folio/internal/modules/snapshots/handlers"
	"github.com/niveshlabs/folio/internal/modules/valuation"
	valuationhandlers "github.com/niveshlabs/folio/internal/modules/valuation/handlers"
	"github.com/niveshlabs/folio/internal/pricecache"
	"github.com/niveshlabs/folio/internal/reliability"
	"github.com/niveshlabs/folio/internal/scheduler"
	"github.com/niveshlabs/folio/internal/server"
	"github.com/niveshlabs/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting folio")

	// Databases
	portfolioDB, err := database.New(database.Config{
		Path:   filepath.Join(cfg.DataDir, "portfolio.db"),
		Name:   "portfolio",
		Schema: portfolio.Schema,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	snapshotsDB, err := database.New(database.Config{
		Path:   filepath.Join(cfg.DataDir, "snapshots.db"),
		Name:   "snapshots",
		Schema: snapshots.Schema,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshots database")
	}
	defer snapshotsDB.Close()

	// Repositories
	holdingRepo := portfolio.NewHoldingRepository(portfolioDB.Conn(), log)
	transactionRepo := portfolio.NewTransactionRepository(portfolioDB.Conn(), log)
	snapshotRepo := snapshots.NewRepository(snapshotsDB.Conn(), log)

	// Price sources
	navCache := pricecache.New(pricecache.DefaultTTL)
	navClient := nav.NewClient(cfg.NAVBaseURL, navCache, log)
	quoteClient := quotes.NewClient(cfg.QuoteAPIBaseURL, cfg.QuoteAPIKey, log)
	streamClient := stream.NewClient(cfg.StreamURL, cfg.StreamToken, log)

	// Services
	valuationSvc := valuation.NewService(holdingRepo, transactionRepo, navClient, quoteClient, streamClient, log)
	performanceEngine := performance.NewEngine(snapshotRepo, log)

	// Scheduled jobs
	sched := scheduler.New(log)
	captureJob := snapshots.NewCaptureJob(holdingRepo, valuationSvc, snapshotRepo, log)
	if err := sched.AddJob(cfg.SnapshotSchedule, captureJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot capture job")
	}
	cleanupJob := pricecache.NewCleanupJob(navCache, log)
	if err := sched.AddJob("@every 1h", cleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(
			cfg.Backup.Endpoint, cfg.Backup.Region,
			cfg.Backup.AccessKey, cfg.Backup.SecretKey,
			cfg.Backup.Bucket, log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupSvc := reliability.NewBackupService(s3Client, cfg.DataDir, map[string]string{
			"portfolio": portfolioDB.Path(),
			"snapshots": snapshotsDB.Path(),
		}, log)
		backupJob := reliability.NewBackupJob(backupSvc, cfg.Backup.Keep, log)
		if err := sched.AddJob(cfg.Backup.Schedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	sched.Start()

	// Realtime feed: connect in the background and let the backoff logic own
	// retries. A down feed never blocks startup; quotes and NAVs still serve.
	if cfg.StreamURL != "" {
		go func() {
			if err := streamClient.Connect(); err != nil {
				log.Warn().Err(err).Msg("Initial feed connect failed, reconnect scheduled")
			}
		}()
	}

	// HTTP API
	srv := server.New(server.Config{
		Log:                 log,
		Cfg:                 cfg,
		PortfolioDB:         portfolioDB,
		SnapshotsDB:         snapshotsDB,
		QuoteClient:         quoteClient,
		StreamClient:        streamClient,
		PortfolioHandlers:   portfoliohandlers.NewHandler(holdingRepo, transactionRepo, valuationSvc, log),
		ValuationHandlers:   valuationhandlers.NewHandler(valuationSvc, log),
		PerformanceHandlers: performancehandlers.NewHandler(performanceEngine, valuationSvc, log),
		SnapshotHandlers:    snapshothandlers.NewHandler(snapshotRepo, log),
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	streamClient.Close()
	sched.Stop()

	log.Info().Msg("Shutdown complete")
}
