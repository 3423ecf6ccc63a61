// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package main is the entry point for the Soundproof server.
//
// Soundproof ingests play events from listener clients, screens them for
// fraud signals, materializes them into an analytics-ready form, and
// allocates subscription revenue to artists with a user-centric payout
// model (each subscriber's fee is divided among the artists that
// subscriber actually listened to).
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables over config.yaml over defaults (Koanf v2)
//  2. Database: DuckDB storage for raw plays, materialized plays, and payouts
//  3. Event transport: NATS JetStream (external or embedded) or in-process channels
//  4. Ingestion service: batch validation, fraud screening, raw persistence
//  5. Materializer: consumes play notifications, dedupes, writes materialized rows
//  6. Payout scheduler: monthly user-centric revenue allocation
//  7. HTTP server: REST API with JWT authentication and Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. JWT_SECRET and IP_HASH_SALT are required in
// production.
//
// # Event Transport
//
// With NATS_ENABLED=true the materialization pipeline runs over JetStream,
// either against an external broker (NATS_URL) or an embedded server
// (NATS_EMBEDDED_SERVER=true). With NATS disabled an in-process transport
// is used; notifications lost to a restart are re-driven from the pending
// rows in the database at startup.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, drains in-flight requests, closes the message
// router and transport, then the database.
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

	"github.com/sony/gobreaker/v2"

	"github.com/soundproof/soundproof/internal/api"
	"github.com/soundproof/soundproof/internal/auth"
	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/database"
	"github.com/soundproof/soundproof/internal/eventprocessor"
	"github.com/soundproof/soundproof/internal/ingest"
	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/materializer"
	"github.com/soundproof/soundproof/internal/payout"
)

// reconcileLimit bounds how many pending raw plays are re-driven at
// startup. Rows beyond the limit are picked up on the next restart; in
// normal operation the pending set is near empty.
const reconcileLimit = 10000

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Soundproof")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wmLogger := eventprocessor.NewLoggerAdapter()

	pubsub, err := eventprocessor.NewPubSub(ctx, &cfg.NATS, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event transport")
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()
		if err := pubsub.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing event transport")
		}
	}()

	// Circuit breaker keeps a broker outage from stalling every ingest
	// request on publish timeouts.
	pubsub.Publisher.SetCircuitBreaker(gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "event_publisher",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}))

	ingestService := ingest.NewService(db, pubsub.Publisher, cfg.Security.IPHashSalt, &cfg.Ingest)

	worker := materializer.NewWorker(db)

	routerCfg := routerConfig(&cfg.NATS)
	router, err := eventprocessor.NewRouter(&routerCfg, pubsub.Publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create message router")
	}
	defer func() {
		if err := router.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing message router")
		}
	}()

	materializeHandler, err := eventprocessor.NewMaterializeHandler(worker, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create materialize handler")
	}
	materializeHandler.Register(router, pubsub.Subscriber)
	eventprocessor.RegisterPoisonLogger(router, pubsub.Subscriber, routerCfg.PoisonQueueTopic)

	router.RunAsync(ctx)
	select {
	case <-router.Running():
		logging.Info().Msg("Message router running")
	case <-time.After(30 * time.Second):
		logging.Fatal().Msg("Message router failed to start within 30s")
	}

	// Plays accepted before a previous shutdown may never have reached the
	// materializer (the in-process transport is not persistent; JetStream
	// publishes can race a crash). Re-drive everything still pending.
	if err := reconcilePendingPlays(ctx, db, pubsub.Publisher); err != nil {
		logging.Error().Err(err).Msg("Failed to reconcile pending plays")
	}

	aggregator := payout.NewAggregator(db)
	scheduler := payout.NewScheduler(aggregator, cfg.Payout)
	if cfg.Payout.Enabled {
		go scheduler.Start(ctx)
		logging.Info().
			Int("day_of_month", cfg.Payout.DayOfMonth).
			Int("hour_utc", cfg.Payout.Hour).
			Msg("Payout scheduler started")
	} else {
		logging.Info().Msg("Payout scheduler disabled (PAYOUT_ENABLED=false)")
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	authMiddleware := auth.NewMiddleware(jwtManager)

	handler := api.NewHandler(cfg, ingestService, db, aggregator, db)
	handler.SetManualRunCallback(scheduler.MarkRan)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(authMiddleware),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErrCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP server error")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// routerConfig maps transport settings onto the router defaults. Zero
// values keep the defaults so a minimal config still gets retries and a
// poison queue.
func routerConfig(cfg *config.NATSConfig) eventprocessor.RouterConfig {
	rc := eventprocessor.DefaultRouterConfig()
	if cfg.RouterCloseTimeout > 0 {
		rc.CloseTimeout = cfg.RouterCloseTimeout
	}
	if cfg.RouterRetryCount > 0 {
		rc.RetryMaxRetries = cfg.RouterRetryCount
	}
	if cfg.RouterRetryInitialInterval > 0 {
		rc.RetryInitialInterval = cfg.RouterRetryInitialInterval
	}
	if cfg.RouterPoisonQueueTopic != "" {
		rc.PoisonQueueTopic = cfg.RouterPoisonQueueTopic
	}
	return rc
}

// reconcilePendingPlays republishes materialization notifications for raw
// plays still in the pending state. Materialization is idempotent, so
// re-notifying a play whose notification is also still in flight is safe.
func reconcilePendingPlays(ctx context.Context, db *database.DB, publisher *eventprocessor.Publisher) error {
	pending, err := db.ListPendingRawPlays(ctx, reconcileLimit)
	if err != nil {
		return fmt.Errorf("list pending raw plays: %w", err)
	}

	for _, raw := range pending {
		if err := publisher.NotifyPlayRecorded(ctx, raw); err != nil {
			return fmt.Errorf("republish play %s/%s: %w", raw.Partition, raw.EventID, err)
		}
	}

	if len(pending) > 0 {
		logging.Info().Int("count", len(pending)).Msg("Re-drove pending play notifications")
	}
	return nil
}
