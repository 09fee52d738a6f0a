package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/cache"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/config"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/handlers"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/hub"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/live"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/logger"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/poller"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/providers/scorecard"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/publisher"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/tracker"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/contracts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.Init(cfg.LogLevel, cfg.IsDevelopment())
	log.WithFields(logrus.Fields{
		"env":           cfg.Env,
		"poll_interval": cfg.Live.PollInterval.String(),
		"upstream":      cfg.Upstream.BaseURL,
	}).Info("Starting scorecard-live")

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to parse Redis URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	pingCancel()
	log.Info("Connected to Redis")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	// Upstream scorecard backend
	provider := scorecard.New(cfg.Upstream.BaseURL, scorecard.Options{
		Timeout:        cfg.Upstream.FetchTimeout,
		BreakerTimeout: cfg.Upstream.BreakerTimeout,
		Metrics:        recorder,
		Logger:         log,
	})

	// Sinks
	writer := cache.NewRedisWriter(redisClient)
	streams := publisher.NewStreamPublisher(redisClient)
	h := hub.NewHub(nil, recorder, log)

	orchestrator := poller.NewOrchestrator(
		provider,
		writer,
		tracker.Sinks{
			Snapshots: []contracts.SnapshotSink{writer, streams, h},
			Errors:    []contracts.ErrorSink{streams, h},
		},
		recorder,
		poller.Options{
			Tracker: tracker.Config{
				PollInterval: cfg.Live.PollInterval,
				Live: live.Config{
					FetchTimeout:     cfg.Upstream.FetchTimeout,
					RetryMaxAttempts: cfg.Live.RetryMaxAttempts,
					RetryBaseDelay:   cfg.Live.RetryBaseDelay,
					RetryMaxDelay:    cfg.Live.RetryMaxDelay,
					Clock:            clockwork.NewRealClock(),
				},
			},
			RefreshSpec:      cfg.Live.GamesRefreshSpec,
			RetryMaxAttempts: cfg.Live.RetryMaxAttempts,
			RetryBaseDelay:   cfg.Live.RetryBaseDelay,
			RetryMaxDelay:    cfg.Live.RetryMaxDelay,
		},
		log,
	)
	h.SetListener(orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	orchestratorDone := make(chan error, 1)
	go func() {
		orchestratorDone <- orchestrator.Run(ctx)
	}()

	// HTTP server
	handler := handlers.NewHandler(ctx, h, orchestrator, writer, cfg.Server.CORSOrigins, log)
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handlers.NewRouter(handler, cfg.Server.CORSOrigins, registry),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	orchestratorStopped := false
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server error")
		}
	case err := <-orchestratorDone:
		orchestratorStopped = true
		if err != nil {
			log.WithError(err).Error("Orchestrator failed")
		}
	case sig := <-shutdown:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	// Stop polling and close viewer connections first
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			log.WithError(err).Error("Could not stop server")
		}
	}

	if !orchestratorStopped {
		select {
		case <-orchestratorDone:
		case <-shutdownCtx.Done():
		}
	}

	log.Info("Shutdown complete")
}
