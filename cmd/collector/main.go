package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/blitz-stream-collector/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/blitz-stream-collector/internal/adapter/kafka"
	"github.com/couchcryptid/blitz-stream-collector/internal/adapter/sink"
	"github.com/couchcryptid/blitz-stream-collector/internal/adapter/ws"
	"github.com/couchcryptid/blitz-stream-collector/internal/config"
	"github.com/couchcryptid/blitz-stream-collector/internal/observability"
	"github.com/couchcryptid/blitz-stream-collector/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := sink.New(cfg.OutputPath, cfg.CSVColumns, cfg.SnapshotGzip, nil, logger)
	if err != nil {
		logger.Error("failed to open output", "error", err, "path", cfg.OutputPath)
		os.Exit(1)
	}

	// Kafka mirror is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.RecordPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka mirror enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka mirror disabled")
	}

	collector := pipeline.New(store, publisher, logger, metrics)
	session := ws.New(cfg.FeedURL, collector, cfg.ConnectAttempts, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, collector, func() string { return session.State().String() }, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()

	exitCode := awaitShutdown(ctx, stop, sessionErr, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	// The shutdown snapshot is the deliverable of a collection run; write it
	// before closing the sink.
	start := time.Now()
	if path, err := store.Snapshot(); err != nil {
		logger.Error("snapshot failed", "error", err)
		exitCode = 1
	} else {
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		logger.Info("snapshot written", "path", path)
	}
	if err := store.Close(); err != nil {
		logger.Error("sink close error", "error", err)
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// awaitShutdown blocks until a signal or a fatal session error, then waits
// for the session goroutine to finish. The sink is single-writer: no frame
// may be in flight when the caller snapshots and closes it.
func awaitShutdown(ctx context.Context, stop context.CancelFunc, sessionErr <-chan error, logger *slog.Logger) int {
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "signal")
		stop()
		if err := <-sessionErr; err != nil {
			logger.Error("feed session failed", "error", err)
			return 1
		}
	case err := <-sessionErr:
		stop()
		if err != nil {
			logger.Error("feed session failed", "error", err)
			return 1
		}
		logger.Info("shutting down", "reason", "session ended")
	}
	return 0
}
