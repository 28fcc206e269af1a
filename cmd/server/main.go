package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/scheduler"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/mongo"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(nil)
	l := ledger.New(store, auth.BcryptHasher{}, ledger.Options{
		Timeout: cfg.StoreTimeout,
		Logger:  logger,
		Metrics: m,
	})

	mux := http.NewServeMux()
	service.Mount(mux, l, auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration), logger)
	mux.Handle("/metrics", promhttp.Handler())

	worker := scheduler.NewRolloverWorker(l.Expenses, scheduler.Config{
		Interval:    cfg.RolloverInterval,
		BatchSize:   cfg.RolloverBatchSize,
		Concurrency: cfg.RolloverConcurrency,
		MaxCatchUp:  cfg.RolloverMaxCatchUp,
	}, logger, m)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	// h2c serves HTTP/2 without TLS, which Connect clients may use.
	handler := h2c.NewHandler(middleware.HTTPLogging(logger, middleware.CORS(mux)), &http2.Server{})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Connect server starting", "address", server.Addr, "store", cfg.StoreDriver)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-workerDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	<-workerDone
	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		store, err := mongo.New(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logger.Info("Storage initialized", "driver", cfg.StoreDriver, "database", cfg.MongoDatabase)
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logger.Info("Storage initialized", "driver", cfg.StoreDriver, "database", cfg.DBPath)
		return store, func() { _ = store.Close() }, nil
	}
}
