package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/google"
	"github.com/aluiziolira/go-places-prefetch/logging"
	"github.com/aluiziolira/go-places-prefetch/placesapi"
	"github.com/aluiziolira/go-places-prefetch/snapshot"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		return 1
	}

	addr := flag.String("addr", cfg.Server.Addr, "HTTP listen address")
	snapshotPath := flag.String("snapshot", cfg.SnapshotPath, "Committed places snapshot to serve ratings from")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg.Server.Addr = *addr
	cfg.SnapshotPath = *snapshotPath
	cfg.Verbose = *verbose

	logger, _ := logging.New(cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid server configuration", zap.Error(err))
		return 1
	}

	upstream, err := google.NewClient(cfg.Server.GoogleBaseURL, cfg.Server.GoogleAPIKey, cfg.UserAgent, cfg.Server.UpstreamTimeout, logger)
	if err != nil {
		logger.Error("initialising google places client", zap.Error(err))
		return 1
	}
	reader := snapshot.NewReader(cfg.SnapshotPath, cfg.StaleAfter, logger)

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	server := placesapi.NewServer(upstream, reader, placesapi.Options{
		ClientKeys:      cfg.ClientKeys(),
		ResponseTTL:     cfg.Server.ResponseTTL,
		RatePerMinute:   cfg.Server.RatePerMinute,
		UpstreamTimeout: cfg.Server.UpstreamTimeout,
	}, fetcher.NewMetrics(), logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("places API listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("snapshot", cfg.SnapshotPath),
			zap.Int("client_keys", len(cfg.ClientKeys())),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return 1
	}
	return 0
}
