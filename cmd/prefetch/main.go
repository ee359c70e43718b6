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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/content"
	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/logging"
	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/pipeline"
	"github.com/aluiziolira/go-places-prefetch/prefetch"
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
	// The offline refresh always runs with build semantics.
	cfg.Mode = config.ModeBuild

	output := flag.String("output", cfg.SnapshotPath, "Snapshot JSON output path")
	report := flag.String("report", cfg.ReportPath, "Optional CSV report path")
	parallelism := flag.Int("parallel", cfg.Parallelism, "Number of concurrent lookups")
	failureRatio := flag.Float64("max-failure-ratio", cfg.MaxFailureRatio, "Failed/total ratio above which the run exits 1 (1 disables)")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg.SnapshotPath = *output
	cfg.ReportPath = *report
	cfg.Parallelism = *parallelism
	cfg.MaxFailureRatio = *failureRatio
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, _ := logging.New(cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	if err := cfg.ValidateCMS(); err != nil {
		logger.Error("invalid CMS configuration", zap.Error(err))
		return 1
	}

	profile := cfg.Profile()

	client, err := fetcher.New(cfg, profile, logger)
	if err != nil {
		logger.Error("initialising places client", zap.Error(err))
		return 1
	}
	cms, err := content.NewClient(cfg.CMS, cfg.UserAgent, logger)
	if err != nil {
		logger.Error("initialising CMS client", zap.Error(err))
		return 1
	}
	cache, err := pipeline.NewBuildCache(cfg.CacheSize)
	if err != nil {
		logger.Error("initialising build cache", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("metrics server enabled", zap.String("addr", cfg.MetricsAddr))
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting places refresh",
		zap.String("base_url", cfg.BaseURL),
		zap.String("output", cfg.SnapshotPath),
		zap.Bool("elevated", profile.Elevated()),
		zap.Int("workers", cfg.Parallelism),
	)

	runner := &prefetch.Runner{
		Content: cms,
		Batcher: pipeline.NewBatcher(client, cache, profile, pipeline.OptionsFromConfig(cfg), client.Metrics, logger),
		Policy:  prefetch.PolicyFromConfig(cfg),
		Logger:  logger,
	}

	file, result, runErr := runner.Run(ctx)
	if file == nil {
		if errors.Is(runErr, prefetch.ErrMissingCredential) {
			logger.Error("set PLACES_BUILD_API_KEY or PLACES_API_KEY", zap.Error(runErr))
		} else {
			logger.Error("places refresh failed", zap.Error(runErr))
		}
		return 1
	}

	if err := snapshot.Write(cfg.SnapshotPath, file); err != nil {
		logger.Error("writing snapshot", zap.Error(err))
		return 1
	}
	if err := snapshot.Validate(cfg.SnapshotPath); err != nil {
		logger.Error("snapshot validation failed", zap.Error(err))
		return 1
	}
	if cfg.ReportPath != "" {
		if err := snapshot.WriteCSVReport(cfg.ReportPath, file); err != nil {
			logger.Error("writing report", zap.Error(err))
			return 1
		}
	}

	printSummary(result, cfg.SnapshotPath)

	if runErr != nil {
		logger.Error("places refresh failed", zap.Error(runErr))
		return 1
	}
	return 0
}

func printSummary(result *models.PrefetchResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Places refresh complete")

	successRate := 0.0
	if result.Stats.TotalRequests > 0 {
		successRate = float64(result.Stats.SuccessfulRequests) / float64(result.Stats.TotalRequests) * 100
	}
	fmt.Printf("  Content items: %d\n", result.Items)
	fmt.Printf("  Successful:    %d\n", result.Stats.SuccessfulRequests)
	fmt.Printf("  Failed:        %d\n", result.Stats.FailedRequests)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Cache hits:    %d\n", result.CacheHits)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.FailedIDs) > 0 {
		fmt.Printf("  Failed IDs:    %v\n", result.FailedIDs)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
