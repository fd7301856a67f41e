package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbehnke/convfec/pkg/code"
	"github.com/dbehnke/convfec/pkg/config"
	"github.com/dbehnke/convfec/pkg/database"
	"github.com/dbehnke/convfec/pkg/harness"
	"github.com/dbehnke/convfec/pkg/logger"
	"github.com/dbehnke/convfec/pkg/metrics"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain returns the process exit code so deferred cleanup runs before exit
func realMain(args []string) int {
	// Parse command line flags
	fs := flag.NewFlagSet("fectest", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Show version information")
	validate := fs.Bool("validate", false, "Validate configuration and exit")
	listCodes := fs.Bool("list-codes", false, "List the known codes and exit")
	history := fs.Int("history", 0, "Print the N most recent stored runs and exit")
	dumpMetrics := fs.Bool("dump-metrics", false, "Print the collected metrics after the trials")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Show version
	if *showVersion {
		fmt.Printf("fectest %s (built %s)\n", version, buildTime)
		return 0
	}

	if *listCodes {
		for _, name := range code.Names() {
			fmt.Println(code.MustLookup(name))
		}
		return 0
	}

	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
	})

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		return 1
	}
	log.SetLevel(cfg.Logging.Level)

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("Failed to open log file", logger.Error(err))
			return 1
		}
		defer func() { _ = f.Close() }()
		log = logger.New(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: io.MultiWriter(os.Stderr, f),
		})
	}

	// Validate only mode
	if *validate {
		log.Info("Configuration is valid")
		return 0
	}

	log.Info("Starting fectest",
		logger.String("version", version),
		logger.String("build_time", buildTime))

	if err := run(cfg, log, *history, *dumpMetrics); err != nil {
		log.Error("fectest failed", logger.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *logger.Logger, history int, dumpMetrics bool) error {
	// Open the run history if enabled
	var db *database.DB
	if cfg.Database.Enabled || history > 0 {
		var err error
		db, err = database.NewDB(database.Config{Path: cfg.Database.Path}, log.WithComponent("database"))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
	}

	if history > 0 {
		runs, err := db.Runs().GetRecent(history)
		if err != nil {
			return fmt.Errorf("failed to read run history: %w", err)
		}
		writeHistory(os.Stdout, runs)
		return nil
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector()

	// Start Prometheus metrics server if enabled
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		metricsServer := metrics.NewPrometheusServer(
			metrics.PrometheusConfig{
				Enabled: cfg.Metrics.Prometheus.Enabled,
				Port:    cfg.Metrics.Prometheus.Port,
				Path:    cfg.Metrics.Prometheus.Path,
			},
			metricsCollector,
			log.WithComponent("metrics"),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
		defer cancel()
		log.Info("Prometheus metrics server started",
			logger.Int("port", cfg.Metrics.Prometheus.Port),
			logger.String("path", cfg.Metrics.Prometheus.Path))
	}

	if db != nil && cfg.Database.Keep > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Database.Keep)
		if n, err := db.Runs().DeleteOlderThan(cutoff); err != nil {
			log.Warn("Failed to prune run history", logger.Error(err))
		} else if n > 0 {
			log.Info("Pruned run history", logger.Int64("deleted", n))
		}
	}

	trialLog := log.WithComponent("trial")
	var summaries []*harness.Summary
	for _, ebn0 := range cfg.Trial.Points() {
		runner, err := harness.NewRunner(cfg.Trial.Harness(ebn0), trialLog, metricsCollector)
		if err != nil {
			return err
		}

		started := time.Now()
		metricsCollector.RunStarted()
		summary, err := runner.Run(ctx)
		metricsCollector.RunFinished()
		if summary != nil && summary.Frames > 0 {
			summaries = append(summaries, summary)
			if db != nil {
				rec := database.RunFromSummary(summary, started)
				if err := db.Runs().Create(rec); err != nil {
					log.Warn("Failed to store run", logger.Error(err))
				} else {
					log.Debug("Stored run", logger.String("run_id", rec.RunID))
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}

	if len(summaries) > 0 {
		writeSummaries(os.Stdout, summaries)
	}
	if dumpMetrics {
		if err := writeMetrics(os.Stdout, metricsCollector); err != nil {
			log.Warn("Failed to dump metrics", logger.Error(err))
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted after %d Eb/N0 points: %w", len(summaries), ctx.Err())
	}
	return nil
}
