package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/engine"
	"github.com/IshaanNene/ForumHarvest/internal/harvest"
	"github.com/IshaanNene/ForumHarvest/internal/observability"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	baseURL     string
	startDate   string
	endDate     string
	outputJSON  string
	outputCSV   string
	outputStore string
	storeType   string
	reportPath  string
	maxWorkers  int
	sequential  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest forum posts from a Discourse instance",
		Long: `harvest discovers course-relevant topics on a Discourse forum, extracts
every post in the requested date window and persists them to a local store.

Posts are extracted from the JSON API first and from rendered pages when the
API is unavailable. Posts whose date cannot be parsed are kept: they are
stamped with the extraction time and flagged date_unparsed=true, and they
are never dropped by the date window.

Exit status is non-zero when persistence fails or every discovery strategy
fails. Press Ctrl+C once to finish in-flight topics and stop, twice to abort.`,
		Example: `  harvest --start-date 2025-01-01 --end-date 2025-04-14
  harvest --base-url https://forum.example --start-date 2025-01-01 --end-date 2025-01-31 --output-json posts.json
  harvest -c harvest.yaml --start-date 2025-01-01 --end-date 2025-01-31 --sequential --report report.json`,
		SilenceUsage: true,
		RunE:         runHarvest,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: ./harvest.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	flags := rootCmd.Flags()
	flags.StringVar(&baseURL, "base-url", "", "forum base URL")
	flags.StringVar(&startDate, "start-date", "", "first day of the window (YYYY-MM-DD, UTC)")
	flags.StringVar(&endDate, "end-date", "", "last day of the window, inclusive (YYYY-MM-DD, UTC)")
	flags.StringVar(&outputJSON, "output-json", "", "write accepted posts to a JSON envelope file")
	flags.StringVar(&outputCSV, "output-csv", "", "write accepted posts to a CSV file")
	flags.StringVar(&outputStore, "output-store", "", "sqlite database path")
	flags.StringVar(&storeType, "store-type", "", "store backend: sqlite, mongodb")
	flags.StringVar(&reportPath, "report", "", "write the run report as JSON")
	flags.IntVar(&maxWorkers, "max-workers", 0, "number of topics fetched in parallel")
	flags.BoolVar(&sequential, "sequential", false, "fetch one topic at a time")
	_ = rootCmd.MarkFlagRequired("start-date")
	_ = rootCmd.MarkFlagRequired("end-date")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	window, err := types.NewWindow(startDate, endDate)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(ctx)
		}()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rc := engine.NewRunContext(cfg.Source.BaseURL, window)

	// First signal drains in-flight topics, the second aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, finishing in-flight topics", "signal", sig)
			rc.RequestShutdown()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, aborting", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	h := harvest.New(cfg, logger, harvest.WithMetrics(metrics))
	summary, runErr := h.Run(ctx, rc)
	if summary != nil && summary.Report != nil {
		if err := summary.Report.WriteText(os.Stdout); err != nil {
			logger.Warn("failed to print summary", "error", err)
		}
		printOutputs(cfg)
	}

	var storageErr *types.StorageError
	switch {
	case runErr == nil:
		return nil
	case errors.As(runErr, &storageErr):
		return fmt.Errorf("persistence failed: %w", runErr)
	case errors.Is(runErr, types.ErrAllStrategiesFailed):
		fmt.Println("\n💡 No discovery strategy succeeded. Check --base-url and your network, then retry.")
		return runErr
	default:
		return runErr
	}
}

func printOutputs(cfg *config.Config) {
	switch cfg.Storage.Type {
	case "mongodb":
		fmt.Printf("   Store:     %s/%s\n", cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	default:
		fmt.Printf("   Store:     %s\n", cfg.Storage.Path)
	}
	if cfg.Storage.OutputJSON != "" {
		fmt.Printf("   JSON:      %s\n", cfg.Storage.OutputJSON)
	}
	if cfg.Storage.OutputCSV != "" {
		fmt.Printf("   CSV:       %s\n", cfg.Storage.OutputCSV)
	}
	if cfg.Storage.ReportPath != "" {
		fmt.Printf("   Report:    %s\n", cfg.Storage.ReportPath)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ForumHarvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Source:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Source.BaseURL)
			fmt.Printf("  Categories:        %d configured\n", len(cfg.Source.Categories))
			fmt.Printf("  Search Queries:    %s\n", strings.Join(cfg.Source.SearchQueries, ", "))
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s (markup: %s)\n", cfg.Fetcher.Type, cfg.Fetcher.MarkupType)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Politeness Delay:  %s\n", cfg.Fetcher.PolitenessDelay)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nDiscovery:\n")
			fmt.Printf("  Strategies:        %s\n", strings.Join(cfg.Discovery.Strategies, ", "))
			fmt.Printf("  Max Pages:         %d\n", cfg.Discovery.MaxPages)
			fmt.Printf("  Max Topics:        %d\n", cfg.Discovery.MaxTopics)
			fmt.Printf("  Threshold:         %.1f\n", cfg.Relevance.Threshold)
			fmt.Printf("\nExtractor:\n")
			fmt.Printf("  Max Posts/Topic:   %d\n", cfg.Extractor.MaxPostsPerTopic)
			fmt.Printf("  Selector Sets:     %d configured\n", len(cfg.Extractor.SelectorSets))
			fmt.Printf("\nEngine:\n")
			fmt.Printf("  Max Workers:       %d\n", cfg.Engine.MaxWorkers)
			fmt.Printf("  Topic Timeout:     %s\n", cfg.Engine.TopicTimeout)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Path:              %s\n", cfg.Storage.Path)
			fmt.Printf("  Batch Size:        %d\n", cfg.Storage.BatchSize)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if baseURL != "" {
		cfg.Source.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if outputJSON != "" {
		cfg.Storage.OutputJSON = outputJSON
	}
	if outputCSV != "" {
		cfg.Storage.OutputCSV = outputCSV
	}
	if outputStore != "" {
		cfg.Storage.Path = outputStore
	}
	if storeType != "" {
		cfg.Storage.Type = strings.ToLower(storeType)
	}
	if reportPath != "" {
		cfg.Storage.ReportPath = reportPath
	}
	if maxWorkers > 0 {
		cfg.Engine.MaxWorkers = maxWorkers
	}
	if sequential {
		cfg.Engine.MaxWorkers = 1
	}
}
