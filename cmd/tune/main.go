package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/internal/search"
	"github.com/GoSim-25-26J-441/tune-core/internal/store"
	"github.com/GoSim-25-26J-441/tune-core/internal/telemetry"
	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

func main() {
	var configPath string
	var resume string
	var storeDir string
	var searchID string
	var logLevel string
	var logFormat string
	var progressPath string
	var traceKind string

	flag.StringVar(&configPath, "config", "config/search.yaml", "search file")
	flag.StringVar(&resume, "resume", "", "ID of a stored search whose observations seed this one")
	flag.StringVar(&storeDir, "store", ".tune", "directory for search results")
	flag.StringVar(&searchID, "id", "", "search ID (generated when empty)")
	flag.StringVar(&logLevel, "log-level", "", "log level, overrides the search file")
	flag.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flag.StringVar(&progressPath, "progress", "", "file receiving progress records as JSON lines")
	flag.StringVar(&traceKind, "trace", "", "export evaluation spans (stdout, log)")
	flag.Parse()

	if err := run(configPath, resume, storeDir, searchID, logLevel, logFormat, progressPath, traceKind); err != nil {
		fmt.Fprintf(os.Stderr, "tune: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, resume, storeDir, searchID, logLevel, logFormat, progressPath, traceKind string) error {
	cfg, err := config.LoadSearch(configPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger.SetDefault(logger.NewFormat(logFormat, logLevel, os.Stderr))

	exporter, err := telemetry.NewExporter(traceKind, os.Stderr)
	if err != nil {
		return err
	}
	shutdownTracing := telemetry.Setup("tune", exporter)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	results, err := store.NewFileStore(storeDir)
	if err != nil {
		return err
	}

	space, err := cfg.Space()
	if err != nil {
		return err
	}
	opts, err := search.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if resume == "" {
		resume = cfg.Initial.Resume
	}
	if resume != "" {
		prior, err := results.Load(context.Background(), resume)
		if err != nil {
			return fmt.Errorf("cannot resume %s: %w", resume, err)
		}
		opts.Prior = prior.History
		logger.Info("resuming search", "from", resume, "observations", len(prior.History))
	}
	if searchID == "" {
		searchID = utils.GenerateSearchID()
	}
	opts.SearchID = searchID
	opts.Logger = logger.ForSearch(logger.Default, searchID)
	opts.Sink = progress.LogSink{Logger: opts.Logger}

	if progressPath != "" {
		records, closeRecords, err := progressFile(progressPath)
		if err != nil {
			return err
		}
		defer closeRecords()
		opts.Sink = progress.Multi(opts.Sink, records)
	}

	eval, release, err := evaluator.FromConfig(cfg.Evaluator)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("failed to release evaluator", "error", err)
		}
	}()

	s, err := search.New(space, eval, opts)
	if err != nil {
		return err
	}

	// first signal lets the in-flight evaluation finish, a second one kills the process
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	result, err := s.Run(ctx)
	if err != nil {
		return err
	}
	if err := results.Save(context.Background(), result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	summary := map[string]any{
		"search_id":    result.ID,
		"status":       result.Status,
		"iterations":   result.Iterations,
		"observations": len(result.History),
		"restarts":     result.Restarts,
		"failures":     result.Failures,
		"failure_stop": result.FailureStop,
	}
	if result.Best != nil {
		summary["best"] = result.Best
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// progressFile writes records to path from a background goroutine. The
// returned func flushes and closes the file.
func progressFile(path string) (progress.Sink, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open progress file: %w", err)
	}
	ch := make(chan models.ProgressRecord, 1024)
	sink := progress.NewChannelSink(ch)
	done := make(chan error, 1)
	go func() { done <- progress.WriteJSONLines(f, ch) }()

	return sink, func() {
		close(ch)
		if err := <-done; err != nil {
			logger.Warn("failed to write progress file", "path", path, "error", err)
		}
		if err := f.Close(); err != nil {
			logger.Warn("failed to close progress file", "path", path, "error", err)
		}
		if n := sink.Dropped(); n > 0 {
			logger.Warn("progress records dropped", "path", path, "dropped", n)
		}
	}, nil
}
