package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/internal/store"
	"github.com/GoSim-25-26J-441/tune-core/internal/telemetry"
	"github.com/GoSim-25-26J-441/tune-core/internal/tuned"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
)

type daemonFlags struct {
	grpcAddr    string
	httpAddr    string
	logLevel    string
	logFormat   string
	storeDir    string
	redisURL    string
	redisPrefix string
	resultTTL   time.Duration
	trace       string
}

func main() {
	var f daemonFlags
	flag.StringVar(&f.grpcAddr, "grpc-addr", ":50051", "gRPC listen address (health and reflection)")
	flag.StringVar(&f.httpAddr, "http-addr", ":8080", "HTTP listen address")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&f.logFormat, "log-format", "text", "log format (text, json)")
	flag.StringVar(&f.storeDir, "store-dir", "", "directory for finished search results")
	flag.StringVar(&f.redisURL, "redis-url", "", "redis URL for finished search results (overrides -store-dir)")
	flag.StringVar(&f.redisPrefix, "redis-prefix", store.DefaultKeyPrefix, "redis key prefix")
	flag.DurationVar(&f.resultTTL, "result-ttl", 0, "expiry of results kept in redis (0 keeps them)")
	flag.StringVar(&f.trace, "trace", "", "export evaluation spans (stdout, log)")
	flag.Parse()

	logger.SetDefault(logger.NewFormat(f.logFormat, f.logLevel, os.Stdout))

	if err := run(f); err != nil {
		logger.Error("tuned failed", "error", err)
		os.Exit(1)
	}
}

func run(f daemonFlags) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug("maxprocs", "message", format, "args", args)
	})); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporter, err := telemetry.NewExporter(f.trace, os.Stdout)
	if err != nil {
		return err
	}
	shutdownTracing := telemetry.Setup("tuned", exporter)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	results, closeStore, err := openStore(ctx, f.storeDir, f.redisURL, f.redisPrefix, f.resultTTL)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := progress.NewMetricsSink(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	jobs := tuned.NewJobStore()
	notifier := tuned.NewNotifier()
	opts := []tuned.ExecutorOption{tuned.WithMetrics(metrics), tuned.WithNotifier(notifier)}
	if results != nil {
		opts = append(opts, tuned.WithResultStore(results))
	}
	executor := tuned.NewExecutor(jobs, opts...)

	// TODO: Configure gRPC server security (TLS, authentication) before
	// exposing the daemon outside a trusted network.
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", f.grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", f.grpcAddr, err)
	}

	httpSrv := &http.Server{
		Addr:              f.httpAddr,
		Handler:           tuned.NewHTTPServer(jobs, executor, reg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", f.grpcAddr)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", f.httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()
	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Error("search jobs did not stop in time", "error", err)
	}
	notifier.Wait()
	grpcServer.GracefulStop()
	return nil
}

// openStore picks redis, then a directory, then nothing
func openStore(ctx context.Context, dir, redisURL, prefix string, ttl time.Duration) (store.ResultStore, func(), error) {
	switch {
	case redisURL != "":
		rs, err := store.NewRedisStore(redisURL, prefix, ttl)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, nil, err
		}
		logger.Info("storing results in redis", "prefix", prefix, "ttl", ttl)
		return rs, func() { _ = rs.Close() }, nil
	case dir != "":
		fs, err := store.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing results on disk", "dir", dir)
		return fs, func() {}, nil
	default:
		logger.Info("no result store configured, finished searches live in memory only")
		return nil, func() {}, nil
	}
}
