// Package main reconciles token balances of Solana transactions.
// Reads signatures from a CSV file, an address history or a live log
// subscription, fetches each transaction and writes the grouped balance
// deltas to the configured sink. With -verify-run it re-reconciles a run
// stored in Postgres or ClickHouse and reports divergences instead.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"solana-balance-recon/internal/config"
	"solana-balance-recon/internal/export"
	"solana-balance-recon/internal/ingestion"
	"solana-balance-recon/internal/logging"
	"solana-balance-recon/internal/observability"
	"solana-balance-recon/internal/pipeline"
	"solana-balance-recon/internal/reconcile"
	"solana-balance-recon/internal/reporting"
	"solana-balance-recon/internal/solana"
	"solana-balance-recon/internal/storage"
	"solana-balance-recon/internal/storage/clickhouse"
	"solana-balance-recon/internal/storage/memory"
	"solana-balance-recon/internal/storage/migrations"
	"solana-balance-recon/internal/storage/postgres"
	"solana-balance-recon/internal/verification"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Getenv)
	stop()

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// closer releases a resource opened during setup.
type closer func()

var errDivergent = errors.New("stored results diverge")

func run(ctx context.Context, args []string, getenv func(string) string) error {
	cfg, err := config.Parse(args, getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rpc := solana.NewHTTPClient(cfg.RPC.URL,
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
		solana.WithRetryDelay(cfg.RPC.RetryDelay),
	)

	if cfg.Verifying() {
		return verify(ctx, cfg, rpc, logger)
	}

	source, closeSource, err := buildSource(ctx, cfg, rpc, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	sink, closeSink, err := buildSink(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	records, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	// the subscription is not needed once signatures are collected
	closeSource()

	p := pipeline.New(pipeline.Options{
		Fetcher:       ingestion.NewRPCFetcher(rpc),
		Reconciler:    reconcile.NewReconciler(reconcile.Mode(cfg.Reconcile.Mode)),
		Logger:        logger,
		Metrics:       metrics,
		Concurrency:   cfg.Reconcile.Concurrency,
		SkipMalformed: cfg.Reconcile.SkipMalformed,
	})

	result, err := p.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if err := sink.Write(ctx, result); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	logger.Info("results written",
		zap.String("run_id", result.RunID),
		zap.String("sink", cfg.Output.Sink),
		zap.Int("simple", result.Simple.Len()),
		zap.Int("complex", result.Complex.Len()),
	)
	return nil
}

func buildSource(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, logger *zap.Logger) (ingestion.Source, closer, error) {
	noop := func() {}

	switch cfg.Input.Mode {
	case config.InputAddress:
		return ingestion.NewAddressSource(ingestion.AddressOptions{
			RPC:           rpc,
			Address:       cfg.Input.Address,
			Limit:         cfg.Input.Limit,
			Before:        cfg.Input.Before,
			Until:         cfg.Input.Until,
			IncludeFailed: cfg.Input.IncludeFailed,
			Logger:        logger,
		}), noop, nil

	case config.InputWatch:
		ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("connect websocket: %w", err)
		}
		src, err := ingestion.NewWatchSource(ingestion.WatchOptions{
			WS:            ws,
			Mentions:      cfg.Input.Mentions,
			Limit:         cfg.Input.Limit,
			IncludeFailed: cfg.Input.IncludeFailed,
			Logger:        logger,
		})
		if err != nil {
			ws.Close()
			return nil, nil, err
		}
		return src, func() { _ = ws.Close() }, nil

	default:
		return ingestion.NewCSVSource(cfg.Input.Path, ingestion.CSVOptions{
			Comma:              cfg.Comma(),
			ValidateSignatures: cfg.Input.ValidateSignatures,
		}), noop, nil
	}
}

// buildStore opens the result store behind a store sink and applies
// migrations. It returns nil for the json sink.
func buildStore(ctx context.Context, cfg *config.Config) (storage.ResultStore, closer, error) {
	switch cfg.Output.Sink {
	case config.SinkPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return postgres.NewResultStore(pool), pool.Close, nil

	case config.SinkClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return clickhouse.NewResultStore(conn), func() { _ = conn.Close() }, nil

	case config.SinkMemory:
		return memory.NewResultStore(), func() {}, nil
	}
	return nil, func() {}, nil
}

func buildSink(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (export.Sink, closer, error) {
	store, release, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Output.Sink == config.SinkMemory {
		logger.Warn("memory sink selected, results are discarded at exit")
	}

	var sinks export.MultiSink
	if store != nil {
		sinks = append(sinks, export.NewStoreSink(export.StoreSinkOptions{
			Store:    store,
			Database: cfg.Output.Sink,
			Metrics:  metrics,
			Logger:   logger,
		}))
	} else {
		sinks = append(sinks, export.NewJSONSink(cfg.Output.Dir, cfg.Output.Pretty))
	}

	if cfg.Output.Report {
		sinks = append(sinks, export.NewReportSink(cfg.Output.Dir, cfg.Reconcile.Mode, reporting.NewGenerator()))
	}
	return sinks, release, nil
}

// verify re-reconciles a stored run and fails when any transaction diverges.
func verify(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, logger *zap.Logger) error {
	store, release, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Store:      store,
		Fetcher:    ingestion.NewRPCFetcher(rpc),
		Reconciler: reconcile.NewReconciler(reconcile.Mode(cfg.Reconcile.Mode)),
		Logger:     logger,
	})

	report, err := v.VerifyRun(ctx, cfg.Verify.RunID)
	if err != nil {
		return fmt.Errorf("verify run %s: %w", cfg.Verify.RunID, err)
	}

	for _, r := range report.Results {
		for _, d := range r.Divergences {
			logger.Warn("divergence",
				zap.String("hash", r.Hash),
				zap.String("field", d.Field),
				zap.String("stored", d.Expected),
				zap.String("replayed", d.Actual),
			)
		}
	}
	logger.Info("verification finished",
		zap.String("run_id", report.RunID),
		zap.Int("total", report.Total),
		zap.Int("matched", report.Matched),
		zap.Int("divergent", report.Divergent),
	)

	if report.Divergent > 0 {
		return fmt.Errorf("%w: %d of %d transactions", errDivergent, report.Divergent, report.Total)
	}
	return nil
}

func startMetricsServer(addr string, g prometheus.Gatherer, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.NewServeMux(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}
