package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eventScope/internal/config"
	"eventScope/internal/indexer"
	"eventScope/internal/registry"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "EVM event log indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest and decode new logs for every configured contract",
		RunE:  runIndexer,
	}
	addRunFlags(runCmd)
	runCmd.Flags().String("run-at", "", "run timestamp (unix seconds or RFC3339), defaults to now")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	runCmd.Flags().String("nats-url", "", "NATS server for failure alerts")
	runCmd.Flags().String("nats-subject", "indexer.alerts", "NATS subject for failure alerts")
	runCmd.Flags().Duration("alert-cooldown", 15*time.Minute, "suppress repeated alerts for the same contract")
	root.AddCommand(runCmd)

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ranges each contract would ingest",
		RunE:  runPlan,
	}
	addRunFlags(planCmd)
	planCmd.Flags().Uint64("head", 0, "chain head to plan against, 0 queries the provider")
	root.AddCommand(planCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Re-decode a raw log JSONL file against the configured ABIs",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/redecoded", "output directory")
	decodeCmd.Flags().String("contracts", "", "contract manifest (YAML)")
	decodeCmd.Flags().String("abi-dir", "", "base directory for file ABI references")
	decodeCmd.Flags().StringSlice("address", nil, "only decode these contract addresses (comma-separated)")
	decodeCmd.Flags().StringSlice("topic0", nil, "only decode these topic0 hashes (comma-separated)")
	addObjectFlags(decodeCmd)
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(decodeCmd)

	root.AddCommand(newCheckpointCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("contracts", "", "contract manifest (YAML)")
	flags.String("contracts-source", "file", "where contracts are loaded from (file, postgres)")
	flags.String("abi-dir", "", "base directory for file ABI references, defaults to the manifest directory")

	flags.String("provider", config.ProviderEtherscan, "log provider (etherscan, rpc)")
	flags.String("etherscan-url", "", "Etherscan compatible API URL")
	flags.String("etherscan-api-key", "", "Etherscan API key")
	flags.String("rpc", "", "JSON-RPC URL for the rpc provider")
	flags.Duration("request-timeout", 30*time.Second, "provider request timeout")
	flags.Int("page-size", 1000, "logs per provider page")
	flags.Float64("rate-limit-rps", 5, "provider requests per second, 0 disables limiting")
	flags.Int("rate-limit-burst", 1, "provider request burst")
	flags.Int("max-attempts", 5, "maximum attempts per provider call")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("max-backoff", 30*time.Second, "maximum retry backoff")
	flags.Float64("retry-jitter", 0.2, "retry jitter fraction")

	flags.Uint64("confirmation-depth", 50, "blocks behind head treated as final")
	flags.Uint64("max-range-size", 2000, "blocks per fetched range")
	flags.Int("workers", 5, "contracts processed concurrently")
	flags.Float64("decode-failure-threshold", 0.5, "fail a range when this fraction of decodes fails")
	flags.Int("max-ranges-per-run", 0, "ranges drained per contract per run, 0 is unlimited")
	flags.Duration("run-timeout", 55*time.Minute, "stop starting new fetches after this long")
	flags.Duration("commit-timeout", 2*time.Minute, "bound on persisting and checkpointing one range")

	addCheckpointFlags(cmd)
	flags.StringSlice("sink", []string{config.SinkJSONL}, "output sinks (jsonl, arrow, postgres)")
	flags.String("out-store", config.StoreLocal, "where file sinks write (local, s3)")
	flags.String("out", "./data", "output directory for the local store")
	addObjectFlags(cmd)
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addCheckpointFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("checkpoint-backend", config.BackendFile, "checkpoint store (file, postgres, redis, memory)")
	flags.String("checkpoint", "./data/checkpoints.json", "checkpoint file path")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("redis-prefix", "checkpoint", "Redis key prefix")
}

func addObjectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("s3-endpoint", "", "S3 compatible endpoint")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-bucket", "", "S3 bucket for output")
	flags.String("s3-prefix", "", "S3 key prefix for output")
	flags.Bool("s3-use-ssl", true, "use TLS for S3")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runAt, err := config.ParseTimestamp(cfg.RunAt, time.Now())
	if err != nil {
		return fmt.Errorf("parse run-at: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := newResources(logger)
	defer res.Close()

	contracts, err := res.contracts(ctx, cfg)
	if err != nil {
		return err
	}
	fetcher, err := res.fetcher(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := res.checkpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return err
	}
	sink, err := res.sink(ctx, cfg)
	if err != nil {
		return err
	}
	abiSource, err := res.abiSource(ctx, cfg.ABIDir, cfg.Contracts, cfg.Object)
	if err != nil {
		return err
	}
	alerter, err := res.alerter(cfg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	coord := indexer.NewCoordinator(indexer.Config{
		Plan: indexer.PlanPolicy{
			ConfirmationDepth: cfg.ConfirmationDepth,
			MaxRangeSize:      cfg.MaxRangeSize,
		},
		Workers:                cfg.Workers,
		DecodeFailureThreshold: cfg.DecodeFailureThreshold,
		MaxRangesPerRun:        cfg.MaxRangesPerRun,
		CommitTimeout:          cfg.CommitTimeout,
	}, indexer.Dependencies{
		Fetcher:     fetcher,
		Resolver:    registry.New(abiSource, contracts, logger),
		Checkpoints: store,
		Sink:        sink,
		Alerter:     alerter,
	}, logger)

	logger.Info("indexer start",
		zap.String("provider", cfg.Provider),
		zap.Int("contracts", len(contracts)),
		zap.Uint64("confirmation_depth", cfg.ConfirmationDepth),
		zap.Uint64("max_range_size", cfg.MaxRangeSize),
		zap.Strings("sinks", cfg.Sinks),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend),
	)

	runCtx := ctx
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	summary, err := coord.Run(runCtx, runAt, contracts)
	if err != nil {
		return err
	}
	summary.Log(logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if !summary.Succeeded() {
		return fmt.Errorf("run %s: %d contract(s) failed", summary.RunID, summary.Count(indexer.StateFailed))
	}
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
