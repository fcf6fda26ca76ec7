package config

import (
	"flag"
	"strings"
)

// Parse builds the configuration for args (without the program name).
// The optional -config file is applied first, then the environment, then
// every flag that was set explicitly.
func Parse(args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	fv := Default()
	var mentions string

	fs.StringVar(&fv.RPC.URL, "rpc-url", fv.RPC.URL, "Solana JSON-RPC endpoint (env "+EnvRPCURL+")")
	fs.StringVar(&fv.RPC.WSURL, "ws-url", fv.RPC.WSURL, "Solana websocket endpoint (env "+EnvWSURL+")")
	fs.DurationVar(&fv.RPC.Timeout, "rpc-timeout", fv.RPC.Timeout, "HTTP timeout per RPC call, 0 disables")
	fs.IntVar(&fv.RPC.MaxRetries, "rpc-retries", fv.RPC.MaxRetries, "Retries on RPC transport failures")

	fs.StringVar(&fv.Input.Mode, "input", fv.Input.Mode, "Input mode: csv, address or watch")
	fs.StringVar(&fv.Input.Path, "csv", fv.Input.Path, "CSV file with id,transaction_hash rows")
	fs.StringVar(&fv.Input.Delimiter, "delimiter", fv.Input.Delimiter, "CSV field delimiter")
	fs.BoolVar(&fv.Input.ValidateSignatures, "validate-signatures", fv.Input.ValidateSignatures, "Reject malformed signatures in the CSV")
	fs.StringVar(&fv.Input.Address, "address", fv.Input.Address, "Account whose signatures are reconciled (address input)")
	fs.StringVar(&fv.Input.Before, "before", fv.Input.Before, "Start paging before this signature (address input)")
	fs.StringVar(&fv.Input.Until, "until", fv.Input.Until, "Stop paging at this signature (address input)")
	fs.StringVar(&mentions, "mentions", "", "Comma-separated accounts to watch, empty for all (watch input)")
	fs.IntVar(&fv.Input.Limit, "limit", fv.Input.Limit, "Maximum signatures to collect (address, watch input)")
	fs.BoolVar(&fv.Input.IncludeFailed, "include-failed", fv.Input.IncludeFailed, "Keep failed transactions (address, watch input)")

	fs.StringVar(&fv.Reconcile.Mode, "mode", fv.Reconcile.Mode, "Reconcile mode: legacy or corrected. With -verify-run, used only for results stored without a mode")
	fs.IntVar(&fv.Reconcile.Concurrency, "concurrency", fv.Reconcile.Concurrency, "Parallel transaction fetches")
	fs.BoolVar(&fv.Reconcile.SkipMalformed, "skip-malformed", fv.Reconcile.SkipMalformed, "Skip transactions with invalid amounts or missing owners")

	fs.StringVar(&fv.Output.Sink, "sink", fv.Output.Sink, "Result sink: json, postgres, clickhouse or memory (dry run, results are discarded at exit)")
	fs.StringVar(&fv.Output.Dir, "output-dir", fv.Output.Dir, "Directory for JSON results and reports")
	fs.BoolVar(&fv.Output.Pretty, "pretty", fv.Output.Pretty, "Indent JSON output")
	fs.BoolVar(&fv.Output.Report, "report", fv.Output.Report, "Write a Markdown and CSV run report")

	fs.StringVar(&fv.Postgres.DSN, "postgres-dsn", fv.Postgres.DSN, "PostgreSQL DSN (env "+EnvPostgresDSN+")")
	fs.StringVar(&fv.ClickHouse.DSN, "clickhouse-dsn", fv.ClickHouse.DSN, "ClickHouse DSN (env "+EnvClickHouseDSN+")")
	fs.StringVar(&fv.Metrics.Addr, "metrics-addr", fv.Metrics.Addr, "Serve /metrics and /health on this address")
	fs.StringVar(&fv.Logging.Level, "log-level", fv.Logging.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&fv.Logging.Format, "log-format", fv.Logging.Format, "Log format: console or json")
	fs.StringVar(&fv.Verify.RunID, "verify-run", fv.Verify.RunID, "Re-reconcile a stored run and report divergences")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if mentions != "" {
		fv.Input.Mentions = splitList(mentions)
	}

	cfg := Default()
	if *configPath != "" {
		if err := LoadFile(cfg, *configPath); err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg, getenv)

	fs.Visit(func(f *flag.Flag) {
		if apply, ok := flagSetters[f.Name]; ok {
			apply(cfg, fv)
		}
	})
	return cfg, nil
}

// flagSetters copies one flag value from src to dst.
var flagSetters = map[string]func(dst, src *Config){
	"rpc-url":             func(d, s *Config) { d.RPC.URL = s.RPC.URL },
	"ws-url":              func(d, s *Config) { d.RPC.WSURL = s.RPC.WSURL },
	"rpc-timeout":         func(d, s *Config) { d.RPC.Timeout = s.RPC.Timeout },
	"rpc-retries":         func(d, s *Config) { d.RPC.MaxRetries = s.RPC.MaxRetries },
	"input":               func(d, s *Config) { d.Input.Mode = s.Input.Mode },
	"csv":                 func(d, s *Config) { d.Input.Path = s.Input.Path },
	"delimiter":           func(d, s *Config) { d.Input.Delimiter = s.Input.Delimiter },
	"validate-signatures": func(d, s *Config) { d.Input.ValidateSignatures = s.Input.ValidateSignatures },
	"address":             func(d, s *Config) { d.Input.Address = s.Input.Address },
	"before":              func(d, s *Config) { d.Input.Before = s.Input.Before },
	"until":               func(d, s *Config) { d.Input.Until = s.Input.Until },
	"mentions":            func(d, s *Config) { d.Input.Mentions = s.Input.Mentions },
	"limit":               func(d, s *Config) { d.Input.Limit = s.Input.Limit },
	"include-failed":      func(d, s *Config) { d.Input.IncludeFailed = s.Input.IncludeFailed },
	"mode":                func(d, s *Config) { d.Reconcile.Mode = s.Reconcile.Mode },
	"concurrency":         func(d, s *Config) { d.Reconcile.Concurrency = s.Reconcile.Concurrency },
	"skip-malformed":      func(d, s *Config) { d.Reconcile.SkipMalformed = s.Reconcile.SkipMalformed },
	"sink":                func(d, s *Config) { d.Output.Sink = s.Output.Sink },
	"output-dir":          func(d, s *Config) { d.Output.Dir = s.Output.Dir },
	"pretty":              func(d, s *Config) { d.Output.Pretty = s.Output.Pretty },
	"report":              func(d, s *Config) { d.Output.Report = s.Output.Report },
	"postgres-dsn":        func(d, s *Config) { d.Postgres.DSN = s.Postgres.DSN },
	"clickhouse-dsn":      func(d, s *Config) { d.ClickHouse.DSN = s.ClickHouse.DSN },
	"metrics-addr":        func(d, s *Config) { d.Metrics.Addr = s.Metrics.Addr },
	"log-level":           func(d, s *Config) { d.Logging.Level = s.Logging.Level },
	"log-format":          func(d, s *Config) { d.Logging.Format = s.Logging.Format },
	"verify-run":          func(d, s *Config) { d.Verify.RunID = s.Verify.RunID },
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
