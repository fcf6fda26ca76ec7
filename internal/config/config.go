// Package config loads run configuration from a YAML file, the environment
// and command-line flags. Later sources override earlier ones: defaults,
// file, environment, flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"solana-balance-recon/internal/reconcile"
	"solana-balance-recon/internal/solana"
)

// ErrConfiguration indicates missing or invalid configuration.
var ErrConfiguration = errors.New("invalid configuration")

// Input modes.
const (
	InputCSV     = "csv"
	InputAddress = "address"
	InputWatch   = "watch"
)

// Sinks.
const (
	SinkJSON       = "json"
	SinkPostgres   = "postgres"
	SinkClickHouse = "clickhouse"
	SinkMemory     = "memory"
)

// Environment variables read by ApplyEnv.
const (
	EnvRPCURL        = "RPC_URL"
	EnvWSURL         = "WS_URL"
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
)

// Config is the full run configuration.
type Config struct {
	RPC        RPCConfig       `yaml:"rpc"`
	Input      InputConfig     `yaml:"input"`
	Reconcile  ReconcileConfig `yaml:"reconcile"`
	Output     OutputConfig    `yaml:"output"`
	Postgres   DSNConfig       `yaml:"postgres"`
	ClickHouse DSNConfig       `yaml:"clickhouse"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Logging    LoggingConfig   `yaml:"logging"`
	Verify     VerifyConfig    `yaml:"verify"`
}

// RPCConfig configures the Solana endpoints.
type RPCConfig struct {
	URL        string        `yaml:"url"`
	WSURL      string        `yaml:"ws_url"`
	Timeout    time.Duration `yaml:"timeout"` // 0 = no timeout
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// InputConfig selects where transaction signatures come from.
type InputConfig struct {
	Mode string `yaml:"mode"`

	// csv
	Path               string `yaml:"path"`
	Delimiter          string `yaml:"delimiter"`
	ValidateSignatures bool   `yaml:"validate_signatures"`

	// address
	Address string `yaml:"address"`
	Before  string `yaml:"before"`
	Until   string `yaml:"until"`

	// watch
	Mentions []string `yaml:"mentions"`

	// address and watch
	Limit         int  `yaml:"limit"`
	IncludeFailed bool `yaml:"include_failed"`
}

// ReconcileConfig controls delta computation.
type ReconcileConfig struct {
	Mode          string `yaml:"mode"`
	Concurrency   int    `yaml:"concurrency"`
	SkipMalformed bool   `yaml:"skip_malformed"`
}

// OutputConfig selects the sink and run report.
type OutputConfig struct {
	Sink   string `yaml:"sink"`
	Dir    string `yaml:"dir"`
	Pretty bool   `yaml:"pretty"`
	Report bool   `yaml:"report"` // write REPORT.md and deltas.csv next to the results
}

// DSNConfig holds a database connection string.
type DSNConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VerifyConfig switches the command to verifying a stored run instead of
// reconciling new input.
type VerifyConfig struct {
	RunID string `yaml:"run_id"`
}

// Verifying reports whether the command verifies a stored run.
func (c *Config) Verifying() bool {
	return c.Verify.RunID != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			Timeout:    solana.DefaultTimeout,
			MaxRetries: solana.DefaultMaxRetries,
			RetryDelay: solana.DefaultRetryDelay,
		},
		Input: InputConfig{
			Mode:      InputCSV,
			Path:      "transactions.csv",
			Delimiter: ",",
		},
		Reconcile: ReconcileConfig{
			Mode:        string(reconcile.ModeLegacy),
			Concurrency: 1,
		},
		Output: OutputConfig{
			Sink: SinkJSON,
			Dir:  ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile decodes the YAML file at path over cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides endpoints and DSNs from the environment.
// Unset or empty variables leave the current value.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.RPC.URL, EnvRPCURL)
	set(&cfg.RPC.WSURL, EnvWSURL)
	set(&cfg.Postgres.DSN, EnvPostgresDSN)
	set(&cfg.ClickHouse.DSN, EnvClickHouseDSN)
}

// Validate reports every problem found, each wrapping ErrConfiguration.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrConfiguration}, args...)...))
	}

	if c.RPC.URL == "" {
		add("rpc url is required (set %s)", EnvRPCURL)
	}
	if c.RPC.Timeout < 0 {
		add("rpc timeout must be >= 0")
	}
	if c.RPC.MaxRetries < 0 {
		add("rpc max_retries must be >= 0")
	}

	switch {
	case c.Verifying():
		if c.Output.Sink != SinkPostgres && c.Output.Sink != SinkClickHouse {
			add("verify needs a postgres or clickhouse sink, got %q", c.Output.Sink)
		}
	case c.Input.Mode == InputCSV:
		if c.Input.Path == "" {
			add("input path is required for csv input")
		}
		if len([]rune(c.Input.Delimiter)) != 1 {
			add("input delimiter must be a single character, got %q", c.Input.Delimiter)
		}
	case c.Input.Mode == InputAddress:
		if err := solana.ValidatePubkey(c.Input.Address); err != nil {
			add("input address: %v", err)
		}
		if c.Input.Limit < 0 {
			add("input limit must be >= 0")
		}
	case c.Input.Mode == InputWatch:
		if c.RPC.WSURL == "" {
			add("ws url is required for watch input (set %s)", EnvWSURL)
		}
		if c.Input.Limit <= 0 {
			add("input limit must be > 0 for watch input")
		}
	default:
		add("unknown input mode %q", c.Input.Mode)
	}

	if !reconcile.Mode(c.Reconcile.Mode).IsValid() {
		add("unknown reconcile mode %q", c.Reconcile.Mode)
	}
	if c.Reconcile.Concurrency < 1 {
		add("concurrency must be >= 1")
	}

	switch c.Output.Sink {
	case SinkJSON, SinkMemory:
	case SinkPostgres:
		if c.Postgres.DSN == "" {
			add("postgres dsn is required (set %s)", EnvPostgresDSN)
		}
	case SinkClickHouse:
		if c.ClickHouse.DSN == "" {
			add("clickhouse dsn is required (set %s)", EnvClickHouseDSN)
		}
	default:
		add("unknown sink %q", c.Output.Sink)
	}
	if (c.Output.Sink == SinkJSON || c.Output.Report) && c.Output.Dir == "" {
		add("output dir is required")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("unknown log format %q", c.Logging.Format)
	}

	return errs
}

// Comma returns the CSV delimiter as a rune.
func (c *Config) Comma() rune {
	r := []rune(c.Input.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}
