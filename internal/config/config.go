// Package config defines the top-level configuration for the P&L indexer
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polypnl/internal/addrset"
	"github.com/alanyoungcy/polypnl/internal/extract"
	"github.com/alanyoungcy/polypnl/internal/sink"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYPNL_* environment
// variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Sink      SinkConfig      `toml:"sink"`
	Backfill  BackfillConfig  `toml:"backfill"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint and feed pacing parameters.
type ChainConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	StartBlock    uint64   `toml:"start_block"`
	Confirmations uint64   `toml:"confirmations"`
	BatchSize     uint64   `toml:"batch_size"`
	PollInterval  duration `toml:"poll_interval"`
	MaxReorgDepth int      `toml:"max_reorg_depth"`
}

// ContractsConfig holds the watched contract addresses and the excluded
// protocol address set. Empty fields fall back to the Polygon mainnet
// deployment.
type ContractsConfig struct {
	CTFExchange     string   `toml:"ctf_exchange"`
	NegRiskExchange string   `toml:"neg_risk_exchange"`
	USDC            string   `toml:"usdc"`
	Excluded        []string `toml:"excluded"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for fill archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	FlushBlocks    uint64 `toml:"flush_blocks"`
}

// SinkConfig holds sink-level parameters shared by all backends.
type SinkConfig struct {
	// Params is a "key=value&key=value" string; the only recognized key is
	// min_trade_size, a base-unit amount below which fills are not stored
	// as trade rows.
	Params string `toml:"params"`
}

// BackfillConfig holds the inclusive block range for backfill mode.
type BackfillConfig struct {
	From uint64 `toml:"from"`
	To   uint64 `toml:"to"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Confirmations: 12,
			BatchSize:     100,
			PollInterval:  duration{2 * time.Second},
			MaxReorgDepth: 64,
		},
		Contracts: ContractsConfig{
			CTFExchange:     extract.DefaultCTFExchange,
			NegRiskExchange: extract.DefaultNegRiskExchange,
			USDC:            extract.DefaultUSDC,
			Excluded:        addrset.DefaultExcluded,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:      "us-east-1",
			FlushBlocks: 100,
		},
		Mode:     "index",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"index":    true,
	"backfill": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: index, backfill)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.BatchSize < 1 {
		errs = append(errs, "chain: batch_size must be >= 1")
	}
	if c.Chain.PollInterval.Duration <= 0 {
		errs = append(errs, "chain: poll_interval must be positive")
	}
	if c.Chain.MaxReorgDepth < 1 {
		errs = append(errs, "chain: max_reorg_depth must be >= 1")
	}

	// Backfill range
	if strings.ToLower(c.Mode) == "backfill" && c.Backfill.To < c.Backfill.From {
		errs = append(errs, fmt.Sprintf("backfill: to (%d) must be >= from (%d)", c.Backfill.To, c.Backfill.From))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Sink params
	if _, err := sink.ParseParams(c.Sink.Params); err != nil {
		errs = append(errs, fmt.Sprintf("sink: params: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
