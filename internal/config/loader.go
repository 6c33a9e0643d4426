package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYPNL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYPNL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYPNL_CHAIN_RPC_URL")
	setUint64(&cfg.Chain.StartBlock, "POLYPNL_CHAIN_START_BLOCK")
	setUint64(&cfg.Chain.Confirmations, "POLYPNL_CHAIN_CONFIRMATIONS")
	setUint64(&cfg.Chain.BatchSize, "POLYPNL_CHAIN_BATCH_SIZE")
	setDuration(&cfg.Chain.PollInterval, "POLYPNL_CHAIN_POLL_INTERVAL")
	setInt(&cfg.Chain.MaxReorgDepth, "POLYPNL_CHAIN_MAX_REORG_DEPTH")

	// ── Contracts ──
	setStr(&cfg.Contracts.CTFExchange, "POLYPNL_CONTRACTS_CTF_EXCHANGE")
	setStr(&cfg.Contracts.NegRiskExchange, "POLYPNL_CONTRACTS_NEG_RISK_EXCHANGE")
	setStr(&cfg.Contracts.USDC, "POLYPNL_CONTRACTS_USDC")
	setStringSlice(&cfg.Contracts.Excluded, "POLYPNL_CONTRACTS_EXCLUDED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYPNL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYPNL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYPNL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYPNL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYPNL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYPNL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYPNL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYPNL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYPNL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYPNL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYPNL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYPNL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYPNL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYPNL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYPNL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYPNL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYPNL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYPNL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYPNL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYPNL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYPNL_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYPNL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYPNL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYPNL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYPNL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYPNL_S3_FORCE_PATH_STYLE")
	setUint64(&cfg.S3.FlushBlocks, "POLYPNL_S3_FLUSH_BLOCKS")

	// ── Sink ──
	setStr(&cfg.Sink.Params, "POLYPNL_SINK_PARAMS")

	// ── Backfill ──
	setUint64(&cfg.Backfill.From, "POLYPNL_BACKFILL_FROM")
	setUint64(&cfg.Backfill.To, "POLYPNL_BACKFILL_TO")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYPNL_MODE")
	setStr(&cfg.LogLevel, "POLYPNL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
