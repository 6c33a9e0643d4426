package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://polygon-rpc.example"
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Database = "polypnl"
	return cfg
}

func TestValidateAcceptsReasonableConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingRPCURL(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.RPCURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRejectsInvertedBackfillRange(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "backfill"
	cfg.Backfill.From = 100
	cfg.Backfill.To = 50
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backfill")
}

func TestValidateRejectsBadSinkParams(t *testing.T) {
	cfg := validConfig()
	cfg.Sink.Params = "min_trade_size=abc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink")
}

func TestValidateSkipsDisabledBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	cfg.S3.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "backfill"
log_level = "debug"

[chain]
rpc_url = "wss://node.example"
start_block = 5000000
poll_interval = "5s"

[backfill]
from = 5000000
to = 5100000

[sink]
params = "min_trade_size=1000000"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backfill", cfg.Mode)
	assert.Equal(t, "wss://node.example", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(5000000), cfg.Chain.StartBlock)
	assert.Equal(t, 5*time.Second, cfg.Chain.PollInterval.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, uint64(12), cfg.Chain.Confirmations)
	assert.Equal(t, 64, cfg.Chain.MaxReorgDepth)
	assert.True(t, cfg.Postgres.RunMigrations)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[chain]\nrpc_url = \"https://file.example\"\n"), 0o600))

	t.Setenv("POLYPNL_CHAIN_RPC_URL", "https://env.example")
	t.Setenv("POLYPNL_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("POLYPNL_CHAIN_CONFIRMATIONS", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.Chain.RPCURL)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, uint64(30), cfg.Chain.Confirmations)
}
