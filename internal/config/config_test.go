package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadApplyLayers(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "amm.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("in: ops.jsonl\nbatch-size: 50\ndefault-fee: \"0.01\"\n"), 0o644))
	t.Setenv("AMM_MAX_RETRIES", "9")

	flags := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	flags.Uint64("batch-size", 500, "")
	flags.Duration("retry-backoff", time.Second, "")
	require.NoError(t, flags.Parse([]string{"--batch-size=7"}))

	cfg, err := LoadApply(cfgFile, flags)
	require.NoError(t, err)
	assert.Equal(t, "ops.jsonl", cfg.In)
	assert.Equal(t, uint64(7), cfg.BatchSize)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "0.01", cfg.Exchange.DefaultFee)
	assert.Equal(t, uint64(100), cfg.Exchange.GameTimeout)
	assert.True(t, cfg.CheckpointEnabled)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := LoadAggregate(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")
}

func TestLoadReconcilePools(t *testing.T) {
	t.Setenv("AMM_POOL", " 0xa, ,0xb ")
	cfg, err := LoadReconcile("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, cfg.Pools)
	assert.Equal(t, "./data/checkpoint.json", cfg.Checkpoint)
}

func TestLoadQuoteDefaults(t *testing.T) {
	cfg, err := LoadQuote("", nil)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Index)
	assert.Equal(t, "info", cfg.LogLevel)
}
