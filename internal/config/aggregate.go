package config

import (
	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Input         string
	WindowBlocks  uint64
	PGDSN         string
	PGMigrate     bool
	BatchSize     int
	StateFile     string
	RecomputeFrom uint64
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":            "./data/events.jsonl",
		"window-blocks": uint64(100),
		"batch-size":    1000,
		"pg-migrate":    true,
		"log-level":     "info",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		Input:         v.GetString("in"),
		WindowBlocks:  v.GetUint64("window-blocks"),
		PGDSN:         v.GetString("pg-dsn"),
		PGMigrate:     v.GetBool("pg-migrate"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetUint64("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
