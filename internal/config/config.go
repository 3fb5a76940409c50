package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMM"

// ExchangeSettings describes a fresh exchange. Amounts are decimal strings.
type ExchangeSettings struct {
	Admin            string
	FactoryAddress   string
	GameAddress      string
	DefaultFee       string
	SweepOnDestroy   bool
	MaxPoolsPerOwner int
	CardPrice        string
	GameTimeout      uint64
	Seed             string
	StartBlock       uint64
}

// ApplyConfig holds configuration for the apply command.
type ApplyConfig struct {
	In                string
	FromLine          uint64
	ToLine            uint64
	BatchSize         uint64
	EventsOut         string
	FailuresOut       string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	StopOnError       bool
	PGDSN             string
	PGMigrate         bool
	MetricsAddr       string
	LogLevel          string
	Exchange          ExchangeSettings
}

// LoadApply merges config file, environment variables, and flags into ApplyConfig.
func LoadApply(cfgFile string, flags *pflag.FlagSet) (ApplyConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":          uint64(500),
		"events-out":          "./data/events.jsonl",
		"failures-out":        "./data/failures.jsonl",
		"checkpoint":          "./data/checkpoint.json",
		"checkpoint-enabled":  true,
		"max-retries":         5,
		"retry-backoff":       500 * time.Millisecond,
		"pg-migrate":          true,
		"log-level":           "info",
		"admin":               "0x0000000000000000000000000000000000000ad1",
		"factory-address":     "0x00000000000000000000000000000000000fac70",
		"game-address":        "0x00000000000000000000000000000000000b1960",
		"default-fee":         "0.003",
		"sweep-on-destroy":    true,
		"max-pools-per-owner": 0,
		"card-price":          "0.1",
		"game-timeout":        uint64(100),
	})
	if err != nil {
		return ApplyConfig{}, err
	}

	cfg := ApplyConfig{
		In:                v.GetString("in"),
		FromLine:          v.GetUint64("from"),
		ToLine:            v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		EventsOut:         v.GetString("events-out"),
		FailuresOut:       v.GetString("failures-out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		StopOnError:       v.GetBool("stop-on-error"),
		PGDSN:             v.GetString("pg-dsn"),
		PGMigrate:         v.GetBool("pg-migrate"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
		Exchange: ExchangeSettings{
			Admin:            v.GetString("admin"),
			FactoryAddress:   v.GetString("factory-address"),
			GameAddress:      v.GetString("game-address"),
			DefaultFee:       v.GetString("default-fee"),
			SweepOnDestroy:   v.GetBool("sweep-on-destroy"),
			MaxPoolsPerOwner: v.GetInt("max-pools-per-owner"),
			CardPrice:        v.GetString("card-price"),
			GameTimeout:      v.GetUint64("game-timeout"),
			Seed:             v.GetString("seed"),
			StartBlock:       v.GetUint64("start-block"),
		},
	}

	return cfg, nil
}

// newViper layers defaults, environment (AMM_ prefix), flags and an optional
// config file. Without cfgFile a config.* in the working directory is read
// when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// RedactDSN hides credentials in a Postgres DSN for logging.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
