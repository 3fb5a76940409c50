package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Checkpoint string
	Pool       string
	Caller     string
	Index      int
	TokenIn    string
	TokenOut   string
	Amount     string
	ExactOut   bool
	LogLevel   string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"checkpoint": "./data/checkpoint.json",
		"index":      -1,
		"log-level":  "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Checkpoint: v.GetString("checkpoint"),
		Pool:       v.GetString("pool"),
		Caller:     v.GetString("caller"),
		Index:      v.GetInt("index"),
		TokenIn:    v.GetString("token-in"),
		TokenOut:   v.GetString("token-out"),
		Amount:     v.GetString("amount"),
		ExactOut:   v.GetBool("exact-out"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// BingoConfig holds configuration for the bingo command.
type BingoConfig struct {
	Checkpoint string
	Player     string
	LogLevel   string
}

// LoadBingo merges config file, environment variables, and flags into BingoConfig.
func LoadBingo(cfgFile string, flags *pflag.FlagSet) (BingoConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"checkpoint": "./data/checkpoint.json",
		"log-level":  "info",
	})
	if err != nil {
		return BingoConfig{}, err
	}

	return BingoConfig{
		Checkpoint: v.GetString("checkpoint"),
		Player:     v.GetString("player"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	RPCURL     string
	Checkpoint string
	Block      uint64
	Pools      []string
	LogLevel   string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"checkpoint": "./data/checkpoint.json",
		"log-level":  "info",
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	return ReconcileConfig{
		RPCURL:     v.GetString("rpc"),
		Checkpoint: v.GetString("checkpoint"),
		Block:      v.GetUint64("block"),
		Pools:      getStringSlice(v, "pool"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}
