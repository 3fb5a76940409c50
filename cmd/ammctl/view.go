package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammLedger/internal/config"
	"ammLedger/internal/exchange"
	"ammLedger/internal/fixed"
	"ammLedger/internal/model"
	"ammLedger/internal/runner"
)

type quoteOutput struct {
	Block     uint64 `json:"block"`
	Pool      string `json:"pool"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	SpotPrice string `json:"spot_price"`
	AmountIn  string `json:"amount_in,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
}

type bingoOutput struct {
	Block        uint64   `json:"block"`
	Game         string   `json:"game"`
	Running      bool     `json:"running"`
	Pot          string   `json:"pot"`
	Players      []string `json:"players"`
	TimeLastCard uint64   `json:"time_last_card"`
	Called       []int    `json:"called,omitempty"`
	OneLine      []string `json:"one_line_winners,omitempty"`
	FullHouse    []string `json:"full_house_winners,omitempty"`
	Player       string   `json:"player,omitempty"`
	Card         string   `json:"card,omitempty"`
	Prize        string   `json:"prize,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ex, err := loadCheckpoint(cfg.Checkpoint, logger)
	if err != nil {
		return err
	}

	op := model.Operation{
		Caller:   cfg.Caller,
		Pool:     cfg.Pool,
		Token:    cfg.TokenIn,
		TokenOut: cfg.TokenOut,
		Amount:   cfg.Amount,
		ExactOut: cfg.ExactOut,
	}
	if cfg.Index >= 0 {
		op.Index = &cfg.Index
	}
	q, err := ex.Quote(op)
	if err != nil {
		return err
	}

	out := quoteOutput{
		Block:     ex.BlockNumber(),
		Pool:      q.Pool.Hex(),
		TokenIn:   q.TokenIn.Hex(),
		TokenOut:  q.TokenOut.Hex(),
		SpotPrice: fixed.Format(q.SpotPrice),
	}
	if q.AmountIn != nil {
		out.AmountIn = fixed.Format(q.AmountIn)
		out.AmountOut = fixed.Format(q.AmountOut)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func runBingo(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBingo(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ex, err := loadCheckpoint(cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	game := ex.Game()

	out := bingoOutput{
		Block:        ex.BlockNumber(),
		Game:         game.Address().Hex(),
		Running:      game.Running(),
		Pot:          fixed.Format(game.Pot()),
		Players:      []string{},
		TimeLastCard: game.TimeLastCard(),
		OneLine:      hexStrings(game.OneLineWinners()),
		FullHouse:    hexStrings(game.FullHouseWinners()),
	}
	for i := 0; i < game.NumberOfPlayers(); i++ {
		player, err := game.Players(i)
		if err != nil {
			return err
		}
		out.Players = append(out.Players, player.Hex())
	}
	for _, n := range game.CalledNumbers() {
		out.Called = append(out.Called, int(n))
	}

	if cfg.Player != "" {
		if !common.IsHexAddress(cfg.Player) {
			return fmt.Errorf("invalid player address: %s", cfg.Player)
		}
		player := common.HexToAddress(cfg.Player)
		out.Player = player.Hex()
		out.Prize = fixed.Format(game.Prize(player))
		if card, ok := game.Card(player); ok {
			out.Card = card.String()
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// loadCheckpoint rebuilds an exchange from the snapshot stored in a checkpoint.
func loadCheckpoint(path string, logger *zap.Logger) (*exchange.Exchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	cp, ok, err := runner.NewCheckpointStore(path, true).Load()
	if err != nil {
		return nil, err
	}
	if !ok || cp.Snapshot == nil {
		return nil, fmt.Errorf("no snapshot in checkpoint %s", path)
	}

	exCfg, err := exchange.ConfigFromSnapshot(*cp.Snapshot)
	if err != nil {
		return nil, err
	}
	ex, err := exchange.New(exCfg, nil, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := ex.Restore(*cp.Snapshot); err != nil {
		return nil, fmt.Errorf("restore checkpoint: %w", err)
	}
	logger.Debug("checkpoint loaded",
		zap.String("path", path),
		zap.Uint64("last_applied", cp.LastAppliedLine),
		zap.Uint64("block", ex.BlockNumber()),
	)
	return ex, nil
}

func hexStrings(list []common.Address) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Hex())
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
