package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammLedger/internal/fixed"
	"ammLedger/internal/model"
)

// BalanceReader is the subset of Client used by Reconcile.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Mismatch is a pool token whose ledger balance differs from the chain.
type Mismatch struct {
	Pool     string `json:"pool"`
	Token    string `json:"token"`
	Symbol   string `json:"symbol,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Decimals uint8  `json:"decimals"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes a reconciliation pass.
type Report struct {
	Pools      int        `json:"pools"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Reconcile compares every started pool's recorded balances with the ERC-20
// balances held by the pool address on chain. Ledger balances carry 18
// decimals and are truncated to each token's on-chain decimals.
func Reconcile(ctx context.Context, reader BalanceReader, pools []model.Pool, block *big.Int, logger *zap.Logger) (Report, error) {
	if reader == nil {
		return Report{}, fmt.Errorf("balance reader is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	report := Report{Mismatches: []Mismatch{}}
	for _, pool := range pools {
		if !pool.Started {
			continue
		}
		if !common.IsHexAddress(pool.Address) {
			return report, fmt.Errorf("invalid pool address: %s", pool.Address)
		}
		poolAddr := common.HexToAddress(pool.Address)
		report.Pools++

		for _, tok := range pool.Tokens {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if !common.IsHexAddress(tok.Address) {
				return report, fmt.Errorf("invalid token address: %s", tok.Address)
			}
			tokenAddr := common.HexToAddress(tok.Address)

			balance, err := fixed.Parse(tok.Balance)
			if err != nil {
				return report, fmt.Errorf("pool %s token %s balance: %w", pool.Address, tok.Address, err)
			}

			decimals, err := reader.Decimals(ctx, tokenAddr)
			if err != nil {
				logger.Warn("token decimals", zap.String("token", tok.Address), zap.Error(err))
				decimals = fixed.Decimals
			}
			expected := scaleDecimals(balance.ToBig(), decimals)
			report.Checked++

			actual, err := reader.BalanceOf(ctx, tokenAddr, poolAddr, block)
			if err != nil {
				logger.Warn("balance fetch failed", zap.String("pool", pool.Address), zap.String("token", tok.Address), zap.Error(err))
				report.Mismatches = append(report.Mismatches, Mismatch{
					Pool:     pool.Address,
					Token:    tok.Address,
					Symbol:   tok.Symbol,
					Expected: expected.String(),
					Decimals: decimals,
					Error:    err.Error(),
				})
				continue
			}
			if actual.Cmp(expected) != 0 {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Pool:     pool.Address,
					Token:    tok.Address,
					Symbol:   tok.Symbol,
					Expected: expected.String(),
					Actual:   actual.String(),
					Decimals: decimals,
				})
			}
		}
	}
	return report, nil
}

// scaleDecimals converts an 18-decimal amount to decimals, truncating.
func scaleDecimals(value *big.Int, decimals uint8) *big.Int {
	out := new(big.Int).Set(value)
	switch {
	case decimals == fixed.Decimals:
		return out
	case decimals < fixed.Decimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fixed.Decimals-int(decimals))), nil)
		return out.Quo(out, factor)
	default:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(int(decimals)-fixed.Decimals)), nil)
		return out.Mul(out, factor)
	}
}
