package aggregate

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"ammLedger/internal/fixed"
	"ammLedger/internal/model"
)

// TokenTotals holds swap activity of one token inside a pool window.
type TokenTotals struct {
	SwapCount uint64
	VolumeIn  *big.Int
	VolumeOut *big.Int
	Fee       *big.Int
}

func newTokenTotals() *TokenTotals {
	return &TokenTotals{
		VolumeIn:  big.NewInt(0),
		VolumeOut: big.NewInt(0),
		Fee:       big.NewInt(0),
	}
}

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolAddress string
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	FirstBlock  uint64
	LastBlock   uint64
	Tokens      map[string]*TokenTotals
}

func NewAccumulator(record model.EventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress: record.Source,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		FirstBlock:  record.Block,
		LastBlock:   record.Block,
		Tokens:      make(map[string]*TokenTotals),
	}
}

func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if record.Block > a.LastBlock {
		a.LastBlock = record.Block
	}
	if record.Block < a.FirstBlock {
		a.FirstBlock = record.Block
	}

	switch strings.ToLower(record.Kind) {
	case swapKind:
		return a.applySwap(record)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(record model.EventRecord) error {
	if record.TokenIn == "" || record.TokenOut == "" {
		return fmt.Errorf("swap %d: missing token", record.Seq)
	}
	amountIn, err := parseBigInt(record.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(record.AmountOut)
	if err != nil {
		return err
	}
	feeRate, err := parseFeeRate(record.Attrs["fee"])
	if err != nil {
		return err
	}

	in := a.token(record.TokenIn)
	in.SwapCount++
	in.VolumeIn.Add(in.VolumeIn, amountIn)
	in.Fee.Add(in.Fee, feeFromAmount(amountIn, feeRate))

	out := a.token(record.TokenOut)
	out.SwapCount++
	out.VolumeOut.Add(out.VolumeOut, amountOut)

	a.SwapCount++
	return nil
}

func (a *Accumulator) token(address string) *TokenTotals {
	key := strings.ToLower(address)
	totals := a.Tokens[key]
	if totals == nil {
		totals = newTokenTotals()
		a.Tokens[key] = totals
	}
	return totals
}

// Metrics renders one row per token seen in the window, ordered by token.
func (a *Accumulator) Metrics(windowBlocks uint64) []model.PoolWindowMetrics {
	keys := make([]string, 0, len(a.Tokens))
	for key := range a.Tokens {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]model.PoolWindowMetrics, 0, len(keys))
	for _, key := range keys {
		totals := a.Tokens[key]
		rows = append(rows, model.PoolWindowMetrics{
			PoolAddress:  a.PoolAddress,
			TokenAddress: key,
			WindowBlocks: windowBlocks,
			WindowStart:  a.WindowStart,
			WindowEnd:    a.WindowEnd,
			SwapCount:    totals.SwapCount,
			VolumeIn:     formatTokenAmount(totals.VolumeIn, fixed.Decimals),
			VolumeOut:    formatTokenAmount(totals.VolumeOut, fixed.Decimals),
			Fee:          formatTokenAmount(totals.Fee, fixed.Decimals),
			FeeMethod:    feeMethodSwapFee,
		})
	}
	return rows
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

func parseFeeRate(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	rate, err := fixed.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("fee attr: %w", err)
	}
	return rate.ToBig(), nil
}
