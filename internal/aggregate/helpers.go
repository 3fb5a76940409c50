package aggregate

import (
	"math/big"
	"strings"
)

var feeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// feeFromAmount charges feeRate (18-decimal fixed point) on amountIn, truncating.
func feeFromAmount(amountIn *big.Int, feeRate *big.Int) *big.Int {
	if amountIn == nil || feeRate == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, feeRate)
	return fee.Quo(fee, feeScale)
}

func windowStart(block uint64, windowBlocks uint64) uint64 {
	return block - (block % windowBlocks)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

// minOpenWindowStart returns the earliest window start among accumulators
// that have not been flushed yet.
func minOpenWindowStart(acc map[string]*Accumulator) (uint64, bool) {
	var min uint64
	found := false
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if !found || entry.WindowStart < min {
			min = entry.WindowStart
			found = true
		}
	}
	return min, found
}
