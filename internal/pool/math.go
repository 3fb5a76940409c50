package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammLedger/internal/fixed"
)

// SpotPrice is the fee-adjusted marginal price of out in terms of in:
//
//	(bI / wI) * (wO / bO) / (1 - fee)
func SpotPrice(in, out TokenInfo, fee *uint256.Int) (*uint256.Int, error) {
	if in.Weight.IsZero() || in.Balance.IsZero() || out.Weight.IsZero() || out.Balance.IsZero() {
		return nil, fmt.Errorf("spot price: %w", fixed.ErrDivideByZero)
	}
	oneMinusFee, err := fixed.Complement(fee)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", ErrInvalidFee)
	}

	perWeight, err := fixed.Div(in.Balance, in.Weight)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", err)
	}
	ratio, overflow := new(uint256.Int).MulDivOverflow(perWeight, out.Weight, out.Balance)
	if overflow {
		return nil, fmt.Errorf("spot price: %w", fixed.ErrOverflow)
	}
	price, err := fixed.Div(ratio, oneMinusFee)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", err)
	}
	return price, nil
}

// OutGivenIn solves the weighted invariant for an exact input:
//
//	aO = bO * (1 - (bI / (bI + aI*(1-fee)))^(wI/wO))
func OutGivenIn(in, out TokenInfo, amountIn, fee *uint256.Int) (*uint256.Int, error) {
	oneMinusFee, err := fixed.Complement(fee)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", ErrInvalidFee)
	}
	adjusted, err := fixed.Mul(amountIn, oneMinusFee)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	denom, err := fixed.Add(in.Balance, adjusted)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	base, err := fixed.Div(in.Balance, denom)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	exponent, err := fixed.Div(in.Weight, out.Weight)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	power, err := fixed.Pow(base, exponent)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	share, err := fixed.Complement(power)
	if err != nil {
		share = fixed.Zero()
	}
	amountOut, err := fixed.Mul(out.Balance, share)
	if err != nil {
		return nil, fmt.Errorf("out given in: %w", err)
	}
	return amountOut, nil
}

// InGivenOut solves the weighted invariant for an exact output:
//
//	aI = bI * ((bO / (bO - aO))^(wO/wI) - 1) / (1 - fee)
func InGivenOut(in, out TokenInfo, amountOut, fee *uint256.Int) (*uint256.Int, error) {
	if !amountOut.Lt(out.Balance) {
		return nil, fmt.Errorf("in given out: %w: %w", ErrInsufficientLiquidity, fixed.ErrInvalidExponent)
	}
	oneMinusFee, err := fixed.Complement(fee)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", ErrInvalidFee)
	}
	remaining := new(uint256.Int).Sub(out.Balance, amountOut)
	base, err := fixed.Div(out.Balance, remaining)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", err)
	}
	exponent, err := fixed.Div(out.Weight, in.Weight)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", err)
	}
	power, err := fixed.Pow(base, exponent)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", err)
	}
	growth, err := fixed.Sub(power, fixed.One())
	if err != nil {
		growth = fixed.Zero()
	}
	gross, err := fixed.Mul(in.Balance, growth)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", err)
	}
	amountIn, err := fixed.Div(gross, oneMinusFee)
	if err != nil {
		return nil, fmt.Errorf("in given out: %w", err)
	}
	return amountIn, nil
}

// weightDelta is the weight that amount carries at the price of (weight, balance).
func weightDelta(amount *uint256.Int, info TokenInfo) (*uint256.Int, error) {
	if info.Balance.IsZero() {
		return nil, fixed.ErrDivideByZero
	}
	delta, overflow := new(uint256.Int).MulDivOverflow(amount, info.Weight, info.Balance)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return delta, nil
}
