package exchange

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/model"
)

// Quote is a read-only swap estimate against current pool balances.
type Quote struct {
	Pool      common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	SpotPrice *uint256.Int
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// Quote prices a swap described like a swap operation without applying it.
// With no amount only the spot price is returned. Caller is only needed
// when the pool is named by index.
func (e *Exchange) Quote(op model.Operation) (Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var caller common.Address
	if strings.TrimSpace(op.Caller) != "" {
		c, err := parseAccount("caller", op.Caller)
		if err != nil {
			return Quote{}, err
		}
		caller = c
	}

	p, err := e.pool(caller, op)
	if err != nil {
		return Quote{}, err
	}
	in, err := e.ledger("token", op.Token)
	if err != nil {
		return Quote{}, err
	}
	out, err := e.ledger("token_out", op.TokenOut)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{Pool: p.Address(), TokenIn: in.Address(), TokenOut: out.Address()}
	q.SpotPrice, err = p.Price(q.TokenIn, q.TokenOut)
	if err != nil {
		return Quote{}, fmt.Errorf("price: %w", err)
	}

	amount, err := optionalAmount("amount", op.Amount)
	if err != nil {
		return Quote{}, err
	}
	if amount.IsZero() {
		return q, nil
	}
	if op.ExactOut {
		q.AmountOut = amount
		q.AmountIn, err = p.QuoteExactOut(q.TokenIn, q.TokenOut, amount)
	} else {
		q.AmountIn = amount
		q.AmountOut, err = p.QuoteExactIn(q.TokenIn, q.TokenOut, amount)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("quote: %w", err)
	}
	return q, nil
}
