package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/event"
	"ammLedger/internal/fixed"
	"ammLedger/internal/token"
)

// Config holds the immutable settings of a pool.
type Config struct {
	Address common.Address
	Admin   common.Address
	Fee     *uint256.Int
	Tokens  token.Source
	Events  event.Sink
}

// Pool is a weighted multi-token pool. Every exported method is atomic: a
// failed call leaves both the registry and the token ledgers untouched.
type Pool struct {
	address common.Address
	admin   common.Address
	fee     *uint256.Int
	tokens  token.Source
	events  event.Sink

	mu      sync.Mutex
	reg     *Registry
	started bool
}

// SwapResult reports the amounts a swap actually moved.
type SwapResult struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// New creates an empty pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is nil")
	}
	fee := cfg.Fee
	if fee == nil {
		fee = fixed.Zero()
	}
	if !fee.Lt(fixed.One()) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFee, fixed.Format(fee))
	}
	return &Pool{
		address: cfg.Address,
		admin:   cfg.Admin,
		fee:     new(uint256.Int).Set(fee),
		tokens:  cfg.Tokens,
		events:  event.Or(cfg.Events),
		reg:     NewRegistry(),
	}, nil
}

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Admin() common.Address { return p.admin }

func (p *Pool) Fee() *uint256.Int { return new(uint256.Int).Set(p.fee) }

func (p *Pool) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Pool) TokenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.Len()
}

// TokenAt returns the i-th entry of the token list.
func (p *Pool) TokenAt(i int) (common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.At(i)
}

// Tokens returns the weight and balance held for address.
func (p *Pool) Tokens(address common.Address) (TokenInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.Get(address)
}

// TokenList returns the ordered token list.
func (p *Pool) TokenList() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.Addresses()
}

// StartPool seeds an empty pool with two tokens pulled from the admin.
func (p *Pool) StartPool(caller, tokenA common.Address, infoA TokenInfo, tokenB common.Address, infoB TokenInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.admin {
		return ErrAdminOnly
	}
	if p.started || p.reg.Len() > 0 {
		return fmt.Errorf("%w: already started", ErrInvalidPool)
	}
	if tokenA == tokenB {
		return fmt.Errorf("%w: duplicate token %s", ErrInvalidToken, tokenA.Hex())
	}
	for _, info := range []TokenInfo{infoA, infoB} {
		if info.Weight == nil || info.Balance == nil || info.Weight.IsZero() || info.Balance.IsZero() {
			return fmt.Errorf("%w: weight and balance must be positive", ErrInvalidAmount)
		}
	}
	total, err := fixed.Add(infoA.Weight, infoB.Weight)
	if err != nil || !total.Eq(fixed.One()) {
		return fmt.Errorf("%w: got %s", ErrInvalidWeights, fixed.Format(total))
	}

	next := NewRegistry()
	next.insert(tokenA, infoA.Clone())
	next.insert(tokenB, infoB.Clone())

	if err := p.settle([]move{
		p.pull(tokenA, caller, infoA.Balance),
		p.pull(tokenB, caller, infoB.Balance),
	}); err != nil {
		return err
	}

	p.reg = next
	p.started = true
	p.events.Publish(event.Event{
		Kind:      event.PoolStarted,
		Source:    p.address,
		Actor:     caller,
		TokenIn:   tokenA,
		TokenOut:  tokenB,
		AmountIn:  cloneInt(infoA.Balance),
		AmountOut: cloneInt(infoB.Balance),
		Attrs: map[string]string{
			"weight_a": fixed.Format(infoA.Weight),
			"weight_b": fixed.Format(infoB.Weight),
		},
	})
	return nil
}

// AddToken deposits newAmount of newToken. A new token enters at the price
// per weight of refToken; an existing token keeps its own price. Either way
// every other weight shrinks so the total stays 1. refAmount is unused.
func (p *Pool) AddToken(caller, newToken common.Address, newAmount *uint256.Int, refToken common.Address, refAmount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.admin {
		return ErrAdminOnly
	}
	if !p.started {
		return fmt.Errorf("%w: not started", ErrInvalidPool)
	}
	if newAmount == nil || newAmount.IsZero() {
		return fmt.Errorf("%w: zero deposit", ErrInvalidAmount)
	}

	next := p.reg.Clone()
	var (
		base TokenInfo
		err  error
	)
	existing := next.Has(newToken)
	if existing {
		base, err = next.Get(newToken)
	} else {
		base, err = next.Get(refToken)
	}
	if err != nil {
		return err
	}

	delta, err := weightDelta(newAmount, base)
	if err != nil {
		return fmt.Errorf("add token: %w", err)
	}
	if delta.IsZero() {
		return fmt.Errorf("%w: deposit too small to carry weight", ErrInvalidAmount)
	}
	divisor, err := fixed.Add(fixed.One(), delta)
	if err != nil {
		return fmt.Errorf("add token: %w", err)
	}

	if existing {
		balance, err := fixed.Add(base.Balance, newAmount)
		if err != nil {
			return fmt.Errorf("add token: %w", err)
		}
		next.set(newToken, TokenInfo{Weight: base.Weight, Balance: balance})
	} else {
		next.insert(newToken, TokenInfo{Weight: delta, Balance: cloneInt(newAmount)})
	}
	if err := next.normalize(divisor, newToken); err != nil {
		return fmt.Errorf("add token: %w", err)
	}

	if err := p.settle([]move{p.pull(newToken, caller, newAmount)}); err != nil {
		return err
	}

	p.reg = next
	info, _ := next.Get(newToken)
	p.events.Publish(event.Event{
		Kind:     event.TokenAdded,
		Source:   p.address,
		Actor:    caller,
		TokenIn:  newToken,
		AmountIn: cloneInt(newAmount),
		Attrs: map[string]string{
			"weight":   fixed.Format(info.Weight),
			"balance":  fixed.Format(info.Balance),
			"existing": fmt.Sprintf("%t", existing),
		},
	})
	return nil
}

// WithdrawToken sends amount of a member token to the admin. Emptying a token
// removes it from the list unless that would leave a single token.
func (p *Pool) WithdrawToken(caller, address common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.admin {
		return ErrAdminOnly
	}
	if !p.started {
		return fmt.Errorf("%w: not started", ErrInvalidPool)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: zero withdrawal", ErrInvalidAmount)
	}

	next := p.reg.Clone()
	info, err := next.Get(address)
	if err != nil {
		return err
	}
	if info.Balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, asked %s", ErrInsufficientBalance, address.Hex(), fixed.Format(info.Balance), fixed.Format(amount))
	}

	full := info.Balance.Eq(amount)
	if full && next.Len() <= 2 {
		return fmt.Errorf("%w: a pool keeps at least two tokens", ErrInvalidPool)
	}

	if full {
		divisor, err := fixed.Complement(info.Weight)
		if err != nil || divisor.IsZero() {
			return fmt.Errorf("%w: corrupt weight for %s", ErrInvalidPool, address.Hex())
		}
		slot := next.remove(address)
		if slot >= next.Len() {
			slot = next.Len() - 1
		}
		anchor, _ := next.At(slot)
		if err := next.normalize(divisor, anchor); err != nil {
			return fmt.Errorf("withdraw token: %w", err)
		}
	} else {
		delta, err := weightDelta(amount, info)
		if err != nil {
			return fmt.Errorf("withdraw token: %w", err)
		}
		divisor, err := fixed.Complement(delta)
		if err != nil || divisor.IsZero() {
			return fmt.Errorf("%w: withdrawal removes all weight", ErrInvalidAmount)
		}
		next.set(address, TokenInfo{Weight: info.Weight, Balance: new(uint256.Int).Sub(info.Balance, amount)})
		if err := next.normalize(divisor, address); err != nil {
			return fmt.Errorf("withdraw token: %w", err)
		}
	}

	if err := p.settle([]move{p.push(address, caller, amount)}); err != nil {
		return err
	}

	p.reg = next
	p.events.Publish(event.Event{
		Kind:      event.TokenWithdrawn,
		Source:    p.address,
		Actor:     caller,
		TokenOut:  address,
		AmountOut: cloneInt(amount),
		Attrs: map[string]string{
			"removed": fmt.Sprintf("%t", full),
		},
	})
	return nil
}

// Swap trades tokenIn for tokenOut. Exactly one of amountIn and amountOut is
// non-zero: a non-zero amountIn fixes the input, a non-zero amountOut fixes
// the output.
func (p *Pool) Swap(caller, tokenIn, tokenOut common.Address, amountIn, amountOut *uint256.Int) (SwapResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exactIn := amountIn != nil && !amountIn.IsZero()
	exactOut := amountOut != nil && !amountOut.IsZero()
	if exactIn == exactOut {
		return SwapResult{}, fmt.Errorf("%w: exactly one of amount in and amount out must be set", ErrInvalidAmount)
	}
	if tokenIn == tokenOut {
		return SwapResult{}, fmt.Errorf("%w: cannot swap %s for itself", ErrInvalidToken, tokenIn.Hex())
	}

	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return SwapResult{}, err
	}

	var result SwapResult
	if exactIn {
		result.AmountIn = cloneInt(amountIn)
		result.AmountOut, err = OutGivenIn(in, out, amountIn, p.fee)
	} else {
		result.AmountOut = cloneInt(amountOut)
		result.AmountIn, err = InGivenOut(in, out, amountOut, p.fee)
	}
	if err != nil {
		return SwapResult{}, err
	}
	if result.AmountIn.IsZero() || result.AmountOut.IsZero() {
		return SwapResult{}, fmt.Errorf("%w: swap too small to move the price", ErrInvalidAmount)
	}
	if !result.AmountOut.Lt(out.Balance) {
		return SwapResult{}, fmt.Errorf("%w: output drains %s", ErrInsufficientLiquidity, tokenOut.Hex())
	}

	newIn, err := fixed.Add(in.Balance, result.AmountIn)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap: %w", err)
	}
	next := p.reg.Clone()
	next.set(tokenIn, TokenInfo{Weight: in.Weight, Balance: newIn})
	next.set(tokenOut, TokenInfo{Weight: out.Weight, Balance: new(uint256.Int).Sub(out.Balance, result.AmountOut)})

	if err := p.settle([]move{
		p.pull(tokenIn, caller, result.AmountIn),
		p.push(tokenOut, caller, result.AmountOut),
	}); err != nil {
		return SwapResult{}, err
	}

	p.reg = next
	p.events.Publish(event.Event{
		Kind:      event.Swap,
		Source:    p.address,
		Actor:     caller,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  cloneInt(result.AmountIn),
		AmountOut: cloneInt(result.AmountOut),
		Attrs: map[string]string{
			"fee":       fixed.Format(p.fee),
			"exact_out": fmt.Sprintf("%t", exactOut),
		},
	})
	return result, nil
}

// GetPrice evaluates the spot price formula on caller-supplied records.
func (p *Pool) GetPrice(in, out TokenInfo, fee *uint256.Int) (*uint256.Int, error) {
	return SpotPrice(in, out, fee)
}

// Price is the spot price between two member tokens at the pool fee.
func (p *Pool) Price(tokenIn, tokenOut common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return SpotPrice(in, out, p.fee)
}

// QuoteExactIn returns the output a swap of amountIn would produce.
func (p *Pool) QuoteExactIn(tokenIn, tokenOut common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return OutGivenIn(in, out, amountIn, p.fee)
}

// QuoteExactOut returns the input a swap for amountOut would require.
func (p *Pool) QuoteExactOut(tokenIn, tokenOut common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, out, err := p.pair(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return InGivenOut(in, out, amountOut, p.fee)
}

func (p *Pool) pair(tokenIn, tokenOut common.Address) (TokenInfo, TokenInfo, error) {
	in, err := p.reg.Get(tokenIn)
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}
	out, err := p.reg.Get(tokenOut)
	if err != nil {
		return TokenInfo{}, TokenInfo{}, err
	}
	return in, out, nil
}
