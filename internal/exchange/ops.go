package exchange

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/fixed"
	"ammLedger/internal/model"
	"ammLedger/internal/pool"
	"ammLedger/internal/token"
)

func (e *Exchange) deployToken(caller common.Address, op model.Operation) (Result, error) {
	symbol := strings.TrimSpace(op.Symbol)
	if symbol == "" {
		return Result{}, fmt.Errorf("%w: symbol is required", ErrInvalidOperation)
	}
	supply, err := optionalAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}

	if !supply.IsZero() && caller == (common.Address{}) {
		return Result{}, token.ErrZeroAddress
	}

	ledger := e.bank.Deploy(caller, symbol)
	if !supply.IsZero() {
		if err := ledger.Mint(caller, supply); err != nil {
			e.bank.Undeploy(caller, ledger.Address())
			return Result{}, err
		}
	}
	return Result{Address: ledger.Address(), AmountOut: supply}, nil
}

func (e *Exchange) mint(caller common.Address, op model.Operation) (Result, error) {
	ledger, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	to, err := e.recipient(caller, op)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: to, AmountOut: amount}, ledger.Mint(to, amount)
}

func (e *Exchange) approve(caller common.Address, op model.Operation) (Result, error) {
	ledger, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	spender, err := e.spender(caller, op)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: spender, AmountOut: amount}, ledger.Approve(caller, spender, amount)
}

func (e *Exchange) transfer(caller common.Address, op model.Operation) (Result, error) {
	ledger, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	to, err := parseAccount("to", op.To)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: to, AmountOut: amount}, ledger.Transfer(caller, to, amount)
}

func (e *Exchange) createPool(caller common.Address, op model.Operation) (Result, error) {
	var (
		address common.Address
		err     error
	)
	if op.Fee == "" {
		address, err = e.factory.CreatePool(caller)
	} else {
		var fee *uint256.Int
		fee, err = fixed.Parse(op.Fee)
		if err != nil {
			return Result{}, fmt.Errorf("%w: fee: %w", ErrInvalidOperation, err)
		}
		address, err = e.factory.CreatePoolWithFee(caller, fee)
	}
	return Result{Address: address}, err
}

func (e *Exchange) destroyPool(caller common.Address, op model.Operation) (Result, error) {
	if op.Index == nil {
		return Result{}, fmt.Errorf("%w: index is required", ErrInvalidOperation)
	}
	address, err := e.factory.DestroyPool(caller, *op.Index)
	return Result{Address: address}, err
}

func (e *Exchange) startPool(caller common.Address, op model.Operation) (Result, error) {
	p, err := e.pool(caller, op)
	if err != nil {
		return Result{}, err
	}
	tokenA, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	tokenB, err := e.ledger("token_b", op.TokenB)
	if err != nil {
		return Result{}, err
	}
	infoA, err := pool.NewTokenInfo(op.Weight, op.Amount)
	if err != nil {
		return Result{}, fmt.Errorf("%w: token: %w", ErrInvalidOperation, err)
	}
	infoB, err := pool.NewTokenInfo(op.WeightB, op.AmountB)
	if err != nil {
		return Result{}, fmt.Errorf("%w: token_b: %w", ErrInvalidOperation, err)
	}
	return Result{Address: p.Address()}, p.StartPool(caller, tokenA.Address(), infoA, tokenB.Address(), infoB)
}

func (e *Exchange) addToken(caller common.Address, op model.Operation) (Result, error) {
	p, err := e.pool(caller, op)
	if err != nil {
		return Result{}, err
	}
	newToken, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}

	ref := newToken.Address()
	if op.TokenB != "" {
		refLedger, err := e.ledger("token_b", op.TokenB)
		if err != nil {
			return Result{}, err
		}
		ref = refLedger.Address()
	}
	refAmount, err := optionalAmount("amount_b", op.AmountB)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: p.Address(), AmountIn: amount}, p.AddToken(caller, newToken.Address(), amount, ref, refAmount)
}

func (e *Exchange) withdrawToken(caller common.Address, op model.Operation) (Result, error) {
	p, err := e.pool(caller, op)
	if err != nil {
		return Result{}, err
	}
	ledger, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: p.Address(), AmountOut: amount}, p.WithdrawToken(caller, ledger.Address(), amount)
}

func (e *Exchange) swap(caller common.Address, op model.Operation) (Result, error) {
	p, err := e.pool(caller, op)
	if err != nil {
		return Result{}, err
	}
	in, err := e.ledger("token", op.Token)
	if err != nil {
		return Result{}, err
	}
	out, err := e.ledger("token_out", op.TokenOut)
	if err != nil {
		return Result{}, err
	}
	amount, err := requiredAmount("amount", op.Amount)
	if err != nil {
		return Result{}, err
	}

	var res pool.SwapResult
	if op.ExactOut {
		res, err = p.Swap(caller, in.Address(), out.Address(), nil, amount)
	} else {
		res, err = p.Swap(caller, in.Address(), out.Address(), amount, nil)
	}
	if err != nil {
		return Result{}, err
	}
	e.metrics.swapped(p.Address().Hex(), in.Symbol(), res.AmountIn)
	return Result{Address: p.Address(), AmountIn: res.AmountIn, AmountOut: res.AmountOut}, nil
}

func (e *Exchange) advanceBlocks(op model.Operation) (Result, error) {
	n := op.Blocks
	if n == 0 {
		n = 1
	}
	e.block.Add(n)
	return Result{}, nil
}

func (e *Exchange) generateCard(caller common.Address, op model.Operation) (Result, error) {
	value := e.game.Price()
	if op.Amount != "" {
		v, err := fixed.Parse(op.Amount)
		if err != nil {
			return Result{}, fmt.Errorf("%w: amount: %w", ErrInvalidOperation, err)
		}
		value = v
	}
	card, err := e.game.GenerateCard(caller, value)
	if err != nil {
		return Result{}, err
	}
	return Result{Address: e.game.Address(), AmountIn: value, Card: &card}, nil
}

// pool resolves op.Pool as an address, or op.Index into caller's pool list.
func (e *Exchange) pool(caller common.Address, op model.Operation) (*pool.Pool, error) {
	if op.Pool != "" {
		address, err := parseAccount("pool", op.Pool)
		if err != nil {
			return nil, err
		}
		return e.factory.Pool(address)
	}
	if op.Index == nil {
		return nil, fmt.Errorf("%w: pool or index is required", ErrInvalidOperation)
	}
	pools := e.factory.GetPools(caller)
	if *op.Index < 0 || *op.Index >= len(pools) {
		return nil, fmt.Errorf("%w: pool index %d of %d", pool.ErrIndexOutOfRange, *op.Index, len(pools))
	}
	return e.factory.Pool(pools[*op.Index])
}

// spender is op.To, or the pool named by op.Pool or op.Index.
func (e *Exchange) spender(caller common.Address, op model.Operation) (common.Address, error) {
	if op.To != "" {
		return parseAccount("to", op.To)
	}
	p, err := e.pool(caller, op)
	if err != nil {
		return common.Address{}, err
	}
	return p.Address(), nil
}

func (e *Exchange) recipient(caller common.Address, op model.Operation) (common.Address, error) {
	if op.To == "" {
		return caller, nil
	}
	return parseAccount("to", op.To)
}

func (e *Exchange) ledger(field, ref string) (*token.Ledger, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidOperation, field)
	}
	return e.bank.Resolve(ref)
}

func parseAccount(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrInvalidOperation, field, input)
	}
	return common.HexToAddress(input), nil
}

func requiredAmount(field, input string) (*uint256.Int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidOperation, field)
	}
	return optionalAmount(field, input)
}

func optionalAmount(field, input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	v, err := fixed.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOperation, field, err)
	}
	return v, nil
}
