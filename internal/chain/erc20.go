package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"inputs": [{"name": "owner", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

func getERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

func (c *Client) callERC20(ctx context.Context, token common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if c == nil || c.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := getERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return values, nil
}

// BalanceOf reads token.balanceOf(owner) at block; a nil block means latest.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	values, err := c.callERC20(ctx, token, "balanceOf", block, owner)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unsupported type %T", values[0])
	}
	return balance, nil
}

// Decimals reads token.decimals(), caching the answer per token.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.RLock()
	decimals, ok := c.decimals[token]
	c.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	values, err := c.callERC20(ctx, token, "decimals", nil)
	if err != nil {
		return 0, err
	}
	decimals, ok = values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unsupported type %T", values[0])
	}

	c.mu.Lock()
	c.decimals[token] = decimals
	c.mu.Unlock()
	return decimals, nil
}

// Symbol reads token.symbol().
func (c *Client) Symbol(ctx context.Context, token common.Address) (string, error) {
	values, err := c.callERC20(ctx, token, "symbol", nil)
	if err != nil {
		return "", err
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unsupported type %T", values[0])
	}
	return symbol, nil
}
