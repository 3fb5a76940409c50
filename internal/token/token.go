package token

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
	ErrFrozen                = errors.New("account frozen")
	ErrUnknownToken          = errors.New("unknown token")
)

// Token is the fungible-balance capability consumed by pools and games.
// The acting account is always explicit.
type Token interface {
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// Journaled tokens can undo every change made since a snapshot. A snapshot
// must be closed with either RevertToSnapshot or Release.
type Journaled interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Release(id int)
}

// Source resolves token addresses to capabilities.
type Source interface {
	Token(address common.Address) (Token, error)
}
