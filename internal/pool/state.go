package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/fixed"
)

// TokenState is one registry entry in list order.
type TokenState struct {
	Address common.Address
	Weight  *uint256.Int
	Balance *uint256.Int
}

// State is a detached copy of a pool.
type State struct {
	Address common.Address
	Admin   common.Address
	Fee     *uint256.Int
	Started bool
	Tokens  []TokenState
}

// State returns a copy of the pool's current state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{
		Address: p.address,
		Admin:   p.admin,
		Fee:     new(uint256.Int).Set(p.fee),
		Started: p.started,
		Tokens:  make([]TokenState, 0, p.reg.Len()),
	}
	for _, address := range p.reg.list {
		info := p.reg.tokens[address]
		st.Tokens = append(st.Tokens, TokenState{
			Address: address,
			Weight:  cloneInt(info.Weight),
			Balance: cloneInt(info.Balance),
		})
	}
	return st
}

// Restore rebuilds a pool from a State. Address, admin and fee come from st.
func Restore(cfg Config, st State) (*Pool, error) {
	cfg.Address = st.Address
	cfg.Admin = st.Admin
	cfg.Fee = st.Fee
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}

	for _, ts := range st.Tokens {
		if p.reg.Has(ts.Address) {
			return nil, fmt.Errorf("%w: duplicate token %s", ErrInvalidToken, ts.Address.Hex())
		}
		p.reg.insert(ts.Address, TokenInfo{Weight: cloneInt(ts.Weight), Balance: cloneInt(ts.Balance)})
	}
	if st.Started {
		if p.reg.Len() < 2 {
			return nil, fmt.Errorf("%w: started pool with %d tokens", ErrInvalidPool, p.reg.Len())
		}
		total, err := p.reg.TotalWeight()
		if err != nil || !total.Eq(fixed.One()) {
			return nil, fmt.Errorf("%w: restored weights sum to %s", ErrInvalidWeights, fixed.Format(total))
		}
	} else if p.reg.Len() > 0 {
		return nil, fmt.Errorf("%w: unstarted pool holds tokens", ErrInvalidPool)
	}
	p.started = st.Started
	return p, nil
}

// Drain sends every balance to the admin and empties the registry. It is
// used when a pool is destroyed.
func (p *Pool) Drain(caller common.Address) ([]TokenState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.admin {
		return nil, ErrAdminOnly
	}

	swept := make([]TokenState, 0, p.reg.Len())
	moves := make([]move, 0, p.reg.Len())
	for _, address := range p.reg.list {
		info := p.reg.tokens[address]
		swept = append(swept, TokenState{Address: address, Weight: cloneInt(info.Weight), Balance: cloneInt(info.Balance)})
		moves = append(moves, p.push(address, p.admin, info.Balance))
	}
	if err := p.settle(moves); err != nil {
		return nil, err
	}

	p.reg = NewRegistry()
	p.started = false
	return swept, nil
}
