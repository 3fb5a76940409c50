package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ammLedger/internal/pool"
	"ammLedger/internal/token"
)

// State is a detached copy of the factory and every pool it holds.
type State struct {
	Nonce  uint64
	Owners map[common.Address][]common.Address
	Pools  []pool.State
}

func (f *Factory) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st := State{
		Nonce:  f.nonce,
		Owners: make(map[common.Address][]common.Address, len(f.owners)),
		Pools:  make([]pool.State, 0, len(f.pools)),
	}
	for owner, list := range f.owners {
		st.Owners[owner] = append([]common.Address(nil), list...)
	}
	for _, address := range token.SortedAccounts(f.pools) {
		st.Pools = append(st.Pools, f.pools[address].State())
	}
	return st
}

// Restore rebuilds a factory from cfg and a saved State.
func Restore(cfg Config, st State) (*Factory, error) {
	f, err := New(cfg)
	if err != nil {
		return nil, err
	}
	f.nonce = st.Nonce

	for _, ps := range st.Pools {
		p, err := pool.Restore(pool.Config{Tokens: cfg.Tokens, Events: f.events}, ps)
		if err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", ps.Address.Hex(), err)
		}
		f.pools[ps.Address] = p
	}

	for owner, list := range st.Owners {
		for _, address := range list {
			p, ok := f.pools[address]
			if !ok {
				return nil, fmt.Errorf("%w: %s listed for %s", ErrUnknownPool, address.Hex(), owner.Hex())
			}
			if p.Admin() != owner {
				return nil, fmt.Errorf("pool %s is administered by %s, listed for %s", address.Hex(), p.Admin().Hex(), owner.Hex())
			}
		}
		f.owners[owner] = append([]common.Address(nil), list...)
	}
	return f, nil
}
