package pool

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/token"
)

// move is one token transfer performed on behalf of the pool.
type move struct {
	token  common.Address
	from   common.Address
	to     common.Address
	amount *uint256.Int
	pull   bool
}

func (p *Pool) pull(address, from common.Address, amount *uint256.Int) move {
	return move{token: address, from: from, to: p.address, amount: amount, pull: true}
}

func (p *Pool) push(address, to common.Address, amount *uint256.Int) move {
	return move{token: address, from: p.address, to: to, amount: amount}
}

// settle performs every move or none of them. Journaled tokens are rolled
// back when a later move fails.
func (p *Pool) settle(moves []move) error {
	resolved := make(map[common.Address]token.Token, len(moves))
	for _, m := range moves {
		if _, ok := resolved[m.token]; ok {
			continue
		}
		tok, err := p.tokens.Token(m.token)
		if err != nil {
			return fmt.Errorf("resolve token %s: %w", m.token.Hex(), err)
		}
		resolved[m.token] = tok
	}
	return settleMoves(p.address, resolved, moves)
}

func settleMoves(spender common.Address, resolved map[common.Address]token.Token, moves []move) error {
	addresses := make([]common.Address, 0, len(resolved))
	for address := range resolved {
		addresses = append(addresses, address)
	}
	sort.Slice(addresses, func(i, j int) bool { return addresses[i].Cmp(addresses[j]) < 0 })

	type snapshot struct {
		journal token.Journaled
		id      int
	}
	snapshots := make([]snapshot, 0, len(addresses))
	for _, address := range addresses {
		if j, ok := resolved[address].(token.Journaled); ok {
			snapshots = append(snapshots, snapshot{journal: j, id: j.Snapshot()})
		}
	}

	var failed error
	for _, m := range moves {
		if m.amount == nil || m.amount.IsZero() {
			continue
		}
		tok := resolved[m.token]
		var err error
		if m.pull {
			err = tok.TransferFrom(spender, m.from, m.to, m.amount)
		} else {
			err = tok.Transfer(m.from, m.to, m.amount)
		}
		if err != nil {
			failed = fmt.Errorf("transfer %s: %w", m.token.Hex(), err)
			break
		}
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		if failed != nil {
			snapshots[i].journal.RevertToSnapshot(snapshots[i].id)
		} else {
			snapshots[i].journal.Release(snapshots[i].id)
		}
	}
	return failed
}
