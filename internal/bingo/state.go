package bingo

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is a detached copy of a game, including the current round.
type State struct {
	Seed           common.Hash
	Running        bool
	Pot            *uint256.Int
	Players        []common.Address
	Cards          map[common.Address]Card
	FirstCardBlock uint64
	TimeLastCard   uint64
	Called         []uint8
	OneLine        []common.Address
	FullHouse      []common.Address
	Prizes         map[common.Address]*uint256.Int
}

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := State{
		Seed:           g.seed,
		Running:        g.running,
		Pot:            new(uint256.Int).Set(g.pot),
		Players:        append([]common.Address{}, g.players...),
		Cards:          make(map[common.Address]Card, len(g.cards)),
		FirstCardBlock: g.firstCardBlock,
		TimeLastCard:   g.timeLastCard,
		Called:         append([]uint8{}, g.called...),
		OneLine:        append([]common.Address{}, g.oneLine...),
		FullHouse:      append([]common.Address{}, g.fullHouse...),
		Prizes:         make(map[common.Address]*uint256.Int, len(g.prizes)),
	}
	for p, c := range g.cards {
		st.Cards[p] = c
	}
	for p, v := range g.prizes {
		st.Prizes[p] = new(uint256.Int).Set(v)
	}
	return st
}

// Restore rebuilds a game from cfg and a saved State. The line index is
// derived from the cards.
func Restore(cfg Config, st State) (*Game, error) {
	g, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if len(st.Cards) != len(st.Players) {
		return nil, fmt.Errorf("restore: %d cards for %d players", len(st.Cards), len(st.Players))
	}

	g.seed = st.Seed
	g.running = st.Running
	if st.Pot != nil {
		g.pot.Set(st.Pot)
	}
	g.firstCardBlock = st.FirstCardBlock
	g.timeLastCard = st.TimeLastCard
	g.called = append([]uint8(nil), st.Called...)
	g.oneLine = append([]common.Address(nil), st.OneLine...)
	g.fullHouse = append([]common.Address(nil), st.FullHouse...)

	for _, p := range st.Players {
		card, ok := st.Cards[p]
		if !ok {
			return nil, fmt.Errorf("restore: player %s has no card", p.Hex())
		}
		if !card.Valid() {
			return nil, fmt.Errorf("restore: invalid card %s for %s", card, p.Hex())
		}
		if _, dup := g.cards[p]; dup {
			return nil, fmt.Errorf("restore: %w: %s", ErrAlreadySubscribed, p.Hex())
		}
		g.players = append(g.players, p)
		g.cards[p] = card
		for l, line := range card {
			for _, n := range line {
				g.lines[l][n] = append(g.lines[l][n], p)
			}
		}
	}
	for p, v := range st.Prizes {
		if v != nil && !v.IsZero() {
			g.prizes[p] = new(uint256.Int).Set(v)
		}
	}
	return g, nil
}
