package bingo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/event"
	"ammLedger/internal/token"
)

const DefaultTimeout = 100

// DefaultPrice is 0.1 of the native coin.
var DefaultPrice = uint256.NewInt(100_000_000_000_000_000)

// Clock reports the current block height.
type Clock interface {
	BlockNumber() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

func (f ClockFunc) BlockNumber() uint64 { return f() }

type Config struct {
	Address common.Address
	Price   *uint256.Int
	Timeout uint64
	Seed    common.Hash
	Coin    token.Token
	Clock   Clock
	Events  event.Sink
}

// Game runs rounds of bingo. A round accepts subscriptions while idle, calls
// numbers on StartGame and credits prizes on EndGame.
type Game struct {
	address common.Address
	price   *uint256.Int
	timeout uint64
	coin    token.Token
	clock   Clock
	events  event.Sink

	mu             sync.Mutex
	seed           common.Hash
	running        bool
	pot            *uint256.Int
	players        []common.Address
	cards          map[common.Address]Card
	lines          [LineCount][MaxNumber + 1][]common.Address
	firstCardBlock uint64
	timeLastCard   uint64
	called         []uint8
	oneLine        []common.Address
	fullHouse      []common.Address
	prizes         map[common.Address]*uint256.Int
}

func New(cfg Config) (*Game, error) {
	if cfg.Coin == nil {
		return nil, fmt.Errorf("coin is nil")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is nil")
	}
	if cfg.Price == nil || cfg.Price.IsZero() {
		cfg.Price = DefaultPrice
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Game{
		address: cfg.Address,
		price:   new(uint256.Int).Set(cfg.Price),
		timeout: cfg.Timeout,
		coin:    cfg.Coin,
		clock:   cfg.Clock,
		events:  event.Or(cfg.Events),
		seed:    cfg.Seed,
		pot:     new(uint256.Int),
		cards:   make(map[common.Address]Card),
		prizes:  make(map[common.Address]*uint256.Int),
	}, nil
}

func (g *Game) Address() common.Address { return g.address }

func (g *Game) Price() *uint256.Int { return new(uint256.Int).Set(g.price) }

func (g *Game) Timeout() uint64 { return g.timeout }

// GenerateCard subscribes caller to the next round, paying value into the pot.
func (g *Game) GenerateCard(caller common.Address, value *uint256.Int) (Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return Card{}, ErrGameOngoing
	}
	if value == nil || value.Lt(g.price) {
		return Card{}, ErrInsufficientFunds
	}
	if _, ok := g.cards[caller]; ok {
		return Card{}, ErrAlreadySubscribed
	}
	block := g.clock.BlockNumber()
	if len(g.players) > 0 && block > g.firstCardBlock+g.timeout {
		return Card{}, fmt.Errorf("%w: opened at block %d", ErrSubscriptionClosed, g.firstCardBlock)
	}

	if err := g.transfer(caller, g.address, value); err != nil {
		return Card{}, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}

	g.seed = nextSeed(g.seed, caller, block)
	card := newCard(g.seed)

	if len(g.players) == 0 {
		g.firstCardBlock = block
	}
	g.timeLastCard = block
	g.pot = new(uint256.Int).Add(g.pot, value)
	g.players = append(g.players, caller)
	g.cards[caller] = card
	for l, line := range card {
		for _, n := range line {
			g.lines[l][n] = append(g.lines[l][n], caller)
		}
	}

	g.events.Publish(event.Event{
		Kind:   event.SeedChanged,
		Source: g.address,
		Actor:  caller,
		Attrs:  map[string]string{"seed": g.seed.Hex()},
	})
	g.events.Publish(event.Event{
		Kind:     event.CardGenerated,
		Source:   g.address,
		Actor:    caller,
		AmountIn: new(uint256.Int).Set(value),
		Attrs:    map[string]string{"card": card.String()},
	})
	return card, nil
}

// StartGame calls numbers until at least one card is full. One-line winners
// are the players who completed a line on the first call that completed any.
func (g *Game) StartGame(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return ErrGameOngoing
	}
	if len(g.players) == 0 {
		return ErrNoPlayers
	}
	block := g.clock.BlockNumber()
	if block < g.timeLastCard+g.timeout {
		return fmt.Errorf("%w: opens at block %d", ErrTooEarly, g.timeLastCard+g.timeout)
	}

	g.seed = nextSeed(g.seed, caller, block)
	hits := make(map[common.Address]*[LineCount]int, len(g.players))
	full := make(map[common.Address]int, len(g.players))
	for _, p := range g.players {
		hits[p] = new([LineCount]int)
	}

	var oneLine, fullHouse []common.Address
	var calledNumbers []uint8
	for _, n := range callOrder(g.seed) {
		calledNumbers = append(calledNumbers, n)
		var lineDone []common.Address
		for l := 0; l < LineCount; l++ {
			for _, p := range g.lines[l][n] {
				hits[p][l]++
				if hits[p][l] != NumbersPerLine {
					continue
				}
				full[p]++
				if oneLine == nil {
					lineDone = appendUnique(lineDone, p)
				}
				if full[p] == LineCount {
					fullHouse = appendUnique(fullHouse, p)
				}
			}
		}
		if len(lineDone) > 0 {
			oneLine = lineDone
		}
		if len(fullHouse) > 0 {
			break
		}
	}

	g.running = true
	g.called = calledNumbers
	g.oneLine = oneLine
	g.fullHouse = fullHouse

	g.events.Publish(event.Event{
		Kind:   event.GameStarted,
		Source: g.address,
		Actor:  caller,
		Attrs: map[string]string{
			"players":            strconv.Itoa(len(g.players)),
			"calls":              strconv.Itoa(len(calledNumbers)),
			"one_line_winners":   joinAddresses(oneLine),
			"full_house_winners": joinAddresses(fullHouse),
		},
	})
	for i, n := range calledNumbers {
		g.events.Publish(event.Event{
			Kind:   event.NumberCalled,
			Source: g.address,
			Attrs:  map[string]string{"number": strconv.Itoa(int(n)), "call": strconv.Itoa(i + 1)},
		})
	}
	return nil
}

// EndGame splits the pot evenly among full-house winners, or among one-line
// winners when there are none, and resets the round. Undivided remainder
// stays in the pot for the next round.
func (g *Game) EndGame(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return ErrGameNotRunning
	}

	winners := g.fullHouse
	if len(winners) == 0 {
		winners = g.oneLine
	}
	share := new(uint256.Int)
	if len(winners) > 0 {
		count := uint256.NewInt(uint64(len(winners)))
		share.Div(g.pot, count)
		for _, w := range winners {
			g.prizes[w] = new(uint256.Int).Add(g.prizeLocked(w), share)
		}
		g.pot = new(uint256.Int).Sub(g.pot, new(uint256.Int).Mul(share, count))
	}

	g.events.Publish(event.Event{
		Kind:      event.GameEnded,
		Source:    g.address,
		Actor:     caller,
		AmountOut: share,
		Attrs: map[string]string{
			"winners":   joinAddresses(winners),
			"carryover": g.pot.Dec(),
		},
	})
	g.resetLocked()
	return nil
}

// CollectPrize pays caller's accumulated prize.
func (g *Game) CollectPrize(caller common.Address) (*uint256.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, ErrGameOngoing
	}
	prize := g.prizeLocked(caller)
	if prize.IsZero() {
		return nil, ErrNoPrize
	}
	if err := g.transfer(g.address, caller, prize); err != nil {
		return nil, fmt.Errorf("pay prize: %w", err)
	}
	delete(g.prizes, caller)

	g.events.Publish(event.Event{
		Kind:      event.PrizeCollected,
		Source:    g.address,
		Actor:     caller,
		AmountOut: new(uint256.Int).Set(prize),
	})
	return prize, nil
}

// transfer moves coin inside its own journal session, so a settlement that
// holds the coin ledger never records or reverts game payments.
func (g *Game) transfer(from, to common.Address, amount *uint256.Int) error {
	j, ok := g.coin.(token.Journaled)
	if !ok {
		return g.coin.Transfer(from, to, amount)
	}
	id := j.Snapshot()
	if err := g.coin.Transfer(from, to, amount); err != nil {
		j.RevertToSnapshot(id)
		return err
	}
	j.Release(id)
	return nil
}

func (g *Game) NumberOfPlayers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

func (g *Game) Players(i int) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.players) {
		return common.Address{}, fmt.Errorf("%w: player %d of %d", ErrIndexOutOfRange, i, len(g.players))
	}
	return g.players[i], nil
}

// Lines returns the i-th player holding number n on line l.
func (g *Game) Lines(l int, n uint8, i int) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l < 0 || l >= LineCount || n < 1 || n > MaxNumber {
		return common.Address{}, fmt.Errorf("%w: line %d number %d", ErrIndexOutOfRange, l, n)
	}
	holders := g.lines[l][n]
	if i < 0 || i >= len(holders) {
		return common.Address{}, fmt.Errorf("%w: holder %d of %d", ErrIndexOutOfRange, i, len(holders))
	}
	return holders[i], nil
}

func (g *Game) Card(player common.Address) (Card, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[player]
	return c, ok
}

func (g *Game) OneLineWinners() []common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]common.Address{}, g.oneLine...)
}

func (g *Game) FullHouseWinners() []common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]common.Address{}, g.fullHouse...)
}

func (g *Game) Prize(player common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(uint256.Int).Set(g.prizeLocked(player))
}

func (g *Game) TimeLastCard() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeLastCard
}

func (g *Game) CalledNumbers() []uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint8{}, g.called...)
}

// Pot is the undistributed amount for the current round.
func (g *Game) Pot() *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(uint256.Int).Set(g.pot)
}

func (g *Game) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Game) Seed() common.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed
}

func (g *Game) prizeLocked(player common.Address) *uint256.Int {
	if p, ok := g.prizes[player]; ok {
		return p
	}
	return new(uint256.Int)
}

func (g *Game) resetLocked() {
	g.running = false
	g.players = nil
	g.cards = make(map[common.Address]Card)
	g.lines = [LineCount][MaxNumber + 1][]common.Address{}
	g.firstCardBlock = 0
	g.timeLastCard = 0
	g.called = nil
	g.oneLine = nil
	g.fullHouse = nil
}

func appendUnique(list []common.Address, a common.Address) []common.Address {
	for _, x := range list {
		if x == a {
			return list
		}
	}
	return append(list, a)
}

func joinAddresses(list []common.Address) string {
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, ",")
}
