package bingo

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammLedger/internal/event"
	"ammLedger/internal/fixed"
	"ammLedger/internal/token"
)

var (
	gameAddr = common.HexToAddress("0x0000000000000000000000000000000000b1b0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fixture struct {
	game  *Game
	coin  *token.Ledger
	block uint64
	rec   *event.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{block: 1, rec: &event.Recorder{}}
	f.coin = token.NewBank().Native()
	for _, a := range []common.Address{alice, bob, carol} {
		require.NoError(t, f.coin.Mint(a, fixed.Units(1)))
	}
	g, err := New(Config{
		Address: gameAddr,
		Coin:    f.coin,
		Clock:   ClockFunc(func() uint64 { return f.block }),
		Events:  f.rec,
	})
	require.NoError(t, err)
	f.game = g
	return f
}

func tenth() *uint256.Int { return fixed.MustParse("0.1") }

func TestGenerateCardInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	_, err := f.game.GenerateCard(alice, fixed.MustParse("0.099"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "insufficient funds", err.Error())
	assert.Equal(t, 0, f.game.NumberOfPlayers())
	assert.True(t, f.coin.BalanceOf(gameAddr).IsZero())
}

func TestGenerateCardUnfundedPlayer(t *testing.T) {
	f := newFixture(t)
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	_, err := f.game.GenerateCard(stranger, tenth())
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Equal(t, 0, f.game.NumberOfPlayers())
}

func TestGenerateCardWaitsForCoinSession(t *testing.T) {
	f := newFixture(t)
	id := f.coin.Snapshot()
	require.NoError(t, f.coin.Transfer(bob, carol, tenth()))

	done := make(chan error, 1)
	go func() {
		_, err := f.game.GenerateCard(alice, tenth())
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("card bought while the coin session was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.coin.RevertToSnapshot(id)
	require.NoError(t, <-done)
	assert.Equal(t, "0.1", fixed.Format(f.coin.BalanceOf(gameAddr)))
	assert.Equal(t, "0.9", fixed.Format(f.coin.BalanceOf(alice)))
	assert.Equal(t, "1", fixed.Format(f.coin.BalanceOf(bob)))
	assert.Equal(t, 1, f.game.NumberOfPlayers())
}

func TestStartGameWithoutPlayers(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.game.StartGame(alice), ErrNoPlayers)
}

func TestGenerateCard(t *testing.T) {
	f := newFixture(t)
	f.block = 7

	card, err := f.game.GenerateCard(alice, tenth())
	require.NoError(t, err)
	assert.True(t, card.Valid(), "card %s", card)

	for l, line := range card {
		for _, n := range line {
			holder, err := f.game.Lines(l, n, 0)
			require.NoError(t, err)
			assert.Equal(t, alice, holder)
		}
	}
	player, err := f.game.Players(0)
	require.NoError(t, err)
	assert.Equal(t, alice, player)
	assert.Equal(t, uint64(7), f.game.TimeLastCard())
	assert.Equal(t, "0.1", fixed.Format(f.game.Pot()))
	assert.Equal(t, "0.1", fixed.Format(f.coin.BalanceOf(gameAddr)))
	assert.Equal(t, "0.9", fixed.Format(f.coin.BalanceOf(alice)))
	assert.Equal(t, []event.Kind{event.SeedChanged, event.CardGenerated}, f.rec.Kinds())
	assert.Equal(t, card.String(), f.rec.Events()[1].Attrs["card"])

	_, err = f.game.GenerateCard(alice, tenth())
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	_, err = f.game.Players(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCardsDifferPerPlayer(t *testing.T) {
	f := newFixture(t)
	a, err := f.game.GenerateCard(alice, tenth())
	require.NoError(t, err)
	b, err := f.game.GenerateCard(bob, tenth())
	require.NoError(t, err)
	assert.True(t, b.Valid())
	assert.NotEqual(t, a, b)
}

func TestSingleRound(t *testing.T) {
	f := newFixture(t)
	_, err := f.game.GenerateCard(alice, tenth())
	require.NoError(t, err)

	f.block += DefaultTimeout - 1
	assert.ErrorIs(t, f.game.StartGame(alice), ErrTooEarly)

	f.block++
	require.NoError(t, f.game.StartGame(alice))
	assert.True(t, f.game.Running())
	assert.Equal(t, []common.Address{alice}, f.game.OneLineWinners())
	assert.Equal(t, []common.Address{alice}, f.game.FullHouseWinners())

	called := f.game.CalledNumbers()
	card, _ := f.game.Card(alice)
	calledSet := map[uint8]bool{}
	for _, n := range called {
		calledSet[n] = true
	}
	for _, n := range card.Numbers() {
		assert.True(t, calledSet[n], "number %d not called", n)
	}
	assert.Contains(t, card.Numbers(), called[len(called)-1])

	_, err = f.game.CollectPrize(alice)
	assert.ErrorIs(t, err, ErrGameOngoing)
	_, err = f.game.GenerateCard(bob, tenth())
	assert.ErrorIs(t, err, ErrGameOngoing)

	require.NoError(t, f.game.EndGame(alice))
	assert.Empty(t, f.game.OneLineWinners())
	assert.Empty(t, f.game.FullHouseWinners())
	assert.Equal(t, 0, f.game.NumberOfPlayers())
	assert.Equal(t, "0.1", fixed.Format(f.game.Prize(alice)))
	assert.Equal(t, f.game.Prize(alice), f.coin.BalanceOf(gameAddr))
	assert.True(t, f.game.Pot().IsZero())

	prize, err := f.game.CollectPrize(alice)
	require.NoError(t, err)
	assert.Equal(t, "0.1", fixed.Format(prize))
	assert.Equal(t, "1", fixed.Format(f.coin.BalanceOf(alice)))
	assert.True(t, f.game.Prize(alice).IsZero())

	_, err = f.game.CollectPrize(alice)
	assert.ErrorIs(t, err, ErrNoPrize)
}

func TestEndGameNotRunning(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.game.EndGame(alice), ErrGameNotRunning)
}

func TestSubscriptionWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.game.GenerateCard(alice, tenth())
	require.NoError(t, err)

	f.block += DefaultTimeout + 1
	_, err = f.game.GenerateCard(bob, tenth())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Equal(t, "0.1", fixed.Format(f.game.Pot()))
}

func TestMultiplePlayersSplitPot(t *testing.T) {
	f := newFixture(t)
	for _, p := range []common.Address{alice, bob, carol} {
		_, err := f.game.GenerateCard(p, tenth())
		require.NoError(t, err)
	}
	f.block += DefaultTimeout
	require.NoError(t, f.game.StartGame(bob))

	winners := f.game.FullHouseWinners()
	require.NotEmpty(t, winners)
	require.NotEmpty(t, f.game.OneLineWinners())
	require.NoError(t, f.game.EndGame(bob))

	total := new(uint256.Int)
	for _, p := range []common.Address{alice, bob, carol} {
		total.Add(total, f.game.Prize(p))
	}
	total.Add(total, f.game.Pot())
	assert.Equal(t, "0.3", fixed.Format(total))

	share := new(uint256.Int).Div(fixed.MustParse("0.3"), uint256.NewInt(uint64(len(winners))))
	for _, w := range winners {
		assert.Equal(t, share, f.game.Prize(w))
	}
}

func TestStateRestore(t *testing.T) {
	f := newFixture(t)
	for _, p := range []common.Address{alice, bob} {
		_, err := f.game.GenerateCard(p, tenth())
		require.NoError(t, err)
	}
	st := f.game.State()

	restored, err := Restore(Config{
		Address: gameAddr,
		Coin:    f.coin,
		Clock:   ClockFunc(func() uint64 { return f.block }),
	}, st)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.NumberOfPlayers())
	card, ok := restored.Card(bob)
	require.True(t, ok)
	holder, err := restored.Lines(2, card[2][4], 0)
	require.NoError(t, err)
	assert.Equal(t, bob, holder)
	assert.Equal(t, f.game.Seed(), restored.Seed())

	f.block += DefaultTimeout
	require.NoError(t, f.game.StartGame(carol))
	require.NoError(t, restored.StartGame(carol))
	assert.Equal(t, f.game.CalledNumbers(), restored.CalledNumbers())
	assert.Equal(t, f.game.FullHouseWinners(), restored.FullHouseWinners())
}

func TestRestoreRejectsBadCard(t *testing.T) {
	f := newFixture(t)
	st := State{
		Players: []common.Address{alice},
		Cards:   map[common.Address]Card{alice: {{1, 2, 30, 40, 50}}},
	}
	_, err := Restore(Config{Coin: f.coin, Clock: ClockFunc(func() uint64 { return 0 })}, st)
	assert.Error(t, err)
}
