package pool

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammLedger/internal/event"
	"ammLedger/internal/fixed"
	"ammLedger/internal/token"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	poolA = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fixture struct {
	bank   *token.Bank
	tokens []*token.Ledger
	pool   *Pool
	events *event.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bank: token.NewBank(), events: &event.Recorder{}}
	for _, symbol := range []string{"TKN1", "TKN2", "TKN3", "TKN4"} {
		l := f.bank.Deploy(owner, symbol)
		require.NoError(t, l.Mint(owner, fixed.Units(100)))
		require.NoError(t, l.Approve(owner, poolA, fixed.Units(100)))
		f.tokens = append(f.tokens, l)
	}

	p, err := New(Config{
		Address: poolA,
		Admin:   owner,
		Fee:     fixed.MustParse("0.003"),
		Tokens:  f.bank,
		Events:  f.events,
	})
	require.NoError(t, err)
	f.pool = p
	return f
}

func (f *fixture) addr(i int) common.Address { return f.tokens[i].Address() }

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.pool.StartPool(owner,
		f.addr(0), info(t, "0.5", "20"),
		f.addr(1), info(t, "0.5", "1"),
	))
}

func info(t *testing.T, weight, balance string) TokenInfo {
	t.Helper()
	ti, err := NewTokenInfo(weight, balance)
	require.NoError(t, err)
	return ti
}

func requireToken(t *testing.T, p *Pool, address common.Address, weight, balance string) {
	t.Helper()
	got, err := p.Tokens(address)
	require.NoError(t, err)
	assert.Equal(t, weight, fixed.Format(got.Weight), "weight of %s", address.Hex())
	assert.Equal(t, balance, fixed.Format(got.Balance), "balance of %s", address.Hex())
}

func requireWeightsSumToOne(t *testing.T, p *Pool) {
	t.Helper()
	st := p.State()
	total := fixed.Zero()
	for _, ts := range st.Tokens {
		total = new(uint256.Int).Add(total, ts.Weight)
	}
	assert.True(t, total.Eq(fixed.One()), "weights sum to %s", fixed.Format(total))
}

func TestStartPool(t *testing.T) {
	f := newFixture(t)

	err := f.pool.StartPool(other, f.addr(0), info(t, "0.5", "20"), f.addr(1), info(t, "0.5", "1"))
	assert.ErrorIs(t, err, ErrAdminOnly)

	f.start(t)
	assert.Equal(t, 2, f.pool.TokenCount())
	for i := 0; i < 2; i++ {
		address, err := f.pool.TokenAt(i)
		require.NoError(t, err)
		assert.Equal(t, f.addr(i), address)
	}
	requireToken(t, f.pool, f.addr(0), "0.5", "20")
	requireToken(t, f.pool, f.addr(1), "0.5", "1")
	assert.Equal(t, "80", fixed.Format(f.tokens[0].BalanceOf(owner)))
	assert.Equal(t, "20", fixed.Format(f.tokens[0].BalanceOf(poolA)))
	assert.Equal(t, "1", fixed.Format(f.tokens[1].BalanceOf(poolA)))

	_, err = f.pool.TokenAt(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	err = f.pool.StartPool(owner, f.addr(2), info(t, "0.5", "1"), f.addr(3), info(t, "0.5", "1"))
	assert.ErrorIs(t, err, ErrInvalidPool)
	assert.Equal(t, []event.Kind{event.PoolStarted}, f.events.Kinds())
}

func TestStartPoolValidation(t *testing.T) {
	testCases := []struct {
		name   string
		a, b   int
		infoA  [2]string
		infoB  [2]string
		target error
	}{
		{name: "weights below one", a: 0, b: 1, infoA: [2]string{"0.4", "1"}, infoB: [2]string{"0.5", "1"}, target: ErrInvalidWeights},
		{name: "weights above one", a: 0, b: 1, infoA: [2]string{"0.6", "1"}, infoB: [2]string{"0.5", "1"}, target: ErrInvalidWeights},
		{name: "same token twice", a: 0, b: 0, infoA: [2]string{"0.5", "1"}, infoB: [2]string{"0.5", "1"}, target: ErrInvalidToken},
		{name: "zero balance", a: 0, b: 1, infoA: [2]string{"0.5", "0"}, infoB: [2]string{"0.5", "1"}, target: ErrInvalidAmount},
		{name: "more than approved", a: 0, b: 1, infoA: [2]string{"0.5", "101"}, infoB: [2]string{"0.5", "1"}, target: token.ErrInsufficientAllowance},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.pool.StartPool(owner,
				f.addr(tc.a), info(t, tc.infoA[0], tc.infoA[1]),
				f.addr(tc.b), info(t, tc.infoB[0], tc.infoB[1]),
			)
			assert.ErrorIs(t, err, tc.target)
			assert.False(t, f.pool.Started())
			assert.Equal(t, 0, f.pool.TokenCount())
			assert.Equal(t, "100", fixed.Format(f.tokens[0].BalanceOf(owner)))
			assert.Empty(t, f.events.Events())
		})
	}
}

func TestStartPoolRollsBackFirstTransfer(t *testing.T) {
	f := newFixture(t)
	f.tokens[1].Freeze(poolA)

	err := f.pool.StartPool(owner, f.addr(0), info(t, "0.5", "20"), f.addr(1), info(t, "0.5", "1"))
	assert.ErrorIs(t, err, token.ErrFrozen)
	assert.Equal(t, "100", fixed.Format(f.tokens[0].BalanceOf(owner)))
	assert.Equal(t, "100", fixed.Format(f.tokens[0].Allowance(owner, poolA)))
	assert.True(t, f.tokens[0].BalanceOf(poolA).IsZero())
	assert.False(t, f.pool.Started())
}

func TestAddToken(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		f := newFixture(t)
		err := f.pool.AddToken(owner, f.addr(0), fixed.Units(1), f.addr(1), fixed.Units(1))
		assert.ErrorIs(t, err, ErrInvalidPool)
	})

	t.Run("non admin", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		err := f.pool.AddToken(other, f.addr(2), fixed.Units(10), f.addr(1), fixed.Units(1))
		assert.ErrorIs(t, err, ErrAdminOnly)
	})

	t.Run("reference not in pool", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		err := f.pool.AddToken(owner, f.addr(2), fixed.Units(10), f.addr(3), fixed.Units(1))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("new token", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)

		require.NoError(t, f.pool.AddToken(owner, f.addr(2), fixed.Units(2), f.addr(1), fixed.Units(1)))
		assert.Equal(t, 3, f.pool.TokenCount())
		third, err := f.pool.TokenAt(2)
		require.NoError(t, err)
		assert.Equal(t, f.addr(2), third)

		requireToken(t, f.pool, f.addr(0), "0.25", "20")
		requireToken(t, f.pool, f.addr(1), "0.25", "1")
		requireToken(t, f.pool, f.addr(2), "0.5", "2")
		requireWeightsSumToOne(t, f.pool)
		assert.Equal(t, "98", fixed.Format(f.tokens[2].BalanceOf(owner)))
		assert.Equal(t, "2", fixed.Format(f.tokens[2].BalanceOf(poolA)))
	})

	t.Run("existing token ignores reference", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)

		require.NoError(t, f.pool.AddToken(owner, f.addr(1), fixed.Units(2), f.addr(3), fixed.Units(23423)))
		assert.Equal(t, 2, f.pool.TokenCount())
		requireToken(t, f.pool, f.addr(0), "0.25", "20")
		requireToken(t, f.pool, f.addr(1), "0.75", "3")
		requireWeightsSumToOne(t, f.pool)
	})

	t.Run("prices of existing tokens are preserved", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		before, err := f.pool.Price(f.addr(0), f.addr(1))
		require.NoError(t, err)

		require.NoError(t, f.pool.AddToken(owner, f.addr(2), fixed.MustParse("7.3"), f.addr(0), nil))
		after, err := f.pool.Price(f.addr(0), f.addr(1))
		require.NoError(t, err)
		assertClose(t, before, after, 1000)
		requireWeightsSumToOne(t, f.pool)
	})
}

func TestWithdrawToken(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)

		require.NoError(t, f.pool.WithdrawToken(owner, f.addr(0), fixed.Units(15)))
		assert.Equal(t, 2, f.pool.TokenCount())
		requireToken(t, f.pool, f.addr(0), "0.2", "5")
		requireToken(t, f.pool, f.addr(1), "0.8", "1")
		assert.Equal(t, "95", fixed.Format(f.tokens[0].BalanceOf(owner)))
	})

	t.Run("full with two tokens", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)

		err := f.pool.WithdrawToken(owner, f.addr(0), fixed.Units(20))
		assert.ErrorIs(t, err, ErrInvalidPool)
		requireToken(t, f.pool, f.addr(0), "0.5", "20")
	})

	t.Run("full removes with swap", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		require.NoError(t, f.pool.AddToken(owner, f.addr(2), fixed.Units(3), f.addr(1), fixed.Units(1)))

		require.NoError(t, f.pool.WithdrawToken(owner, f.addr(0), fixed.Units(20)))
		assert.Equal(t, []common.Address{f.addr(2), f.addr(1)}, f.pool.TokenList())
		requireToken(t, f.pool, f.addr(2), "0.75", "3")
		requireToken(t, f.pool, f.addr(1), "0.25", "1")
		_, err := f.pool.Tokens(f.addr(0))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, "100", fixed.Format(f.tokens[0].BalanceOf(owner)))
	})

	t.Run("errors", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)

		assert.ErrorIs(t, f.pool.WithdrawToken(other, f.addr(0), fixed.Units(1)), ErrAdminOnly)
		assert.ErrorIs(t, f.pool.WithdrawToken(owner, f.addr(3), fixed.Units(1)), ErrInvalidToken)
		assert.ErrorIs(t, f.pool.WithdrawToken(owner, f.addr(0), fixed.Units(21)), ErrInsufficientBalance)
		assert.ErrorIs(t, f.pool.WithdrawToken(owner, f.addr(0), fixed.Zero()), ErrInvalidAmount)
	})
}

func TestAddThenWithdrawRestoresBalances(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	before := f.pool.State()

	require.NoError(t, f.pool.AddToken(owner, f.addr(1), fixed.MustParse("0.37"), f.addr(0), nil))
	require.NoError(t, f.pool.WithdrawToken(owner, f.addr(1), fixed.MustParse("0.37")))

	after := f.pool.State()
	require.Len(t, after.Tokens, len(before.Tokens))
	for i := range before.Tokens {
		assert.Equal(t, before.Tokens[i].Address, after.Tokens[i].Address)
		assert.True(t, before.Tokens[i].Balance.Eq(after.Tokens[i].Balance))
		assertClose(t, before.Tokens[i].Weight, after.Tokens[i].Weight, 10)
	}
}

func TestGetPrice(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	in, err := f.pool.Tokens(f.addr(0))
	require.NoError(t, err)
	out, err := f.pool.Tokens(f.addr(1))
	require.NoError(t, err)

	price, err := f.pool.GetPrice(in, out, fixed.MustParse("0.001"))
	require.NoError(t, err)
	assert.Equal(t, "20020020020020020020", price.Dec())

	zero := TokenInfo{Weight: fixed.MustParse("0.5"), Balance: fixed.Zero()}
	_, err = f.pool.GetPrice(in, zero, fixed.Zero())
	assert.ErrorIs(t, err, fixed.ErrDivideByZero)
	_, err = f.pool.GetPrice(zero, out, fixed.Zero())
	assert.ErrorIs(t, err, fixed.ErrDivideByZero)
}

func TestPriceIsHomogeneous(t *testing.T) {
	in := TokenInfo{Weight: fixed.MustParse("0.3"), Balance: fixed.MustParse("12.5")}
	out := TokenInfo{Weight: fixed.MustParse("0.7"), Balance: fixed.MustParse("40")}
	fee := fixed.MustParse("0.003")

	base, err := SpotPrice(in, out, fee)
	require.NoError(t, err)

	for _, factor := range []uint64{2, 10, 1000} {
		scaled := TokenInfo{Weight: in.Weight, Balance: new(uint256.Int).Mul(in.Balance, uint256.NewInt(factor))}
		scaledOut := TokenInfo{Weight: out.Weight, Balance: new(uint256.Int).Mul(out.Balance, uint256.NewInt(factor))}
		got, err := SpotPrice(scaled, scaledOut, fee)
		require.NoError(t, err)
		assertClose(t, base, got, 10)
	}
}

func TestSwapExactIn(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	in, _ := f.pool.Tokens(f.addr(0))
	out, _ := f.pool.Tokens(f.addr(1))
	weightRatio := toFloat(in.Weight) / toFloat(out.Weight)
	base := toFloat(in.Balance) / (toFloat(in.Balance) + 1*(1-0.003))
	expected := toFloat(out.Balance) * (1 - math.Pow(base, weightRatio))

	result, err := f.pool.Swap(owner, f.addr(0), f.addr(1), fixed.Units(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", fixed.Format(result.AmountIn))
	assertCloseFloat(t, expected, result.AmountOut, 10000)

	inAfter, _ := f.pool.Tokens(f.addr(0))
	outAfter, _ := f.pool.Tokens(f.addr(1))
	assert.Equal(t, "21", fixed.Format(inAfter.Balance))
	assert.True(t, new(uint256.Int).Sub(out.Balance, outAfter.Balance).Eq(result.AmountOut))
	assert.True(t, inAfter.Weight.Eq(in.Weight))

	assert.Equal(t, "79", fixed.Format(f.tokens[0].BalanceOf(owner)))
	assert.Equal(t, "21", fixed.Format(f.tokens[0].BalanceOf(poolA)))
	assert.True(t, f.tokens[1].BalanceOf(poolA).Eq(outAfter.Balance))

	events := f.events.Events()
	last := events[len(events)-1]
	assert.Equal(t, event.Swap, last.Kind)
	assert.True(t, last.AmountOut.Eq(result.AmountOut))
}

func TestSwapExactOut(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	in, _ := f.pool.Tokens(f.addr(0))
	out, _ := f.pool.Tokens(f.addr(1))
	fee := toFloat(f.pool.Fee())
	weightRatio := toFloat(out.Weight) / toFloat(in.Weight)
	base := toFloat(out.Balance) / (toFloat(out.Balance) - 0.01)
	expected := toFloat(in.Balance) * (math.Pow(base, weightRatio) - 1) / (1 - fee)

	result, err := f.pool.Swap(owner, f.addr(0), f.addr(1), nil, fixed.MustParse("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "0.01", fixed.Format(result.AmountOut))
	assertCloseFloat(t, expected, result.AmountIn, 10000)

	outAfter, _ := f.pool.Tokens(f.addr(1))
	assert.Equal(t, "0.99", fixed.Format(outAfter.Balance))
}

func TestSwapUnevenWeights(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pool.StartPool(owner,
		f.addr(0), info(t, "0.8", "40"),
		f.addr(1), info(t, "0.2", "10"),
	))

	in, _ := f.pool.Tokens(f.addr(0))
	out, _ := f.pool.Tokens(f.addr(1))
	base := 40 / (40 + 2.5*(1-0.003))
	expected := 10 * (1 - math.Pow(base, 4))

	quote, err := f.pool.QuoteExactIn(f.addr(0), f.addr(1), fixed.MustParse("2.5"))
	require.NoError(t, err)
	assertCloseFloat(t, expected, quote, 100000)

	back, err := InGivenOut(in, out, quote, f.pool.Fee())
	require.NoError(t, err)
	assertClose(t, fixed.MustParse("2.5"), back, 100000)
}

func TestSwapInverse(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	amountIn := fixed.MustParse("0.75")
	out, err := f.pool.QuoteExactIn(f.addr(0), f.addr(1), amountIn)
	require.NoError(t, err)
	in, err := f.pool.QuoteExactOut(f.addr(0), f.addr(1), out)
	require.NoError(t, err)
	assertClose(t, amountIn, in, 1_000_000)
}

func TestSwapErrors(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.pool.Swap(owner, f.addr(0), f.addr(1), fixed.Units(1), fixed.Units(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.pool.Swap(owner, f.addr(0), f.addr(1), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.pool.Swap(owner, f.addr(0), f.addr(3), fixed.Units(1), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.pool.Swap(owner, f.addr(0), f.addr(0), fixed.Units(1), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.pool.Swap(owner, f.addr(0), f.addr(1), nil, fixed.Units(1))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.ErrorIs(t, err, fixed.ErrInvalidExponent)

	// other never approved the pool.
	_, err = f.pool.Swap(other, f.addr(0), f.addr(1), fixed.Units(1), nil)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	requireToken(t, f.pool, f.addr(0), "0.5", "20")
	requireToken(t, f.pool, f.addr(1), "0.5", "1")
}

func TestSwapRejectsDustThatRoundsToZero(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pool.StartPool(owner,
		f.addr(0), info(t, "0.5", "10"),
		f.addr(1), info(t, "0.5", "90"),
	))
	seen := len(f.events.Events())

	_, err := f.pool.Swap(owner, f.addr(0), f.addr(1), nil, uint256.NewInt(50))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.pool.Swap(owner, f.addr(0), f.addr(1), uint256.NewInt(1), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	requireToken(t, f.pool, f.addr(0), "0.5", "10")
	requireToken(t, f.pool, f.addr(1), "0.5", "90")
	assert.Equal(t, "90", fixed.Format(f.tokens[1].BalanceOf(poolA)))
	assert.Len(t, f.events.Events(), seen)
}

func TestSwapRollsBackInputWhenPayoutFails(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.tokens[1].Freeze(owner)

	_, err := f.pool.Swap(owner, f.addr(0), f.addr(1), fixed.Units(1), nil)
	assert.ErrorIs(t, err, token.ErrFrozen)

	assert.Equal(t, "80", fixed.Format(f.tokens[0].BalanceOf(owner)))
	assert.Equal(t, "20", fixed.Format(f.tokens[0].BalanceOf(poolA)))
	assert.Equal(t, "80", fixed.Format(f.tokens[0].Allowance(owner, poolA)))
	requireToken(t, f.pool, f.addr(0), "0.5", "20")
	assert.Equal(t, []event.Kind{event.PoolStarted}, f.events.Kinds())
}

func TestStateRestore(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	require.NoError(t, f.pool.AddToken(owner, f.addr(2), fixed.Units(2), f.addr(1), nil))

	restored, err := Restore(Config{Tokens: f.bank}, f.pool.State())
	require.NoError(t, err)
	assert.Equal(t, f.pool.State(), restored.State())

	bad := f.pool.State()
	bad.Tokens[0].Weight = fixed.MustParse("0.3")
	_, err = Restore(Config{Tokens: f.bank}, bad)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestDrain(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.pool.Drain(other)
	assert.ErrorIs(t, err, ErrAdminOnly)

	swept, err := f.pool.Drain(owner)
	require.NoError(t, err)
	assert.Len(t, swept, 2)
	assert.Equal(t, 0, f.pool.TokenCount())
	assert.Equal(t, "100", fixed.Format(f.tokens[0].BalanceOf(owner)))
	assert.Equal(t, "100", fixed.Format(f.tokens[1].BalanceOf(owner)))
}

func TestNewRejectsFee(t *testing.T) {
	_, err := New(Config{Tokens: token.NewBank(), Fee: fixed.One()})
	assert.ErrorIs(t, err, ErrInvalidFee)
	_, err = New(Config{})
	assert.Error(t, err)
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}

func assertCloseFloat(t *testing.T, expected float64, got *uint256.Int, tolerance int64) {
	t.Helper()
	want, _ := new(big.Float).Mul(big.NewFloat(expected), big.NewFloat(1e18)).Int(nil)
	diff := new(big.Int).Sub(want, got.ToBig())
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(tolerance)), 0, "want %s got %s", want, got.Dec())
}

func assertClose(t *testing.T, expected, got *uint256.Int, tolerance int64) {
	t.Helper()
	diff := new(big.Int).Sub(expected.ToBig(), got.ToBig())
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(tolerance)), 0, "want %s got %s", expected.Dec(), got.Dec())
}
