package fixed

import (
	"math"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivTruncate(t *testing.T) {
	testCases := []struct {
		name   string
		a, b   string
		mul    string
		div    string
		divErr error
	}{
		{name: "halves", a: "1", b: "0.5", mul: "0.5", div: "2"},
		{name: "thirds truncate", a: "1", b: "3", mul: "3", div: "0.333333333333333333"},
		{name: "smallest unit", a: "0.000000000000000001", b: "0.5", mul: "0", div: "0.000000000000000002"},
		{name: "divide by zero", a: "1", b: "0", mul: "0", divErr: ErrDivideByZero},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, b := MustParse(tc.a), MustParse(tc.b)

			got, err := Mul(a, b)
			require.NoError(t, err)
			assert.Equal(t, tc.mul, Format(got))

			got, err = Div(a, b)
			if tc.divErr != nil {
				assert.ErrorIs(t, err, tc.divErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.div, Format(got))
		})
	}
}

func TestOverflowNeverWraps(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := Mul(max, Units(2))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Div(max, One())
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Add(max, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(One(), Units(2))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in   string
		raw  string
		text string
	}{
		{in: "20", raw: "20000000000000000000", text: "20"},
		{in: "0.25", raw: "250000000000000000", text: "0.25"},
		{in: ".5", raw: "500000000000000000", text: "0.5"},
		{in: "0.003", raw: "3000000000000000", text: "0.003"},
		{in: "0", raw: "0", text: "0"},
	}
	for _, tc := range testCases {
		v, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.raw, v.Dec(), tc.in)
		assert.Equal(t, tc.text, Format(v), tc.in)
	}

	for _, bad := range []string{"", "1.", "abc", "-1", "0.0000000000000000001"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrSyntax, bad)
	}
}

func TestPowIntegerExponentIsExact(t *testing.T) {
	got, err := Pow(MustParse("1.5"), Units(2))
	require.NoError(t, err)
	assert.Equal(t, "2.25", Format(got))

	got, err = Pow(MustParse("0.95"), One())
	require.NoError(t, err)
	assert.Equal(t, "0.95", Format(got))

	got, err = Pow(Zero(), Zero())
	require.NoError(t, err)
	assert.Equal(t, "1", Format(got))

	got, err = Pow(Zero(), Units(3))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestPowFractionalExponent(t *testing.T) {
	testCases := []struct {
		base, exp string
	}{
		{base: "0.25", exp: "0.5"},
		{base: "2", exp: "0.5"},
		{base: "0.952380952380952380", exp: "0.333333333333333333"},
		{base: "1.010101010101010101", exp: "3"},
		{base: "1.0001", exp: "2.5"},
		{base: "7", exp: "1.75"},
		{base: "0.000001", exp: "0.25"},
		{base: "1000000", exp: "1.5"},
	}

	for _, tc := range testCases {
		t.Run(tc.base+"^"+tc.exp, func(t *testing.T) {
			got, err := Pow(MustParse(tc.base), MustParse(tc.exp))
			require.NoError(t, err)

			want := math.Pow(toFloat(MustParse(tc.base)), toFloat(MustParse(tc.exp)))
			assert.InEpsilon(t, want, toFloat(got), 1e-10)
		})
	}
}

func TestPowDomainErrors(t *testing.T) {
	_, err := Pow(Zero(), MustParse("0.5"))
	assert.ErrorIs(t, err, ErrInvalidExponent)

	_, err = Pow(Units(1_000_000), Units(20))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Pow(Units(1_000_000), MustParse("20.5"))
	assert.ErrorIs(t, err, ErrOverflow)

	got, err := Pow(MustParse("0.5"), MustParse("400.5"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}
