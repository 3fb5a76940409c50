package fixed

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Non-integer powers are evaluated as exp(e*ln(b)) on signed big integers
// carrying 36 fractional digits, then truncated back to 18.
var (
	wide      = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	narrow    = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	wideTwice = new(big.Int).Lsh(wide, 1)
	ln2Wide   = mustBig("693147180559945309417232121458176568")
)

// shifts beyond this always overflow 256 bits once scaled.
const maxExpShift = 400

// Pow raises base to a fixed-point exponent.
func Pow(base, exp *uint256.Int) (*uint256.Int, error) {
	if IsInteger(exp) {
		whole := new(uint256.Int).Div(exp, unit)
		if !whole.IsUint64() {
			return powHuge(base)
		}
		return powInt(base, whole.Uint64())
	}
	if base.IsZero() {
		return nil, ErrInvalidExponent
	}
	return powFrac(base, exp)
}

func powInt(base *uint256.Int, n uint64) (*uint256.Int, error) {
	result := One()
	b := new(uint256.Int).Set(base)
	var err error
	for n > 0 {
		if n&1 == 1 {
			if result, err = Mul(result, b); err != nil {
				return nil, err
			}
		}
		n >>= 1
		if n > 0 {
			if b, err = Mul(b, b); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func powHuge(base *uint256.Int) (*uint256.Int, error) {
	switch {
	case base.Eq(unit):
		return One(), nil
	case base.Lt(unit):
		return Zero(), nil
	default:
		return nil, ErrOverflow
	}
}

func powFrac(base, exp *uint256.Int) (*uint256.Int, error) {
	x := new(big.Int).Mul(base.ToBig(), narrow)
	y := lnWide(x)
	y.Mul(y, exp.ToBig())
	y.Quo(y, narrow)

	r, ok := expWide(y)
	if !ok {
		return nil, ErrOverflow
	}
	r.Quo(r, narrow)
	out, overflow := uint256.FromBig(r)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// lnWide returns ln(x) for x > 0, both scaled by 1e36.
func lnWide(x *big.Int) *big.Int {
	k := x.BitLen() - wide.BitLen()
	m := new(big.Int)
	switch {
	case k > 0:
		m.Rsh(x, uint(k))
	case k < 0:
		m.Lsh(x, uint(-k))
	default:
		m.Set(x)
	}
	for m.Cmp(wideTwice) >= 0 {
		m.Rsh(m, 1)
		k++
	}
	for m.Cmp(wide) < 0 {
		m.Lsh(m, 1)
		k--
	}

	// ln(m) = 2*atanh((m-1)/(m+1)), m in [1,2)
	num := new(big.Int).Sub(m, wide)
	den := new(big.Int).Add(m, wide)
	z := num.Mul(num, wide)
	z.Quo(z, den)
	z2 := new(big.Int).Mul(z, z)
	z2.Quo(z2, wide)

	sum := new(big.Int)
	term := new(big.Int).Set(z)
	part := new(big.Int)
	for n := int64(1); term.Sign() != 0; n += 2 {
		part.Quo(term, big.NewInt(n))
		sum.Add(sum, part)
		term.Mul(term, z2)
		term.Quo(term, wide)
	}
	sum.Lsh(sum, 1)

	shift := new(big.Int).Mul(big.NewInt(int64(k)), ln2Wide)
	return sum.Add(sum, shift)
}

// expWide returns e^y for a signed y scaled by 1e36. The bool is false when the
// result is too large to be represented.
func expWide(y *big.Int) (*big.Int, bool) {
	k := new(big.Int).Quo(y, ln2Wide)
	if !k.IsInt64() || k.Int64() > maxExpShift {
		if y.Sign() > 0 {
			return nil, false
		}
		return new(big.Int), true
	}
	shift := k.Int64()
	if shift < -maxExpShift {
		return new(big.Int), true
	}

	r := new(big.Int).Mul(k, ln2Wide)
	r.Sub(y, r)

	sum := new(big.Int).Set(wide)
	term := new(big.Int).Set(wide)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, wide)
		term.Quo(term, big.NewInt(n))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	if shift >= 0 {
		sum.Lsh(sum, uint(shift))
	} else {
		sum.Rsh(sum, uint(-shift))
	}
	return sum, true
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixed: bad constant " + s)
	}
	return v
}
