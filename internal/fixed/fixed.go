package fixed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by every value.
const Decimals = 18

var (
	ErrDivideByZero    = errors.New("divide by zero")
	ErrOverflow        = errors.New("fixed-point overflow")
	ErrUnderflow       = errors.New("fixed-point underflow")
	ErrInvalidExponent = errors.New("invalid exponent")
	ErrSyntax          = errors.New("invalid decimal")
)

var unit = uint256.NewInt(1_000_000_000_000_000_000)

// One returns a fresh 1.0.
func One() *uint256.Int {
	return new(uint256.Int).Set(unit)
}

// Zero returns a fresh 0.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Units returns n whole units (n * 1e18).
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

// IsInteger reports whether v has no fractional part.
func IsInteger(v *uint256.Int) bool {
	return new(uint256.Int).Mod(v, unit).IsZero()
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// Mul returns a*b/1e18 truncated toward zero.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return prod.Div(prod, unit), nil
}

// Div returns a*1e18/b truncated toward zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	scaled, overflow := new(uint256.Int).MulOverflow(a, unit)
	if overflow {
		return nil, ErrOverflow
	}
	return scaled.Div(scaled, b), nil
}

// Complement returns 1-v, failing when v > 1.
func Complement(v *uint256.Int) (*uint256.Int, error) {
	return Sub(unit, v)
}

// Parse reads a decimal string such as "0.25" or "20" into a scaled value.
func Parse(input string) (*uint256.Int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrSyntax)
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && fracPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, input)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("%w: more than %d fractional digits in %q", ErrSyntax, Decimals, input)
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, input)
	}

	digits := intPart + fracPart + strings.Repeat("0", Decimals-len(fracPart))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, input)
	}
	return v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(input string) *uint256.Int {
	v, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders v as a decimal string without trailing zeros.
func Format(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole := new(uint256.Int).Div(v, unit)
	frac := new(uint256.Int).Mod(v, unit)
	if frac.IsZero() {
		return whole.Dec()
	}
	fracText := frac.Dec()
	fracText = strings.Repeat("0", Decimals-len(fracText)) + fracText
	return whole.Dec() + "." + strings.TrimRight(fracText, "0")
}

// ParseRaw reads an unscaled base-10 integer (wei) string.
func ParseRaw(input string) (*uint256.Int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, input)
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
