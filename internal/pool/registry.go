package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/fixed"
)

// TokenInfo is the weight and balance a pool holds for one token.
type TokenInfo struct {
	Weight  *uint256.Int
	Balance *uint256.Int
}

// NewTokenInfo parses decimal weight and balance strings.
func NewTokenInfo(weight, balance string) (TokenInfo, error) {
	w, err := fixed.Parse(weight)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("weight: %w", err)
	}
	b, err := fixed.Parse(balance)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("balance: %w", err)
	}
	return TokenInfo{Weight: w, Balance: b}, nil
}

func (t TokenInfo) Clone() TokenInfo {
	return TokenInfo{Weight: cloneInt(t.Weight), Balance: cloneInt(t.Balance)}
}

// Registry is the ordered token set of one pool. Removal swaps the last token
// into the freed slot.
type Registry struct {
	list   []common.Address
	tokens map[common.Address]TokenInfo
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]TokenInfo)}
}

func (r *Registry) Len() int { return len(r.list) }

func (r *Registry) Has(address common.Address) bool {
	_, ok := r.tokens[address]
	return ok
}

// At returns the token address at position i of the token list.
func (r *Registry) At(i int) (common.Address, error) {
	if i < 0 || i >= len(r.list) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(r.list))
	}
	return r.list[i], nil
}

// Get returns a copy of the token record.
func (r *Registry) Get(address common.Address) (TokenInfo, error) {
	info, ok := r.tokens[address]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: %s", ErrInvalidToken, address.Hex())
	}
	return info.Clone(), nil
}

// Addresses returns the token list in order.
func (r *Registry) Addresses() []common.Address {
	out := make([]common.Address, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Clone() *Registry {
	out := &Registry{
		list:   r.Addresses(),
		tokens: make(map[common.Address]TokenInfo, len(r.tokens)),
	}
	for address, info := range r.tokens {
		out.tokens[address] = info.Clone()
	}
	return out
}

// TotalWeight sums every weight.
func (r *Registry) TotalWeight() (*uint256.Int, error) {
	total := fixed.Zero()
	for _, address := range r.list {
		var err error
		if total, err = fixed.Add(total, r.tokens[address].Weight); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (r *Registry) insert(address common.Address, info TokenInfo) {
	if _, ok := r.tokens[address]; !ok {
		r.list = append(r.list, address)
	}
	r.tokens[address] = info
}

func (r *Registry) set(address common.Address, info TokenInfo) {
	r.tokens[address] = info
}

// remove deletes address and returns the slot it occupied.
func (r *Registry) remove(address common.Address) int {
	delete(r.tokens, address)
	for i, a := range r.list {
		if a != address {
			continue
		}
		last := len(r.list) - 1
		r.list[i] = r.list[last]
		r.list = r.list[:last]
		return i
	}
	return -1
}

// normalize divides every weight except anchor's by divisor and gives anchor
// whatever remains of 1.0, so the sum is exact.
func (r *Registry) normalize(divisor *uint256.Int, anchor common.Address) error {
	rest := fixed.Zero()
	for _, address := range r.list {
		if address == anchor {
			continue
		}
		info := r.tokens[address]
		w, err := fixed.Div(info.Weight, divisor)
		if err != nil {
			return err
		}
		if w.IsZero() {
			return fmt.Errorf("%w: weight of %s rounds to zero", ErrInvalidAmount, address.Hex())
		}
		info.Weight = w
		r.tokens[address] = info
		if rest, err = fixed.Add(rest, w); err != nil {
			return err
		}
	}

	anchorWeight, err := fixed.Complement(rest)
	if err != nil || anchorWeight.IsZero() {
		return fmt.Errorf("%w: weight of %s rounds to zero", ErrInvalidAmount, anchor.Hex())
	}
	info := r.tokens[anchor]
	info.Weight = anchorWeight
	r.tokens[anchor] = info
	return nil
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
