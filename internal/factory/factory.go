package factory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ammLedger/internal/event"
	"ammLedger/internal/fixed"
	"ammLedger/internal/pool"
	"ammLedger/internal/token"
)

var (
	ErrIndexOutOfRange = errors.New("pool index out of range")
	ErrUnknownPool     = errors.New("unknown pool")
	ErrPoolLimit       = errors.New("pool limit reached")
)

// Config controls pool creation and destruction.
type Config struct {
	Address          common.Address
	Admin            common.Address
	DefaultFee       *uint256.Int
	SweepOnDestroy   bool
	MaxPoolsPerOwner int
	Tokens           token.Source
	Events           event.Sink
}

// Factory indexes pools by the account that created them. Pools live in a
// flat arena keyed by address; each owner keeps an ordered list of addresses.
type Factory struct {
	cfg    Config
	events event.Sink

	mu     sync.RWMutex
	nonce  uint64
	pools  map[common.Address]*pool.Pool
	owners map[common.Address][]common.Address
}

func New(cfg Config) (*Factory, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is nil")
	}
	if cfg.DefaultFee == nil {
		cfg.DefaultFee = fixed.Zero()
	}
	if !cfg.DefaultFee.Lt(fixed.One()) {
		return nil, fmt.Errorf("%w: %s", pool.ErrInvalidFee, fixed.Format(cfg.DefaultFee))
	}
	return &Factory{
		cfg:    cfg,
		events: event.Or(cfg.Events),
		pools:  make(map[common.Address]*pool.Pool),
		owners: make(map[common.Address][]common.Address),
	}, nil
}

func (f *Factory) Address() common.Address { return f.cfg.Address }

// Admin is the account that deployed the factory.
func (f *Factory) Admin() common.Address { return f.cfg.Admin }

// CreatePool deploys an empty pool administered by caller at the default fee.
func (f *Factory) CreatePool(caller common.Address) (common.Address, error) {
	return f.CreatePoolWithFee(caller, f.cfg.DefaultFee)
}

// CreatePoolWithFee deploys an empty pool with an explicit swap fee.
func (f *Factory) CreatePoolWithFee(caller common.Address, fee *uint256.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.MaxPoolsPerOwner > 0 && len(f.owners[caller]) >= f.cfg.MaxPoolsPerOwner {
		return common.Address{}, fmt.Errorf("%w: %s owns %d", ErrPoolLimit, caller.Hex(), len(f.owners[caller]))
	}

	address := crypto.CreateAddress(f.cfg.Address, f.nonce)
	p, err := pool.New(pool.Config{
		Address: address,
		Admin:   caller,
		Fee:     fee,
		Tokens:  f.cfg.Tokens,
		Events:  f.events,
	})
	if err != nil {
		return common.Address{}, err
	}

	f.nonce++
	f.pools[address] = p
	f.owners[caller] = append(f.owners[caller], address)
	f.events.Publish(event.Event{
		Kind:   event.PoolCreated,
		Source: address,
		Actor:  caller,
		Attrs:  map[string]string{"fee": fixed.Format(p.Fee())},
	})
	return address, nil
}

// DestroyPool removes the pool at index in caller's list. The last entry moves
// into the freed slot.
func (f *Factory) DestroyPool(caller common.Address, index int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := f.owners[caller]
	if index < 0 || index >= len(list) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(list))
	}
	address := list[index]
	p := f.pools[address]

	attrs := map[string]string{}
	if f.cfg.SweepOnDestroy && p != nil {
		swept, err := p.Drain(caller)
		if err != nil {
			return common.Address{}, fmt.Errorf("sweep %s: %w", address.Hex(), err)
		}
		for _, ts := range swept {
			attrs["swept_"+ts.Address.Hex()] = fixed.Format(ts.Balance)
		}
	}

	last := len(list) - 1
	list[index] = list[last]
	list = list[:last]
	if len(list) == 0 {
		delete(f.owners, caller)
	} else {
		f.owners[caller] = list
	}
	delete(f.pools, address)

	f.events.Publish(event.Event{
		Kind:   event.PoolDestroyed,
		Source: address,
		Actor:  caller,
		Attrs:  attrs,
	})
	return address, nil
}

// GetPools returns a copy of owner's pool list.
func (f *Factory) GetPools(owner common.Address) []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	list := f.owners[owner]
	out := make([]common.Address, len(list))
	copy(out, list)
	return out
}

// Pool looks up a live pool by address.
func (f *Factory) Pool(address common.Address) (*pool.Pool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, address.Hex())
	}
	return p, nil
}

func (f *Factory) PoolCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pools)
}
