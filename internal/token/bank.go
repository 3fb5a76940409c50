package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeAddress is the conventional placeholder for the chain's native coin.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Bank keeps every deployed ledger by address.
type Bank struct {
	mu      sync.RWMutex
	ledgers map[common.Address]*Ledger
	nonces  map[common.Address]uint64
}

func NewBank() *Bank {
	b := &Bank{
		ledgers: make(map[common.Address]*Ledger),
		nonces:  make(map[common.Address]uint64),
	}
	b.ledgers[NativeAddress] = NewLedger(NativeAddress, "ETH")
	return b
}

// Native returns the native coin ledger.
func (b *Bank) Native() *Ledger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledgers[NativeAddress]
}

// Deploy creates a ledger at the address derived from deployer and its nonce.
func (b *Bank) Deploy(deployer common.Address, symbol string) *Ledger {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce := b.nonces[deployer]
	b.nonces[deployer] = nonce + 1
	ledger := NewLedger(crypto.CreateAddress(deployer, nonce), symbol)
	b.ledgers[ledger.Address()] = ledger
	return ledger
}

// Undeploy removes the ledger created by the deployer's latest Deploy and
// gives the nonce back. It does nothing if address is not that ledger.
func (b *Bank) Undeploy(deployer, address common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce := b.nonces[deployer]
	if nonce == 0 || crypto.CreateAddress(deployer, nonce-1) != address {
		return
	}
	delete(b.ledgers, address)
	if nonce == 1 {
		delete(b.nonces, deployer)
	} else {
		b.nonces[deployer] = nonce - 1
	}
}

// Register adds an existing ledger, replacing any ledger at the same address.
func (b *Bank) Register(ledger *Ledger) {
	b.mu.Lock()
	b.ledgers[ledger.Address()] = ledger
	b.mu.Unlock()
}

// SetNonce restores a deployer nonce.
func (b *Bank) SetNonce(deployer common.Address, nonce uint64) {
	b.mu.Lock()
	b.nonces[deployer] = nonce
	b.mu.Unlock()
}

func (b *Bank) Nonces() map[common.Address]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[common.Address]uint64, len(b.nonces))
	for k, v := range b.nonces {
		out[k] = v
	}
	return out
}

// Ledger returns the concrete ledger at address.
func (b *Bank) Ledger(address common.Address) (*Ledger, error) {
	b.mu.RLock()
	ledger, ok := b.ledgers[address]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
	}
	return ledger, nil
}

// Token implements Source.
func (b *Bank) Token(address common.Address) (Token, error) {
	ledger, err := b.Ledger(address)
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// Ledgers returns every ledger ordered by address.
func (b *Bank) Ledgers() []*Ledger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Ledger, 0, len(b.ledgers))
	for _, address := range SortedAccounts(b.ledgers) {
		out = append(out, b.ledgers[address])
	}
	return out
}

// Resolve finds a ledger by hex address or by symbol. A symbol shared by more
// than one ledger is rejected.
func (b *Bank) Resolve(ref string) (*Ledger, error) {
	if common.IsHexAddress(ref) {
		return b.Ledger(common.HexToAddress(ref))
	}
	var found *Ledger
	for _, ledger := range b.Ledgers() {
		if ledger.Symbol() != ref {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: symbol %q is ambiguous", ErrUnknownToken, ref)
		}
		found = ledger
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, ref)
	}
	return found, nil
}
