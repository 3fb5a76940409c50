package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type changeKind uint8

const (
	balanceChange changeKind = iota
	allowanceChange
	supplyChange
)

type journalEntry struct {
	kind    changeKind
	account common.Address
	spender common.Address
	prev    *uint256.Int
}

// Ledger is an in-memory ERC-20 style token.
//
// Snapshots hold an exclusive session on the ledger until they are reverted or
// released, so two settlements never interleave journal entries. Callers that
// snapshot several ledgers must do so in a consistent order.
type Ledger struct {
	address common.Address
	symbol  string

	session sync.Mutex

	mu         sync.Mutex
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	supply     *uint256.Int
	frozen     map[common.Address]struct{}
	journal    []journalEntry
	recording  bool
}

// NewLedger creates an empty token at address.
func NewLedger(address common.Address, symbol string) *Ledger {
	return &Ledger{
		address:    address,
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:     new(uint256.Int),
		frozen:     make(map[common.Address]struct{}),
	}
}

func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.supply)
}

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account)
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowanceLocked(owner, spender)
}

// Mint credits amount to account and grows the supply.
func (l *Ledger) Mint(account common.Address, amount *uint256.Int) error {
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return fmt.Errorf("mint %s: supply overflow", l.symbol)
	}
	l.record(journalEntry{kind: supplyChange, prev: l.supply})
	l.supply = supply
	l.setBalanceLocked(account, new(uint256.Int).Add(l.balanceLocked(account), amount))
	return nil
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowanceLocked(from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("%s: %w: %s allowed %s, need %s", l.symbol, ErrInsufficientAllowance, spender.Hex(), allowed.Dec(), amount.Dec())
	}
	if err := l.checkMoveLocked(from, to, amount); err != nil {
		return err
	}
	l.setAllowanceLocked(from, spender, new(uint256.Int).Sub(allowed, amount))
	return l.moveLocked(from, to, amount)
}

func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowanceLocked(owner, spender, new(uint256.Int).Set(amount))
	return nil
}

// Freeze makes every transfer touching account fail.
func (l *Ledger) Freeze(account common.Address) {
	l.mu.Lock()
	l.frozen[account] = struct{}{}
	l.mu.Unlock()
}

func (l *Ledger) Unfreeze(account common.Address) {
	l.mu.Lock()
	delete(l.frozen, account)
	l.mu.Unlock()
}

func (l *Ledger) Snapshot() int {
	l.session.Lock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = true
	return len(l.journal)
}

func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	for i := len(l.journal) - 1; i >= id; i-- {
		entry := l.journal[i]
		switch entry.kind {
		case balanceChange:
			l.balances[entry.account] = entry.prev
		case allowanceChange:
			l.allowances[entry.account][entry.spender] = entry.prev
		case supplyChange:
			l.supply = entry.prev
		}
	}
	l.closeLocked()
	l.mu.Unlock()
	l.session.Unlock()
}

func (l *Ledger) Release(int) {
	l.mu.Lock()
	l.closeLocked()
	l.mu.Unlock()
	l.session.Unlock()
}

// Holders returns a copy of every non-zero balance.
func (l *Ledger) Holders() map[common.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.Address]*uint256.Int, len(l.balances))
	for account, balance := range l.balances {
		if balance.IsZero() {
			continue
		}
		out[account] = new(uint256.Int).Set(balance)
	}
	return out
}

// Allowances returns a copy of every non-zero allowance keyed by owner then spender.
func (l *Ledger) Allowances() map[common.Address]map[common.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[common.Address]map[common.Address]*uint256.Int)
	for owner, spenders := range l.allowances {
		for spender, amount := range spenders {
			if amount.IsZero() {
				continue
			}
			if out[owner] == nil {
				out[owner] = make(map[common.Address]*uint256.Int)
			}
			out[owner][spender] = new(uint256.Int).Set(amount)
		}
	}
	return out
}

// Frozen lists frozen accounts in address order.
func (l *Ledger) Frozen() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return SortedAccounts(l.frozen)
}

// SortedAccounts orders a holder map for stable output.
func SortedAccounts[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}

func (l *Ledger) closeLocked() {
	l.recording = false
	l.journal = l.journal[:0]
}

func (l *Ledger) checkMoveLocked(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, ok := l.frozen[from]; ok {
		return fmt.Errorf("%s: %w: %s", l.symbol, ErrFrozen, from.Hex())
	}
	if _, ok := l.frozen[to]; ok {
		return fmt.Errorf("%s: %w: %s", l.symbol, ErrFrozen, to.Hex())
	}
	if balance := l.balanceLocked(from); balance.Lt(amount) {
		return fmt.Errorf("%s: %w: %s has %s, need %s", l.symbol, ErrInsufficientBalance, from.Hex(), balance.Dec(), amount.Dec())
	}
	return nil
}

func (l *Ledger) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if err := l.checkMoveLocked(from, to, amount); err != nil {
		return err
	}
	if amount.IsZero() || from == to {
		return nil
	}
	l.setBalanceLocked(from, new(uint256.Int).Sub(l.balanceLocked(from), amount))
	l.setBalanceLocked(to, new(uint256.Int).Add(l.balanceLocked(to), amount))
	return nil
}

func (l *Ledger) balanceLocked(account common.Address) *uint256.Int {
	if balance, ok := l.balances[account]; ok {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if spenders, ok := l.allowances[owner]; ok {
		if amount, ok := spenders[spender]; ok {
			return new(uint256.Int).Set(amount)
		}
	}
	return new(uint256.Int)
}

func (l *Ledger) setBalanceLocked(account common.Address, value *uint256.Int) {
	l.record(journalEntry{kind: balanceChange, account: account, prev: l.balances[account]})
	l.balances[account] = value
}

func (l *Ledger) setAllowanceLocked(owner, spender common.Address, value *uint256.Int) {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = spenders
	}
	l.record(journalEntry{kind: allowanceChange, account: owner, spender: spender, prev: spenders[spender]})
	spenders[spender] = value
}

func (l *Ledger) record(entry journalEntry) {
	if !l.recording {
		return
	}
	if entry.prev == nil {
		entry.prev = new(uint256.Int)
	}
	l.journal = append(l.journal, entry)
}
