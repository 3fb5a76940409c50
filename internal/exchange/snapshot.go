package exchange

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammLedger/internal/bingo"
	"ammLedger/internal/event"
	"ammLedger/internal/factory"
	"ammLedger/internal/fixed"
	"ammLedger/internal/model"
	"ammLedger/internal/pool"
	"ammLedger/internal/token"
)

// Snapshot captures the whole exchange state.
func (e *Exchange) Snapshot() model.ExchangeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.ExchangeSnapshot{
		Block:  e.block.Load(),
		Seq:    e.seq.Last(),
		Nonces: make(map[string]uint64),
	}
	for _, ledger := range e.bank.Ledgers() {
		snap.Tokens = append(snap.Tokens, tokenSnapshot(ledger))
	}
	for deployer, nonce := range e.bank.Nonces() {
		snap.Nonces[deployer.Hex()] = nonce
	}

	fs := e.factory.State()
	snap.Factory = model.FactorySnapshot{
		Address: e.factory.Address().Hex(),
		Admin:   e.factory.Admin().Hex(),
		Nonce:   fs.Nonce,
		Owners:  make(map[string][]string, len(fs.Owners)),
	}
	for owner, list := range fs.Owners {
		snap.Factory.Owners[owner.Hex()] = hexList(list)
	}
	for _, ps := range fs.Pools {
		snap.Pools = append(snap.Pools, poolRecord(e.bank, ps, snap.Block))
	}

	snap.Bingo = bingoSnapshot(e.game.Address(), e.game.State())
	return snap
}

// Pools returns a storage row for every live pool.
func (e *Exchange) Pools() []model.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	fs := e.factory.State()
	out := make([]model.Pool, 0, len(fs.Pools))
	for _, ps := range fs.Pools {
		out = append(out, poolRecord(e.bank, ps, e.block.Load()))
	}
	return out
}

// Restore replaces the exchange state with snap. On error the current state
// is kept.
func (e *Exchange) Restore(snap model.ExchangeSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bank := token.NewBank()
	for _, ts := range snap.Tokens {
		ledger, err := restoreLedger(ts)
		if err != nil {
			return fmt.Errorf("restore token %s: %w", ts.Address, err)
		}
		bank.Register(ledger)
	}
	for deployer, nonce := range snap.Nonces {
		address, err := parseAccount("deployer", deployer)
		if err != nil {
			return err
		}
		bank.SetNonce(address, nonce)
	}

	fs, err := factoryState(snap)
	if err != nil {
		return err
	}
	f, err := factory.Restore(e.factoryConfig(bank), fs)
	if err != nil {
		return fmt.Errorf("restore factory: %w", err)
	}

	gs, err := bingoState(snap.Bingo)
	if err != nil {
		return err
	}
	g, err := bingo.Restore(e.gameConfig(bank), gs)
	if err != nil {
		return fmt.Errorf("restore bingo: %w", err)
	}

	e.bank, e.factory, e.game = bank, f, g
	e.block.Store(snap.Block)
	e.seq.Reset(snap.Seq)
	return nil
}

func tokenSnapshot(ledger *token.Ledger) model.TokenSnapshot {
	ts := model.TokenSnapshot{
		Address:  ledger.Address().Hex(),
		Symbol:   ledger.Symbol(),
		Balances: make(map[string]string),
	}
	for account, balance := range ledger.Holders() {
		ts.Balances[account.Hex()] = balance.Dec()
	}
	allowances := ledger.Allowances()
	if len(allowances) > 0 {
		ts.Allowances = make(map[string]map[string]string, len(allowances))
		for owner, spenders := range allowances {
			row := make(map[string]string, len(spenders))
			for spender, amount := range spenders {
				row[spender.Hex()] = amount.Dec()
			}
			ts.Allowances[owner.Hex()] = row
		}
	}
	ts.Frozen = hexList(ledger.Frozen())
	return ts
}

func restoreLedger(ts model.TokenSnapshot) (*token.Ledger, error) {
	address, err := parseAccount("token", ts.Address)
	if err != nil {
		return nil, err
	}
	ledger := token.NewLedger(address, ts.Symbol)

	// Mint in address order so a supply overflow is reported deterministically.
	holders := make([]string, 0, len(ts.Balances))
	for account := range ts.Balances {
		holders = append(holders, account)
	}
	sort.Strings(holders)
	for _, account := range holders {
		holder, err := parseAccount("holder", account)
		if err != nil {
			return nil, err
		}
		amount, err := fixed.ParseRaw(ts.Balances[account])
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", account, err)
		}
		if err := ledger.Mint(holder, amount); err != nil {
			return nil, err
		}
	}
	for owner, spenders := range ts.Allowances {
		ownerAddr, err := parseAccount("owner", owner)
		if err != nil {
			return nil, err
		}
		for spender, raw := range spenders {
			spenderAddr, err := parseAccount("spender", spender)
			if err != nil {
				return nil, err
			}
			amount, err := fixed.ParseRaw(raw)
			if err != nil {
				return nil, fmt.Errorf("allowance %s/%s: %w", owner, spender, err)
			}
			if err := ledger.Approve(ownerAddr, spenderAddr, amount); err != nil {
				return nil, err
			}
		}
	}
	for _, account := range ts.Frozen {
		frozen, err := parseAccount("frozen", account)
		if err != nil {
			return nil, err
		}
		ledger.Freeze(frozen)
	}
	return ledger, nil
}

func poolRecord(bank *token.Bank, ps pool.State, block uint64) model.Pool {
	rec := model.Pool{
		Address: ps.Address.Hex(),
		Admin:   ps.Admin.Hex(),
		Fee:     fixed.Format(ps.Fee),
		Started: ps.Started,
		Tokens:  make([]model.PoolToken, 0, len(ps.Tokens)),
		Block:   block,
	}
	for _, t := range ps.Tokens {
		pt := model.PoolToken{
			Address: t.Address.Hex(),
			Weight:  fixed.Format(t.Weight),
			Balance: fixed.Format(t.Balance),
		}
		if ledger, err := bank.Ledger(t.Address); err == nil {
			pt.Symbol = ledger.Symbol()
		}
		rec.Tokens = append(rec.Tokens, pt)
	}
	return rec
}

// PoolState converts a stored pool row back into engine state.
func PoolState(rec model.Pool) (pool.State, error) {
	address, err := parseAccount("pool", rec.Address)
	if err != nil {
		return pool.State{}, err
	}
	admin, err := parseAccount("admin", rec.Admin)
	if err != nil {
		return pool.State{}, err
	}
	fee, err := fixed.Parse(rec.Fee)
	if err != nil {
		return pool.State{}, fmt.Errorf("pool %s fee: %w", rec.Address, err)
	}
	ps := pool.State{Address: address, Admin: admin, Fee: fee, Started: rec.Started}
	for _, t := range rec.Tokens {
		tokenAddr, err := parseAccount("token", t.Address)
		if err != nil {
			return pool.State{}, err
		}
		info, err := pool.NewTokenInfo(t.Weight, t.Balance)
		if err != nil {
			return pool.State{}, fmt.Errorf("pool %s token %s: %w", rec.Address, t.Address, err)
		}
		ps.Tokens = append(ps.Tokens, pool.TokenState{Address: tokenAddr, Weight: info.Weight, Balance: info.Balance})
	}
	return ps, nil
}

func factoryState(snap model.ExchangeSnapshot) (factory.State, error) {
	fs := factory.State{
		Nonce:  snap.Factory.Nonce,
		Owners: make(map[common.Address][]common.Address, len(snap.Factory.Owners)),
	}
	for owner, list := range snap.Factory.Owners {
		ownerAddr, err := parseAccount("owner", owner)
		if err != nil {
			return factory.State{}, err
		}
		addresses, err := parseList("pool", list)
		if err != nil {
			return factory.State{}, err
		}
		fs.Owners[ownerAddr] = addresses
	}
	for _, rec := range snap.Pools {
		ps, err := PoolState(rec)
		if err != nil {
			return factory.State{}, err
		}
		fs.Pools = append(fs.Pools, ps)
	}
	return fs, nil
}

func bingoSnapshot(address common.Address, st bingo.State) model.BingoSnapshot {
	bs := model.BingoSnapshot{
		Address:        address.Hex(),
		Seed:           st.Seed.Hex(),
		Running:        st.Running,
		Pot:            st.Pot.Dec(),
		Players:        hexList(st.Players),
		FirstCardBlock: st.FirstCardBlock,
		TimeLastCard:   st.TimeLastCard,
		OneLine:        hexList(st.OneLine),
		FullHouse:      hexList(st.FullHouse),
	}
	if len(st.Cards) > 0 {
		bs.Cards = make(map[string][]int, len(st.Cards))
		for player, card := range st.Cards {
			numbers := make([]int, 0, bingo.LineCount*bingo.NumbersPerLine)
			for _, n := range card.Numbers() {
				numbers = append(numbers, int(n))
			}
			bs.Cards[player.Hex()] = numbers
		}
	}
	for _, n := range st.Called {
		bs.Called = append(bs.Called, int(n))
	}
	if len(st.Prizes) > 0 {
		bs.Prizes = make(map[string]string, len(st.Prizes))
		for player, prize := range st.Prizes {
			bs.Prizes[player.Hex()] = prize.Dec()
		}
	}
	return bs
}

func bingoState(bs model.BingoSnapshot) (bingo.State, error) {
	st := bingo.State{
		Running:        bs.Running,
		Pot:            new(uint256.Int),
		Cards:          make(map[common.Address]bingo.Card, len(bs.Cards)),
		FirstCardBlock: bs.FirstCardBlock,
		TimeLastCard:   bs.TimeLastCard,
		Prizes:         make(map[common.Address]*uint256.Int, len(bs.Prizes)),
	}
	if bs.Seed != "" {
		st.Seed = common.HexToHash(bs.Seed)
	}
	if bs.Pot != "" {
		pot, err := fixed.ParseRaw(bs.Pot)
		if err != nil {
			return bingo.State{}, fmt.Errorf("bingo pot: %w", err)
		}
		st.Pot = pot
	}

	var err error
	if st.Players, err = parseList("player", bs.Players); err != nil {
		return bingo.State{}, err
	}
	if st.OneLine, err = parseList("winner", bs.OneLine); err != nil {
		return bingo.State{}, err
	}
	if st.FullHouse, err = parseList("winner", bs.FullHouse); err != nil {
		return bingo.State{}, err
	}
	for player, numbers := range bs.Cards {
		addr, err := parseAccount("player", player)
		if err != nil {
			return bingo.State{}, err
		}
		if len(numbers) != bingo.LineCount*bingo.NumbersPerLine {
			return bingo.State{}, fmt.Errorf("card of %s has %d numbers", player, len(numbers))
		}
		var card bingo.Card
		for i, n := range numbers {
			if n < 1 || n > bingo.MaxNumber {
				return bingo.State{}, fmt.Errorf("card of %s: number %d out of range", player, n)
			}
			card[i/bingo.NumbersPerLine][i%bingo.NumbersPerLine] = uint8(n)
		}
		st.Cards[addr] = card
	}
	for _, n := range bs.Called {
		if n < 1 || n > bingo.MaxNumber {
			return bingo.State{}, fmt.Errorf("called number %d out of range", n)
		}
		st.Called = append(st.Called, uint8(n))
	}
	for player, raw := range bs.Prizes {
		addr, err := parseAccount("player", player)
		if err != nil {
			return bingo.State{}, err
		}
		prize, err := fixed.ParseRaw(raw)
		if err != nil {
			return bingo.State{}, fmt.Errorf("prize of %s: %w", player, err)
		}
		st.Prizes[addr] = prize
	}
	return st, nil
}

// EventRecord converts a committed event into its storage form.
func EventRecord(ev event.Event, line uint64) model.EventRecord {
	rec := model.EventRecord{
		Seq:    ev.Seq,
		Block:  ev.Block,
		Line:   line,
		Kind:   string(ev.Kind),
		Source: ev.Source.Hex(),
		Attrs:  ev.Attrs,
	}
	if ev.Actor != (common.Address{}) {
		rec.Actor = ev.Actor.Hex()
	}
	if ev.TokenIn != (common.Address{}) {
		rec.TokenIn = ev.TokenIn.Hex()
	}
	if ev.TokenOut != (common.Address{}) {
		rec.TokenOut = ev.TokenOut.Hex()
	}
	if ev.AmountIn != nil {
		rec.AmountIn = ev.AmountIn.Dec()
	}
	if ev.AmountOut != nil {
		rec.AmountOut = ev.AmountOut.Dec()
	}
	return rec
}

func hexList(list []common.Address) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Hex()
	}
	return out
}

func parseList(field string, list []string) ([]common.Address, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]common.Address, len(list))
	for i, s := range list {
		a, err := parseAccount(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// ConfigFromSnapshot returns the account layout recorded in snap, for
// restoring it into an exchange built without other settings.
func ConfigFromSnapshot(snap model.ExchangeSnapshot) (Config, error) {
	admin, err := parseAccount("factory admin", snap.Factory.Admin)
	if err != nil {
		return Config{}, err
	}
	factoryAddr, err := parseAccount("factory address", snap.Factory.Address)
	if err != nil {
		return Config{}, err
	}
	gameAddr, err := parseAccount("bingo address", snap.Bingo.Address)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Admin:          admin,
		FactoryAddress: factoryAddr,
		GameAddress:    gameAddr,
		StartBlock:     snap.Block,
	}, nil
}
