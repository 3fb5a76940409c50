package model

// ExchangeSnapshot is the full persisted state of an exchange.
type ExchangeSnapshot struct {
	Block   uint64            `json:"block"`
	Seq     uint64            `json:"seq"`
	Tokens  []TokenSnapshot   `json:"tokens"`
	Nonces  map[string]uint64 `json:"nonces,omitempty"`
	Factory FactorySnapshot   `json:"factory"`
	Pools   []Pool            `json:"pools"`
	Bingo   BingoSnapshot     `json:"bingo"`
}

// TokenSnapshot holds one ledger. Amounts are raw base units.
type TokenSnapshot struct {
	Address    string                       `json:"address"`
	Symbol     string                       `json:"symbol"`
	Balances   map[string]string            `json:"balances,omitempty"`
	Allowances map[string]map[string]string `json:"allowances,omitempty"`
	Frozen     []string                     `json:"frozen,omitempty"`
}

type FactorySnapshot struct {
	Address string              `json:"address"`
	Admin   string              `json:"admin"`
	Nonce   uint64              `json:"nonce"`
	Owners  map[string][]string `json:"owners,omitempty"`
}

// BingoSnapshot holds the game and its open round. Cards are flattened line
// by line.
type BingoSnapshot struct {
	Address        string            `json:"address"`
	Seed           string            `json:"seed"`
	Running        bool              `json:"running"`
	Pot            string            `json:"pot"`
	Players        []string          `json:"players,omitempty"`
	Cards          map[string][]int  `json:"cards,omitempty"`
	FirstCardBlock uint64            `json:"first_card_block"`
	TimeLastCard   uint64            `json:"time_last_card"`
	Called         []int             `json:"called,omitempty"`
	OneLine        []string          `json:"one_line,omitempty"`
	FullHouse      []string          `json:"full_house,omitempty"`
	Prizes         map[string]string `json:"prizes,omitempty"`
}
