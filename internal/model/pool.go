package model

// Pool is a pool snapshot row for storage.
type Pool struct {
	Address string      `json:"address"`
	Admin   string      `json:"admin"`
	Fee     string      `json:"fee"`
	Started bool        `json:"started"`
	Tokens  []PoolToken `json:"tokens"`
	Block   uint64      `json:"block"`
}

// PoolToken is one registry entry, in registry order.
type PoolToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol,omitempty"`
	Weight  string `json:"weight"`
	Balance string `json:"balance"`
}
