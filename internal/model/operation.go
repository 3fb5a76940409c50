package model

// Operation is one line of an operations file. Amounts are decimal strings
// with up to 18 fractional digits. Token references accept a hex address or
// a deployed symbol.
type Operation struct {
	Kind     string `json:"kind"`
	Caller   string `json:"caller"`
	Symbol   string `json:"symbol,omitempty"`
	Token    string `json:"token,omitempty"`
	TokenOut string `json:"token_out,omitempty"`
	To       string `json:"to,omitempty"`
	Pool     string `json:"pool,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Weight   string `json:"weight,omitempty"`
	TokenB   string `json:"token_b,omitempty"`
	AmountB  string `json:"amount_b,omitempty"`
	WeightB  string `json:"weight_b,omitempty"`
	Fee      string `json:"fee,omitempty"`
	ExactOut bool   `json:"exact_out,omitempty"`
	Blocks   uint64 `json:"blocks,omitempty"`

	Line uint64 `json:"-"`
}

// OperationFailure records an operation that was rejected.
type OperationFailure struct {
	Line   uint64 `json:"line"`
	Block  uint64 `json:"block"`
	Kind   string `json:"kind"`
	Caller string `json:"caller"`
	Error  string `json:"error"`
}
