package model

// EventRecord is the storage form of a committed event.
type EventRecord struct {
	Seq       uint64            `json:"seq"`
	Block     uint64            `json:"block"`
	Line      uint64            `json:"line"`
	Kind      string            `json:"kind"`
	Source    string            `json:"source"`
	Actor     string            `json:"actor,omitempty"`
	TokenIn   string            `json:"token_in,omitempty"`
	TokenOut  string            `json:"token_out,omitempty"`
	AmountIn  string            `json:"amount_in,omitempty"`
	AmountOut string            `json:"amount_out,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}
