package model

// PoolWindowMetrics stores aggregated swap activity of one token in one pool
// over a block window [WindowStart, WindowEnd).
type PoolWindowMetrics struct {
	PoolAddress  string
	TokenAddress string
	WindowBlocks uint64
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	VolumeIn     string
	VolumeOut    string
	Fee          string
	FeeMethod    string
}
