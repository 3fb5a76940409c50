package event

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind names a successful state transition.
type Kind string

const (
	PoolCreated    Kind = "pool_created"
	PoolDestroyed  Kind = "pool_destroyed"
	PoolStarted    Kind = "pool_started"
	TokenAdded     Kind = "token_added"
	TokenWithdrawn Kind = "token_withdrawn"
	Swap           Kind = "swap"
	SeedChanged    Kind = "seed_changed"
	CardGenerated  Kind = "card_generated"
	GameStarted    Kind = "game_started"
	NumberCalled   Kind = "number_called"
	GameEnded      Kind = "game_ended"
	PrizeCollected Kind = "prize_collected"
)

// Event is emitted after a state change is committed.
type Event struct {
	Seq       uint64
	Block     uint64
	Kind      Kind
	Source    common.Address
	Actor     common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Attrs     map[string]string
}

// Sink receives committed events. Publish must not call back into the emitter.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(Event) {})

// Or returns sink, or Nop when sink is nil.
func Or(sink Sink) Sink {
	if sink == nil {
		return Nop
	}
	return sink
}

// Multi fans an event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(e)
			}
		}
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds lists recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Drain returns and clears what was recorded.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Sequencer stamps a monotonically increasing sequence number and the current
// block on each event before forwarding it.
type Sequencer struct {
	mu    sync.Mutex
	next  Sink
	block func() uint64
	seq   uint64
}

func NewSequencer(next Sink, block func() uint64) *Sequencer {
	return &Sequencer{next: Or(next), block: block}
}

func (s *Sequencer) Publish(e Event) {
	s.mu.Lock()
	s.seq++
	e.Seq = s.seq
	if s.block != nil {
		e.Block = s.block()
	}
	s.mu.Unlock()
	s.next.Publish(e)
}

// Last returns the last sequence number handed out.
func (s *Sequencer) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset sets the sequence so the next event gets seq+1.
func (s *Sequencer) Reset(seq uint64) {
	s.mu.Lock()
	s.seq = seq
	s.mu.Unlock()
}
