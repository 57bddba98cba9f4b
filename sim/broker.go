package sim

import (
	"sync"
	"time"
)

// PendingEvent is one external write awaiting resolution: the wall-clock time
// of the write plus the written value.
type PendingEvent struct {
	Time  time.Time
	Value any
}

// GridState is the snapshot of microgrid state published to the Broker once
// per step, so API handlers can serve reads without touching live simulation
// state.
type GridState struct {
	Clock       int64              `json:"clock"`
	Time        time.Time          `json:"time"`
	TotalPower  float64            `json:"total_power"`
	ActorPowers map[string]float64 `json:"actor_powers"`
	Soc         float64            `json:"soc"`
	ChargeLevel float64            `json:"charge_level"`
	MinSoc      float64            `json:"min_soc"`
}

// Broker mediates between external writers (network request handlers, running
// on their own goroutines) and the single-threaded simulation loop. Writers
// append events with SetEvent at any time; the SiL controller drains all
// pending events exactly once per step. Events written before a drain are
// visible to that drain; events written concurrently with or after it land in
// the next one. No event is lost or split across drains.
//
// A Broker's lifetime is scoped to one Environment run.
type Broker struct {
	mu      sync.Mutex
	pending map[string][]PendingEvent
	state   GridState
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{pending: make(map[string][]PendingEvent)}
}

// SetEvent appends (now, value) to the key's pending sequence. Safe to call
// from any goroutine; the critical section is a single map append, so the
// simulation thread is never blocked for longer than that.
func (b *Broker) SetEvent(key string, value any) {
	ev := PendingEvent{Time: time.Now(), Value: value}
	b.mu.Lock()
	b.pending[key] = append(b.pending[key], ev)
	b.mu.Unlock()
}

// Drain atomically removes and returns all pending events, keyed by event
// key with each key's events in arrival order. The broker is empty afterward:
// pending events belong to "since the last drain" and are never carried
// forward, whether or not anything consumes them.
func (b *Broker) Drain() map[string][]PendingEvent {
	b.mu.Lock()
	drained := b.pending
	b.pending = make(map[string][]PendingEvent)
	b.mu.Unlock()
	return drained
}

// PublishState replaces the readable microgrid snapshot. Called by the SiL
// controller once per step, from the simulation thread only.
func (b *Broker) PublishState(s GridState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// State returns the most recently published snapshot. Safe to call from any
// goroutine.
func (b *Broker) State() GridState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
