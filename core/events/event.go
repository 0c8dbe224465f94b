package events

import (
	"sync"
	"sync/atomic"

	"otoledger/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Renderer is implemented by events that can be flattened into the generic
// attribute form stored with a receipt.
type Renderer interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Committed wraps a rendered event with the transaction that produced it.
type Committed struct {
	TxHash string       `json:"txHash"`
	Op     string       `json:"op"`
	Evt    *types.Event `json:"event"`
}

func (c Committed) EventType() string {
	if c.Evt == nil {
		return ""
	}
	return c.Evt.Type
}

func (c Committed) Event() *types.Event { return c.Evt }

// Bus fans events out to subscribers. A subscriber that falls behind loses
// events rather than stalling the ledger.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a listener with the given buffer. The returned cancel
// func closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
