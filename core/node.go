package core

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"otoledger/core/events"
	"otoledger/core/state"
	"otoledger/native/common"
	"otoledger/native/market"
	"otoledger/native/points"
	"otoledger/native/system"
	"otoledger/native/token"
	"otoledger/storage"
)

// Node applies signed transactions to the ledger state and publishes the
// events of every committed transaction.
type Node struct {
	db     storage.Database
	state  *state.Manager
	bus    *events.Bus
	logger *slog.Logger
	tracer trace.Tracer

	tokens *token.Engine
	system *system.Engine
	points *points.Engine
	market *market.Engine

	pauseMu sync.RWMutex
	pauses  common.Pauses

	quota *quotaTracker
}

// Option customises a Node at construction time.
type Option func(*Node)

// WithLogger sets the logger used for transaction outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithPauses installs the initial module pause switches.
func WithPauses(p common.Pauses) Option {
	return func(n *Node) {
		n.pauses = p.Clone()
	}
}

// WithBuyerSignatureVerification toggles verification of the buyer signature
// carried by transfer proofs.
func WithBuyerSignatureVerification(enabled bool) Option {
	return func(n *Node) {
		n.market.SetVerifyBuyerSignatures(enabled)
	}
}

// WithQuota limits how much each signer may submit per window.
func WithQuota(q common.Quota) Option {
	return func(n *Node) {
		if q.Enabled() {
			n.quota = newQuotaTracker(q)
		}
	}
}

// NewNode wires the native engines on top of db.
func NewNode(db storage.Database, opts ...Option) *Node {
	tokens := token.NewEngine()
	n := &Node{
		db:     db,
		state:  state.NewManager(db),
		bus:    events.NewBus(),
		logger: slog.Default(),
		tracer: otel.Tracer("otoledger/core"),
		tokens: tokens,
		system: system.NewEngine(tokens),
		points: points.NewEngine(tokens),
		market: market.NewEngine(tokens),
		pauses: common.Pauses{},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.points.SetPauses(n)
	n.market.SetPauses(n)
	return n
}

// IsPaused implements common.PauseView over the node's live switches.
func (n *Node) IsPaused(module string) bool {
	n.pauseMu.RLock()
	defer n.pauseMu.RUnlock()
	return n.pauses.IsPaused(module)
}

// SetPaused flips the pause switch of module.
func (n *Node) SetPaused(module string, paused bool) {
	n.pauseMu.Lock()
	defer n.pauseMu.Unlock()
	if paused {
		n.pauses[module] = true
		return
	}
	delete(n.pauses, module)
}

// Subscribe streams committed events. cancel must be called to release the
// subscription.
func (n *Node) Subscribe(buffer int) (<-chan events.Event, func()) {
	return n.bus.Subscribe(buffer)
}

// DroppedEvents reports deliveries skipped for slow subscribers.
func (n *Node) DroppedEvents() uint64 { return n.bus.Dropped() }

// VerifiesBuyerSignatures reports whether settlement checks buyer signatures.
func (n *Node) VerifiesBuyerSignatures() bool { return n.market.VerifyBuyerSignatures() }

// Close releases the underlying database.
func (n *Node) Close() error {
	return n.db.Close()
}
