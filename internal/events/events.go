// Package events implements the run event bus (C6). The teacher's
// callback-field pattern (OnStepComplete, OnStreamChunk set directly on
// shared state) is re-expressed here as a proper subscribe/unsubscribe
// registry, so multiple observers — logging, metrics, a UI — can attach to
// the same run without contending for one field.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/omegarun/agentcore/internal/ids"
	"github.com/omegarun/agentcore/internal/state"
)

// Type identifies one of the event shapes in spec.md §4.10.
type Type string

const (
	RunStarted        Type = "RunStarted"
	StepStarted       Type = "StepStarted"
	StepCompleted     Type = "StepCompleted"
	LlmCallStarted    Type = "LlmCallStarted"
	LlmChunkReceived  Type = "LlmChunkReceived"
	LlmCallCompleted  Type = "LlmCallCompleted"
	ToolCallStarted   Type = "ToolCallStarted"
	ToolCallCompleted Type = "ToolCallCompleted"
	StatusUpdate      Type = "StatusUpdate"
	RunCompleted      Type = "RunCompleted"
)

// Event is an immutable snapshot delivered to subscribers. Only the fields
// relevant to Type are populated; the rest are the zero value.
type Event struct {
	Type      Type
	AgentID   string
	Goal      string
	TurnIndex int
	Timestamp time.Time

	Continue     bool
	ExecutedTool string

	Chunk string

	Decision *state.LlmDecision
	Err      *ids.Error

	ToolName string
	Success  bool
	Duration time.Duration

	StatusTitle   string
	StatusDetails string
	NextStepHint  string
	ProgressPct   *int

	Succeeded  bool
	TotalTurns int
}

// Subscriber receives events. It must not block for long — it runs
// synchronously on the emitting run's goroutine.
type Subscriber func(Event)

// SubscriptionID identifies a registered Subscriber for Unsubscribe.
type SubscriptionID int64

type subscription struct {
	id SubscriptionID
	fn Subscriber
}

// Bus is an event pub/sub registry. Delivery to a single Bus preserves
// emission order. A Bus is safe to share across concurrent runs (a
// Scheduler publishes every run's events on its one Bus); events from
// different runs then interleave in no defined order.
type Bus struct {
	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns an ID for later Unsubscribe.
func (b *Bus) Subscribe(fn Subscriber) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously registered subscriber. No-op if unknown.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber, in registration order.
// A panicking subscriber is recovered, logged, and does not prevent
// delivery to the remaining subscribers or affect the run's outcome.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s.fn, ev)
	}
}

func (b *Bus) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] subscriber panicked on %s: %v", ev.Type, r)
		}
	}()
	fn(ev)
}
