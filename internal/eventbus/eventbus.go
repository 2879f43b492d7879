// Package eventbus implements the in-process publish/subscribe bus of
// spec.md §4.7: publishers never block for more than a bounded queue slot, a
// slow subscriber is disconnected rather than allowed to head-of-line-block
// everyone else, and a retained ring lets a reconnecting client replay
// events it missed since a given sequence number.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind is the lower-snake-case tag of one of the §4.7 tagged-union event
// variants.
type Kind string

const (
	KindConnected         Kind = "connected"
	KindRunStarted        Kind = "run_started"
	KindIterationStarted  Kind = "iteration_started"
	KindPhaseStarted      Kind = "phase_started"
	KindPhaseDone         Kind = "phase_done"
	KindConsensusUpdate   Kind = "consensus_update"
	KindAgentSpawned      Kind = "agent_spawned"
	KindIterationComplete Kind = "iteration_completed"
	KindRunCompleted      Kind = "run_completed"
	KindRunFailed         Kind = "run_failed"
)

// Event is one bus message: every variant carries a monotonically
// increasing sequence number and a wall-clock timestamp (spec §4.7); the
// variant-specific payload lives in Data.
type Event struct {
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"event"`
	Data      map[string]any `json:"data"`
}

const defaultCapacity = 256
const defaultDrainDeadline = 2 * time.Second

// Subscription is a live subscriber's inbox and unsubscribe handle.
type Subscription struct {
	ch     chan Event
	cancel func()
}

// Events returns the subscriber's inbox. It is closed when the bus shuts
// down or disconnects this subscriber for being too slow.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() { s.cancel() }

type subscriber struct {
	id    uint64
	inbox chan Event
}

// Bus is the run-scoped event bus. One Bus per run; the control plane reads
// it through Subscribe, never by inspecting orchestrator state directly.
type Bus struct {
	mu          sync.Mutex
	subs        map[uint64]*subscriber
	nextSubID   uint64
	seq         uint64
	capacity    int
	retain      []Event // ring of the last `retainSize` published events, for `since` replay
	retainSize  int
	closed      bool
	logger      *slog.Logger
	drainDead   time.Duration
}

// Option configures a Bus.
type Option func(*Bus)

// WithCapacity overrides the default per-subscriber inbox size (256),
// matching the EVENT_BUS_CAPACITY environment variable of spec §6.
func WithCapacity(c int) Option {
	return func(b *Bus) {
		if c > 0 {
			b.capacity = c
		}
	}
}

// WithDrainDeadline overrides the default 2s best-effort shutdown drain
// window; primarily for tests that want Shutdown to return quickly.
func WithDrainDeadline(d time.Duration) Option {
	return func(b *Bus) {
		if d >= 0 {
			b.drainDead = d
		}
	}
}

// WithRetain overrides the number of recently published events kept for
// `since`-cursor replay (default 0, per spec §4.7; §4.8's SSE/WS transport
// sets this higher so Last-Event-ID reconnects can replay).
func WithRetain(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.retainSize = n
		}
	}
}

// New builds an empty Bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[uint64]*subscriber),
		capacity:  defaultCapacity,
		drainDead: defaultDrainDeadline,
		logger:    logger.With("component", "eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber. If since > 0, events with a
// retained sequence number greater than since are replayed into the new
// subscriber's inbox before any newly published event (spec §4.7, §4.8
// Last-Event-ID semantics).
func (b *Bus) Subscribe(since uint64) *Subscription {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	sub := &subscriber{id: id, inbox: make(chan Event, b.capacity)}

	var replay []Event
	if since > 0 {
		for _, ev := range b.retain {
			if ev.Seq > since {
				replay = append(replay, ev)
			}
		}
	}
	// Replay while still holding the lock, so no concurrent Publish can slip
	// a newer event into the inbox ahead of the replayed ones.
	for _, ev := range replay {
		select {
		case sub.inbox <- ev:
		default:
			// replay backlog alone overflows the inbox; stop early rather than
			// dropping live events to make room.
		}
	}
	if !b.closed {
		b.subs[id] = sub
	}
	closed := b.closed
	b.mu.Unlock()

	if closed {
		close(sub.inbox)
	}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok && existing == sub {
			delete(b.subs, id)
			close(sub.inbox)
		}
	}
	return &Subscription{ch: sub.inbox, cancel: cancel}
}

// Publish assigns the next sequence number and timestamp, retains the event
// for replay, and delivers it to every subscriber's inbox without blocking:
// a subscriber whose inbox is full is disconnected (policy
// disconnect-slow-subscriber, spec §4.7) rather than stalling delivery to
// everyone else.
func (b *Bus) Publish(kind Kind, data map[string]any) Event {
	b.mu.Lock()
	b.seq++
	ev := Event{Seq: b.seq, Timestamp: time.Now(), Kind: kind, Data: data}

	if b.retainSize > 0 {
		b.retain = append(b.retain, ev)
		if len(b.retain) > b.retainSize {
			b.retain = b.retain[len(b.retain)-b.retainSize:]
		}
	}

	var dropped []uint64
	for id, sub := range b.subs {
		select {
		case sub.inbox <- ev:
		default:
			close(sub.inbox)
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, id := range dropped {
		b.logger.Warn("disconnected slow subscriber", "subscriber_id", id, "seq", ev.Seq)
	}
	return ev
}

// Shutdown marks the bus closed and closes every subscriber's channel after
// a best-effort drain deadline (default 2s, spec §4.7), giving slow
// consumers one last window to catch up before the connection is severed.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.drainDead)
	defer cancel()
	<-ctx.Done()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.inbox)
		delete(b.subs, id)
	}
}

// SubscriberCount reports the number of currently live subscribers, used by
// control-plane status snapshots.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
