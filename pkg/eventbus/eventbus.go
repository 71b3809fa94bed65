// Package eventbus is a broadcast channel of core events, with per-subscriber
// buffering, drop-on-overflow, and a debounced invalidation variant.
package eventbus

import (
	"sync"
	"time"

	"github.com/latticefs/core/pkg/log"
)

// DebounceWindow bounds how often a subscriber receives an
// InvalidateOperationDebounced for the same target.
const DebounceWindow = 100 * time.Millisecond

// subscriberBuffer is the per-subscriber channel depth.
const subscriberBuffer = 64

// CoreEventKind discriminates the CoreEvent variants.
type CoreEventKind int

const (
	KindNewThumbnail CoreEventKind = iota
	KindInvalidateOperation
	KindInvalidateOperationDebounced
)

// CoreEvent is the sum type carried by the bus.
type CoreEvent struct {
	Kind   CoreEventKind
	CasID  string // set for KindNewThumbnail
	Target string // set for the Invalidate* variants
}

func NewThumbnail(casID string) CoreEvent {
	return CoreEvent{Kind: KindNewThumbnail, CasID: casID}
}

func InvalidateOperation(target string) CoreEvent {
	return CoreEvent{Kind: KindInvalidateOperation, Target: target}
}

func InvalidateOperationDebounced(target string) CoreEvent {
	return CoreEvent{Kind: KindInvalidateOperationDebounced, Target: target}
}

// Subscriber is the channel a subscriber reads events from.
type Subscriber chan CoreEvent

type debounceState struct {
	lastSent time.Time
	pending  *CoreEvent
	timer    *time.Timer
}

// Broker fans CoreEvents out to subscribers.
type Broker struct {
	mu          sync.Mutex
	subscribers map[Subscriber]*subscriberState
	lag         int64 // total dropped events, for logging
}

type subscriberState struct {
	debounce map[string]*debounceState
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[Subscriber]*subscriberState)}
}

// Subscribe registers a new subscriber and returns its channel. Events
// published before Subscribe is called are not replayed.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = &subscriberState{debounce: make(map[string]*debounceState)}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.subscribers[sub]; ok {
		for _, d := range st.debounce {
			if d.timer != nil {
				d.timer.Stop()
			}
		}
		delete(b.subscribers, sub)
		close(sub)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish delivers event to every current subscriber. NewThumbnail and
// InvalidateOperation are delivered immediately; InvalidateOperationDebounced
// is coalesced per subscriber to at most one per DebounceWindow.
func (b *Broker) Publish(event CoreEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub, st := range b.subscribers {
		if event.Kind == KindInvalidateOperationDebounced {
			b.publishDebounced(sub, st, event)
			continue
		}
		b.send(sub, event)
	}
}

// send delivers ev to sub, dropping the oldest buffered event on overflow.
func (b *Broker) send(sub Subscriber, ev CoreEvent) {
	select {
	case sub <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest and retry once.
	select {
	case <-sub:
		b.lag++
		log.Logger.Warn().Int64("lag", b.lag).Msg("eventbus: subscriber buffer full, dropped oldest event")
	default:
	}

	select {
	case sub <- ev:
	default:
	}
}

func (b *Broker) publishDebounced(sub Subscriber, st *subscriberState, ev CoreEvent) {
	d, ok := st.debounce[ev.Target]
	if !ok {
		d = &debounceState{}
		st.debounce[ev.Target] = d
	}

	since := time.Since(d.lastSent)
	if since >= DebounceWindow {
		d.lastSent = time.Now()
		b.send(sub, ev)
		return
	}

	// Within the window: remember the latest value. If a flush is already
	// scheduled it is kept and will send this value; otherwise schedule
	// exactly one flush at the window boundary.
	copied := ev
	d.pending = &copied
	if d.timer != nil {
		return
	}
	wait := DebounceWindow - since
	d.timer = time.AfterFunc(wait, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, stillSubscribed := b.subscribers[sub]; !stillSubscribed {
			return
		}
		pending := d.pending
		d.pending = nil
		d.timer = nil
		if pending != nil {
			d.lastSent = time.Now()
			b.send(sub, *pending)
		}
	})
}
