package alert

import (
	"sync"

	"go.uber.org/zap"
)

// subscriberBufferSize is the number of deltas buffered per subscriber on top
// of its initial snapshot.
const subscriberBufferSize = 64

// DeltaKind says whether a delta adds/updates an alert in the subscriber's
// view or removes it.
type DeltaKind string

const (
	DeltaUpsert DeltaKind = "upsert"
	DeltaRemove DeltaKind = "remove"
)

// Delta is one change to the active alert set. Deltas are idempotent upserts
// keyed by AlertID; subscribers may receive the same state more than once.
// Initial marks deltas that belong to the snapshot delivered right after
// subscribing, so clients can suppress audible alarms on reconnect.
type Delta struct {
	Kind    DeltaKind `json:"kind"`
	AlertID string    `json:"alert_id"`
	Alert   *Alert    `json:"alert,omitempty"`
	Initial bool      `json:"initial,omitempty"`
}

// Bus fans out alert set changes to every live subscriber. Delivery is
// at-least-once and non-blocking for publishers: a subscriber whose buffer is
// full is dropped and must resubscribe, which re-fetches current state.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscription is an explicit handle owned by the caller. Close tears it down
// deterministically; after Close (or after being dropped) the delta channel
// is closed and nothing further is delivered.
type Subscription struct {
	bus *Bus
	ch  chan Delta
}

// C returns the delta channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Delta {
	return s.ch
}

// Close stops delivery immediately. Safe to call more than once. It never
// aborts an in-flight claim or resolve.
func (s *Subscription) Close() {
	s.bus.drop(s)
}

// Subscribe registers a new subscriber. The snapshot function runs under the
// bus lock, so the initial view and subsequent deltas form a monotonically
// non-decreasing sequence for this subscriber.
func (b *Bus) Subscribe(snapshot func() ([]*Alert, error)) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	alerts, err := snapshot()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		bus: b,
		ch:  make(chan Delta, len(alerts)+subscriberBufferSize),
	}
	for _, a := range alerts {
		sub.ch <- Delta{Kind: DeltaUpsert, AlertID: a.ID.Hex(), Alert: a, Initial: true}
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Publish delivers a delta to every subscriber without blocking.
func (b *Bus) Publish(d Delta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- d:
		default:
			delete(b.subs, sub)
			close(sub.ch)
			b.logger.Warn("dropping slow alert subscriber",
				zap.String("alert_id", d.AlertID),
				zap.Int("buffer", cap(sub.ch)))
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) drop(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}
