package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/ripkitten-co/giftcard/readmodel"
)

// Delivery is the outcome of offering an update to one sink.
type Delivery int

const (
	// Delivered means the update was queued.
	Delivered Delivery = iota
	// Evicted means the update was queued after dropping the oldest one.
	Evicted
	// Closed means the subscription is gone and the update was discarded.
	Closed
)

// Subscription is a handle on one registered subscription query.
type Subscription struct {
	id       string
	seq      uint64
	tag      Tag
	filter   readmodel.Filter
	registry *Registry

	mu     sync.Mutex
	ch     chan Update
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func (s *Subscription) ID() string               { return s.id }
func (s *Subscription) Tag() Tag                 { return s.tag }
func (s *Subscription) Filter() readmodel.Filter { return s.filter }

// Updates returns the sink. It is closed when the subscription is removed.
func (s *Subscription) Updates() <-chan Update { return s.ch }

// Dropped returns how many queued updates were evicted because the sink was
// full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// DeliveredCount returns how many updates were queued on the sink.
func (s *Subscription) DeliveredCount() uint64 { return s.delivered.Load() }

// Matches reports whether an event on card id concerns this subscription.
func (s *Subscription) Matches(id string) bool {
	return s.filter.Matches(id)
}

// Offer queues u without blocking, evicting the oldest queued update if the
// sink is full.
func (s *Subscription) Offer(u Update) Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Closed
	}

	select {
	case s.ch <- u:
		s.delivered.Add(1)
		return Delivered
	default:
	}

	// Only Offer sends and it holds s.mu, so once the oldest update is gone
	// the send below cannot block.
	if !s.evictOldest() {
		// the consumer drained the sink in the meantime
		s.ch <- u
		s.delivered.Add(1)
		return Delivered
	}
	s.ch <- u
	s.delivered.Add(1)
	return Evicted
}

// evictOldest drops the oldest queued update. It reports false if the sink
// was already empty. Callers hold s.mu.
func (s *Subscription) evictOldest() bool {
	select {
	case <-s.ch:
		s.dropped.Add(1)
		return true
	default:
		return false
	}
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.registry != nil {
		s.registry.Unsubscribe(s.id)
		return
	}
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
