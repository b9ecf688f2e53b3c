package subscription

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/readmodel"
)

const (
	DefaultBufferSize       = 64
	DefaultMaxSubscriptions = 10000
)

var (
	// ErrRegistryClosed is returned by Subscribe after Close.
	ErrRegistryClosed = errors.New("subscription registry closed")
	// ErrTooManySubscriptions is returned when the registry is at capacity.
	ErrTooManySubscriptions = errors.New("too many subscriptions")
)

type Option func(*Registry)

// WithBufferSize sets the capacity of each new sink. Values below 1 are
// ignored.
func WithBufferSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithMaxSubscriptions caps the number of live subscriptions. Values below 1
// are ignored.
func WithMaxSubscriptions(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxSubs = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry owns every live subscription.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	seq    uint64
	closed bool

	bufferSize int
	maxSubs    int
	logger     *slog.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		subs:       make(map[string]*Subscription),
		bufferSize: DefaultBufferSize,
		maxSubs:    DefaultMaxSubscriptions,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Subscribe registers a subscription bound to a fresh sink.
func (r *Registry) Subscribe(tag Tag, filter readmodel.Filter) (*Subscription, error) {
	if !tag.valid() {
		return nil, fmt.Errorf("subscribe: unknown tag %s: %w", tag, giftcard.ErrValidation)
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("subscribe: %w", ErrRegistryClosed)
	}
	if len(r.subs) >= r.maxSubs {
		return nil, fmt.Errorf("subscribe: limit %d: %w", r.maxSubs, ErrTooManySubscriptions)
	}

	r.seq++
	sub := &Subscription{
		id:       uuid.NewString(),
		seq:      r.seq,
		tag:      tag,
		filter:   filter,
		registry: r,
		ch:       make(chan Update, r.bufferSize),
	}
	r.subs[sub.id] = sub

	r.logger.Debug("subscription added", "id", sub.id, "tag", tag.String(), "prefix", filter.IDStartsWith)
	return sub, nil
}

// Unsubscribe removes the subscription and closes its sink. It reports
// whether anything was removed; unknown or already removed ids are a no-op.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	sub.shut()
	r.logger.Debug("subscription removed", "id", id, "dropped", sub.Dropped())
	return true
}

// Snapshot returns the live subscriptions in creation order.
func (r *Registry) Snapshot() []*Subscription {
	r.mu.RLock()
	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Subscription) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close removes every subscription and rejects new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()

	for _, s := range subs {
		s.shut()
	}
}
