// Package emitter fans projected changes out to matching subscriptions.
package emitter

import (
	"fmt"
	"log/slog"

	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/ripkitten-co/giftcard/subscription"
)

// Kind is the kind of event a notification was produced from.
type Kind int

const (
	KindIssue Kind = iota + 1
	KindRedeem
)

func (k Kind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindRedeem:
		return "redeem"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is what the projector hands over after a successful write.
type Notification struct {
	Kind    Kind
	ID      string
	Summary readmodel.Summary
}

// Result tallies one emission.
type Result struct {
	// Matched counts subscriptions whose tag and filter selected the event.
	Matched int
	// Delivered counts updates queued, including those that evicted an older
	// update.
	Delivered int
	// Dropped counts deliveries that dropped the oldest queued update.
	Dropped int
	// Skipped counts matched subscriptions that were already closed.
	Skipped int
}

// Snapshotter is the registry view the emitter needs.
type Snapshotter interface {
	Snapshot() []*subscription.Subscription
}

type Option func(*Emitter)

func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// Emitter evaluates every subscription's filter at publish time.
type Emitter struct {
	subs   Snapshotter
	logger *slog.Logger
}

func New(subs Snapshotter, opts ...Option) *Emitter {
	e := &Emitter{subs: subs, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// updateFor returns the update a subscription with the given tag receives for
// n, or false if that tag does not react to n's kind. Issue and Redeem both
// refresh Fetch subscriptions; only Issue can change a count.
func updateFor(tag subscription.Tag, n Notification) (subscription.Update, bool) {
	switch tag {
	case subscription.FetchTag:
		return subscription.SummaryUpdate(n.Summary), true
	case subscription.CountTag:
		if n.Kind == KindIssue {
			return subscription.CountChanged(), true
		}
	}
	return subscription.Update{}, false
}

// Emit delivers n to every matching subscription without blocking. A full or
// closed sink only affects that subscriber.
func (e *Emitter) Emit(n Notification) Result {
	var res Result
	for _, sub := range e.subs.Snapshot() {
		if !sub.Matches(n.ID) {
			continue
		}
		u, ok := updateFor(sub.Tag(), n)
		if !ok {
			continue
		}
		res.Matched++

		switch sub.Offer(u) {
		case subscription.Delivered:
			res.Delivered++
		case subscription.Evicted:
			res.Delivered++
			res.Dropped++
			e.logger.Warn("subscriber sink full, dropped oldest update",
				"subscription", sub.ID(), "card", n.ID, "dropped_total", sub.Dropped())
		case subscription.Closed:
			res.Skipped++
		}
	}

	e.logger.Debug("emitted",
		"kind", n.Kind.String(), "card", n.ID, "version", n.Summary.Version,
		"matched", res.Matched, "delivered", res.Delivered, "skipped", res.Skipped)
	return res
}
