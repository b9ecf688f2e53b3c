// Package projection applies gift card events to the summary read model and
// hands the result to the emitter once the write is durable.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/emitter"
	"github.com/ripkitten-co/giftcard/readmodel"
)

// Publisher receives a notification for every event that changed the read
// model.
type Publisher interface {
	Emit(n emitter.Notification) emitter.Result
}

type Option func(*Projector)

// WithBalanceGuard makes a redemption that would leave a negative remaining
// value fail with giftcard.ErrInsufficientBalance.
func WithBalanceGuard() Option {
	return func(p *Projector) {
		p.guard = true
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Projector) {
		if l != nil {
			p.logger = l
		}
	}
}

// Projector owns the event to read model mapping.
type Projector struct {
	repo   readmodel.Repository
	pub    Publisher
	guard  bool
	logger *slog.Logger
}

// New returns a projector writing to repo. pub may be nil, in which case
// nothing is published.
func New(repo readmodel.Repository, pub Publisher, opts ...Option) *Projector {
	p := &Projector{repo: repo, pub: pub, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Apply projects e. On success the notification has already been published
// and is returned for the caller's bookkeeping. On failure the read model is
// unchanged and nothing is published.
func (p *Projector) Apply(ctx context.Context, e Event) (emitter.Notification, error) {
	var (
		n   emitter.Notification
		err error
	)
	switch ev := e.(type) {
	case Issued:
		n, err = p.issue(ctx, ev)
	case Redeemed:
		n, err = p.redeem(ctx, ev)
	default:
		err = fmt.Errorf("projection: apply %T: unsupported event: %w", e, giftcard.ErrValidation)
	}
	if err != nil {
		if giftcard.IsRejection(err) {
			p.logger.Warn("event rejected", "error", err)
		}
		return emitter.Notification{}, err
	}

	// The repository call has returned, so the per-card lock is released and
	// the write is visible to readers.
	if p.pub != nil {
		p.pub.Emit(n)
	}
	p.logger.Debug("event projected",
		"kind", n.Kind.String(), "card", n.ID,
		"remaining", n.Summary.RemainingValue, "version", n.Summary.Version)
	return n, nil
}

func (p *Projector) issue(ctx context.Context, ev Issued) (emitter.Notification, error) {
	s := readmodel.Summary{
		ID:             ev.ID,
		InitialValue:   ev.Amount,
		RemainingValue: ev.Amount,
		Version:        1,
	}
	if err := p.repo.Put(ctx, s); err != nil {
		if errors.Is(err, giftcard.ErrAlreadyExists) {
			return emitter.Notification{}, fmt.Errorf("projection: issue %s: %w", ev.ID, giftcard.ErrDuplicateIssue)
		}
		return emitter.Notification{}, fmt.Errorf("projection: issue %s: %w", ev.ID, err)
	}
	return emitter.Notification{Kind: emitter.KindIssue, ID: ev.ID, Summary: s}, nil
}

func (p *Projector) redeem(ctx context.Context, ev Redeemed) (emitter.Notification, error) {
	s, err := p.repo.Update(ctx, ev.ID, func(s *readmodel.Summary) error {
		next := s.RemainingValue - ev.Amount
		if p.guard && next < 0 {
			return fmt.Errorf("remaining %d, redeeming %d: %w", s.RemainingValue, ev.Amount, giftcard.ErrInsufficientBalance)
		}
		s.RemainingValue = next
		return nil
	})
	if err != nil {
		return emitter.Notification{}, fmt.Errorf("projection: redeem %s: %w", ev.ID, err)
	}
	return emitter.Notification{Kind: emitter.KindRedeem, ID: ev.ID, Summary: s}, nil
}
