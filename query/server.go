package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/ripkitten-co/giftcard/subscription"
)

// CountResult is a count stamped with the server time it was taken at.
type CountResult struct {
	Count int       `json:"count"`
	AsOf  time.Time `json:"asOf"`
}

type Option func(*Server)

// WithClock replaces time.Now for AsOf stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server answers queries from a Reader. Subscription queries additionally
// need a registry.
type Server struct {
	reader   readmodel.Reader
	registry *subscription.Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewServer returns a server. registry may be nil if subscription queries
// are not used.
func NewServer(reader readmodel.Reader, registry *subscription.Registry, opts ...Option) *Server {
	s := &Server{
		reader:   reader,
		registry: registry,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (q Fetch) validate() error {
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	return readmodel.ValidatePage(q.Offset, q.Limit)
}

func (s *Server) HandleFetch(ctx context.Context, q Fetch) ([]readmodel.Summary, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("query: fetch %q: %w", q.Filter.IDStartsWith, err)
	}
	rows, err := s.reader.Query(ctx, q.Filter, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query: fetch %q: %w", q.Filter.IDStartsWith, err)
	}
	return rows, nil
}

func (s *Server) HandleCount(ctx context.Context, q Count) (CountResult, error) {
	if err := q.Filter.Validate(); err != nil {
		return CountResult{}, fmt.Errorf("query: count %q: %w", q.Filter.IDStartsWith, err)
	}
	n, err := s.reader.Count(ctx, q.Filter)
	if err != nil {
		return CountResult{}, fmt.Errorf("query: count %q: %w", q.Filter.IDStartsWith, err)
	}
	return CountResult{Count: n, AsOf: s.now()}, nil
}

// Handle dispatches q. The result is []readmodel.Summary for Fetch and
// CountResult for Count.
func (s *Server) Handle(ctx context.Context, q Query) (any, error) {
	switch q := q.(type) {
	case Fetch:
		return s.HandleFetch(ctx, q)
	case Count:
		return s.HandleCount(ctx, q)
	default:
		return nil, fmt.Errorf("query: handle %T: unsupported query: %w", q, giftcard.ErrValidation)
	}
}

// FetchSubscription is a live Fetch query. Initial is read after the
// subscription was registered, so an update may repeat state already in
// Initial; compare Summary.Version to discard it.
type FetchSubscription struct {
	*subscription.Subscription
	Initial []readmodel.Summary
}

// CountSubscription is a live Count query. Every UpdateCountChanged on
// Updates means Initial is stale.
type CountSubscription struct {
	*subscription.Subscription
	Initial CountResult
}

func (s *Server) subscribe(tag subscription.Tag, f readmodel.Filter) (*subscription.Subscription, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("query: subscribe %s: no registry: %w", tag, subscription.ErrRegistryClosed)
	}
	return s.registry.Subscribe(tag, f)
}

func (s *Server) SubscribeFetch(ctx context.Context, q Fetch) (*FetchSubscription, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("query: subscribe fetch %q: %w", q.Filter.IDStartsWith, err)
	}
	sub, err := s.subscribe(subscription.FetchTag, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("query: subscribe fetch %q: %w", q.Filter.IDStartsWith, err)
	}
	rows, err := s.HandleFetch(ctx, q)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.logger.Debug("fetch subscription opened", "subscription", sub.ID(), "prefix", q.Filter.IDStartsWith, "initial", len(rows))
	return &FetchSubscription{Subscription: sub, Initial: rows}, nil
}

func (s *Server) SubscribeCount(ctx context.Context, q Count) (*CountSubscription, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("query: subscribe count %q: %w", q.Filter.IDStartsWith, err)
	}
	sub, err := s.subscribe(subscription.CountTag, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("query: subscribe count %q: %w", q.Filter.IDStartsWith, err)
	}
	res, err := s.HandleCount(ctx, q)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.logger.Debug("count subscription opened", "subscription", sub.ID(), "prefix", q.Filter.IDStartsWith, "initial", res.Count)
	return &CountSubscription{Subscription: sub, Initial: res}, nil
}
