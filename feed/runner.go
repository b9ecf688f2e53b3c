package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/emitter"
	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/projection"
)

// Source yields log records in position order. A record must not be returned
// while a lower position can still appear, since the runner checkpoints past
// everything it reads. Log guarantees this by serializing writers on
// AppendLockKey.
type Source interface {
	ReadAfter(ctx context.Context, after int64, limit int) ([]Record, error)
}

// Notifier is implemented by sources that can signal new records.
type Notifier interface {
	WaitForNotification(ctx context.Context) error
}

type Checkpointer interface {
	Load(ctx context.Context, name string) (int64, error)
	Save(ctx context.Context, name string, position int64) error
}

type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Applier is the projector as seen by a runner.
type Applier interface {
	Apply(ctx context.Context, e projection.Event) (emitter.Notification, error)
}

// RejectHandler is called for every record the projector rejected.
type RejectHandler func(r Record, err error)

type RunnerOption func(*Runner)

func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRejectHandler(h RejectHandler) RunnerOption {
	return func(r *Runner) { r.onReject = h }
}

// WithLocker makes the runner process only while it holds l.
func WithLocker(l Locker) RunnerOption {
	return func(r *Runner) { r.locker = l }
}

func WithCodec(c codecs.Codec) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.codec = c
		}
	}
}

// Runner feeds records from a source to the projector in order.
type Runner struct {
	name       string
	source     Source
	checkpoint Checkpointer
	apply      Applier

	locker       Locker
	codec        codecs.Codec
	pollInterval time.Duration
	batchSize    int
	onReject     RejectHandler
	logger       *slog.Logger
}

func NewRunner(name string, src Source, cp Checkpointer, apply Applier, opts ...RunnerOption) *Runner {
	r := &Runner{
		name:         name,
		source:       src,
		checkpoint:   cp,
		apply:        apply,
		codec:        codecs.NewJSONIter(),
		pollInterval: time.Second,
		batchSize:    100,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) Name() string { return r.name }

// ProcessBatch applies the next batch after the checkpoint and returns how many
// records it consumed. A record the projector rejects is reported and
// consumed. Any other failure stops the batch; the checkpoint then points at
// the last consumed record so the failed one is retried.
func (r *Runner) ProcessBatch(ctx context.Context) (int, error) {
	pos, err := r.checkpoint.Load(ctx, r.name)
	if err != nil {
		return 0, fmt.Errorf("runner %s: load checkpoint: %w", r.name, err)
	}

	recs, err := r.source.ReadAfter(ctx, pos, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("runner %s: read: %w", r.name, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	last := pos
	n := 0
	var failure error
	for _, rec := range recs {
		if err := r.process(ctx, rec); err != nil {
			failure = fmt.Errorf("runner %s: position %d: %w", r.name, rec.Position, err)
			break
		}
		last = rec.Position
		n++
	}

	if last != pos {
		if err := r.checkpoint.Save(ctx, r.name, last); err != nil {
			return n, fmt.Errorf("runner %s: save checkpoint: %w", r.name, errors.Join(err, failure))
		}
	}
	return n, failure
}

// process returns an error only for failures that should be retried.
func (r *Runner) process(ctx context.Context, rec Record) error {
	e, err := Decode(r.codec, rec)
	if errors.Is(err, ErrUnknownEventType) {
		r.logger.Debug("skipping record", "runner", r.name, "position", rec.Position, "type", rec.Type)
		return nil
	}
	if err == nil {
		_, err = r.apply.Apply(ctx, e)
	}
	if err == nil {
		return nil
	}
	if !giftcard.IsRejection(err) {
		return err
	}

	r.logger.Warn("record rejected", "runner", r.name, "position", rec.Position,
		"card", rec.CardID, "type", rec.Type, "error", err)
	if r.onReject != nil {
		r.onReject(rec, err)
	}
	return nil
}

// Drain processes batches until the source is caught up, ctx is done or a
// batch fails. Without the lock it does nothing.
func (r *Runner) Drain(ctx context.Context) error {
	if r.locker != nil {
		acquired, err := r.locker.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("runner %s: %w", r.name, err)
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("release lock", "runner", r.name, "error", err)
			}
		}()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n < r.batchSize {
			return nil
		}
	}
}

// Run drains on every poll tick and, if the source is a Notifier, whenever an
// append is signalled. It returns nil once ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	if n, ok := r.source.(Notifier); ok {
		go r.listen(ctx, n, wake)
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("drain", "runner", r.name, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (r *Runner) listen(ctx context.Context, n Notifier, wake chan<- struct{}) {
	for ctx.Err() == nil {
		if err := n.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Debug("wait for notification", "runner", r.name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}
			continue
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
