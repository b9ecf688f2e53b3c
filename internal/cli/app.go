package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/emitter"
	"github.com/ripkitten-co/giftcard/feed"
	"github.com/ripkitten-co/giftcard/internal/config"
	"github.com/ripkitten-co/giftcard/internal/logging"
	"github.com/ripkitten-co/giftcard/projection"
	"github.com/ripkitten-co/giftcard/query"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/ripkitten-co/giftcard/subscription"
)

// app is everything a command needs, built from the environment.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	store     *giftcard.Store // nil without a database
	repo      readmodel.Repository
	registry  *subscription.Registry
	projector *projection.Projector
	server    *query.Server

	log         *feed.Log // nil without a database
	checkpoints feed.Checkpointer
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Environ != nil {
		return config.LoadFrom(opts.Environ)
	}
	return config.Load()
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		a.store, err = giftcard.New(ctx, cfg.DatabaseURL, giftcard.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		a.log = feed.NewLog(a.store)
	}

	switch cfg.Store {
	case config.StorePostgres:
		a.repo = readmodel.NewPostgresStore(a.store, readmodel.WithTable(cfg.SummariesTable))
		a.checkpoints = feed.NewCheckpointStore(a.store)
	case config.StoreGorm:
		a.repo, err = readmodel.NewGormStore(a.store, readmodel.WithTable(cfg.SummariesTable))
		if err != nil {
			a.close()
			return nil, err
		}
		a.checkpoints = feed.NewCheckpointStore(a.store)
	case config.StoreMemory:
		// an in-memory read model is rebuilt from the start of the log
		a.repo = readmodel.NewMemoryStore()
		a.checkpoints = &memoryCheckpoints{}
	}

	a.registry = subscription.NewRegistry(
		subscription.WithBufferSize(cfg.SubscriptionBuffer),
		subscription.WithMaxSubscriptions(cfg.MaxSubscriptions),
		subscription.WithLogger(logger),
	)

	projOpts := []projection.Option{projection.WithLogger(logger)}
	if cfg.BalanceGuard {
		projOpts = append(projOpts, projection.WithBalanceGuard())
	}
	a.projector = projection.New(a.repo, emitter.New(a.registry, emitter.WithLogger(logger)), projOpts...)
	a.server = query.NewServer(a.repo, a.registry, query.WithLogger(logger))
	return a, nil
}

func (a *app) requireDatabase(command string) error {
	if a.store == nil {
		return fmt.Errorf("%s: GIFTCARD_DATABASE_URL is required", command)
	}
	return nil
}

func (a *app) runner() *feed.Runner {
	opts := []feed.RunnerOption{
		feed.WithPollInterval(a.cfg.PollInterval),
		feed.WithBatchSize(a.cfg.BatchSize),
		feed.WithLogger(a.logger),
		feed.WithCodec(a.store.JSONCodec()),
	}
	if a.cfg.Store != config.StoreMemory {
		// checkpoints are shared, so only one process may advance them
		opts = append(opts, feed.WithLocker(feed.NewAdvisoryLock(a.store.PgxPool(), a.cfg.RunnerName)))
	}
	return feed.NewRunner(a.cfg.RunnerName, a.log, a.checkpoints, a.projector, opts...)
}

// catchUp brings an in-memory read model up to the end of the log before a
// one-shot query. Persistent stores are read as they are.
func (a *app) catchUp(ctx context.Context) error {
	if a.cfg.Store != config.StoreMemory || a.log == nil {
		return nil
	}
	return a.runner().Drain(ctx)
}

func (a *app) close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// memoryCheckpoints keeps positions for the lifetime of the process.
type memoryCheckpoints struct {
	mu  sync.Mutex
	pos map[string]int64
}

func (c *memoryCheckpoints) Load(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos[name], nil
}

func (c *memoryCheckpoints) Save(_ context.Context, name string, position int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == nil {
		c.pos = make(map[string]int64)
	}
	c.pos[name] = position
	return nil
}
