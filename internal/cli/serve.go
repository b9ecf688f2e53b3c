package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ripkitten-co/giftcard/query"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/ripkitten-co/giftcard/subscription"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Watch      []string
	WatchCount []string
	Limit      int
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Project the event log and print live updates",
		Long: `Follow the giftcard_events log, project every event into the read
model and print pushes for the watched prefixes until interrupted.

Example:
  giftcard serve --watch card- --watch-count gift-`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireDatabase("serve"); err != nil {
				return err
			}
			return runServe(ctx, cmd, a, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Watch, "watch", nil, "print summary updates for this id prefix (repeatable)")
	cmd.Flags().StringArrayVar(&opts.WatchCount, "watch-count", nil, "print count changes for this id prefix (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "initial result size for --watch")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, opts *ServeOptions) error {
	out := newOutput(opts.Format, cmd.OutOrStdout())
	var outMu sync.Mutex
	show := func(sub *subscription.Subscription, u subscription.Update) error {
		outMu.Lock()
		defer outMu.Unlock()
		return out.update(sub, u)
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, prefix := range opts.Watch {
		sub, err := a.server.SubscribeFetch(ctx, query.Fetch{
			Filter: readmodel.Filter{IDStartsWith: prefix},
			Limit:  opts.Limit,
		})
		if err != nil {
			return err
		}
		outMu.Lock()
		err = out.summaries(sub.Initial)
		outMu.Unlock()
		if err != nil {
			sub.Close()
			return err
		}
		g.Go(func() error { return watch(ctx, sub.Subscription, show) })
	}

	for _, prefix := range opts.WatchCount {
		sub, err := a.server.SubscribeCount(ctx, query.Count{Filter: readmodel.Filter{IDStartsWith: prefix}})
		if err != nil {
			return err
		}
		outMu.Lock()
		err = out.count(sub.Initial)
		outMu.Unlock()
		if err != nil {
			sub.Close()
			return err
		}
		g.Go(func() error { return watch(ctx, sub.Subscription, show) })
	}

	runner := a.runner()
	a.logger.Info("serving", "runner", runner.Name(), "store", a.cfg.Store,
		"watch", len(opts.Watch), "watch_count", len(opts.WatchCount))
	g.Go(func() error { return runner.Run(ctx) })

	return g.Wait()
}

func watch(ctx context.Context, sub *subscription.Subscription, show func(*subscription.Subscription, subscription.Update) error) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := show(sub, u); err != nil {
				return err
			}
		}
	}
}
