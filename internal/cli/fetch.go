package cli

import (
	"github.com/ripkitten-co/giftcard/query"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/spf13/cobra"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Prefix string
	Offset int
	Limit  int
}

func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "List gift card summaries by id prefix",
		Long: `List gift card summaries whose id starts with --prefix, ordered by id.

Example:
  giftcard fetch --prefix card- --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()
			return runFetch(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "id prefix")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of summaries to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of summaries")

	return cmd
}

func runFetch(cmd *cobra.Command, a *app, opts *FetchOptions) error {
	if err := a.catchUp(cmd.Context()); err != nil {
		return err
	}
	rows, err := a.server.HandleFetch(cmd.Context(), query.Fetch{
		Filter: readmodel.Filter{IDStartsWith: opts.Prefix},
		Offset: opts.Offset,
		Limit:  opts.Limit,
	})
	if err != nil {
		return err
	}
	return newOutput(opts.Format, cmd.OutOrStdout()).summaries(rows)
}
