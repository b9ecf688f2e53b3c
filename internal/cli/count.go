package cli

import (
	"github.com/ripkitten-co/giftcard/query"
	"github.com/ripkitten-co/giftcard/readmodel"
	"github.com/spf13/cobra"
)

// CountOptions holds flags for the count command.
type CountOptions struct {
	*RootOptions
	Prefix string
}

func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count gift cards by id prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()
			return runCount(cmd, a, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "id prefix")

	return cmd
}

func runCount(cmd *cobra.Command, a *app, opts *CountOptions) error {
	if err := a.catchUp(cmd.Context()); err != nil {
		return err
	}
	res, err := a.server.HandleCount(cmd.Context(), query.Count{
		Filter: readmodel.Filter{IDStartsWith: opts.Prefix},
	})
	if err != nil {
		return err
	}
	return newOutput(opts.Format, cmd.OutOrStdout()).count(res)
}
