package cli

import (
	"fmt"
	"strconv"

	"github.com/ripkitten-co/giftcard/projection"
	"github.com/spf13/cobra"
)

func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish issued|redeemed <id> <amount>",
		Short: "Append an event to the gift card log",
		Long: `Append an Issued or Redeemed event to the giftcard_events log.

The event is not checked against the read model here; a running
"giftcard serve" projects it and reports rejections.

Example:
  giftcard publish issued card-1 100
  giftcard publish redeemed card-1 30`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := parseEvent(args[0], args[1], args[2])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireDatabase("publish"); err != nil {
				return err
			}

			if err := a.log.Append(cmd.Context(), e); err != nil {
				return err
			}
			out := newOutput(rootOpts.Format, cmd.OutOrStdout())
			if rootOpts.Format == "json" {
				return out.json(map[string]any{"published": args[0], "event": e})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %s %s %s\n", args[0], args[1], args[2])
			return err
		},
	}
	return cmd
}

func parseEvent(kind, id, amount string) (projection.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("publish: id must not be empty")
	}
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("publish: amount %q: %w", amount, err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("publish: amount %d must be positive", n)
	}

	switch kind {
	case "issued":
		return projection.Issued{ID: id, Amount: n}, nil
	case "redeemed":
		return projection.Redeemed{ID: id, Amount: n}, nil
	default:
		return nil, fmt.Errorf("publish: unknown event %q: must be issued or redeemed", kind)
	}
}
