// Package feed prints and maintains the live feed.
package feed

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/livefeed"
)

type pruneResult struct {
	Pruned int `json:"pruned" yaml:"pruned"`
}

// NewCommand creates the feed command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var (
		limit int
		prune bool
	)

	cmd := &cobra.Command{
		Use:     "feed",
		GroupID: "core",
		Short:   "Show recent live feed entries",
		Long: `Feed prints the most recent live feed entries, newest first.

With --prune it instead deletes every entry older than the retention
window, page by page, and prints how many were removed.`,
		Example: `  seatwatch feed --limit 20
  seatwatch feed --prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}

			if prune {
				opts := []livefeed.Option{livefeed.WithLogger(app.Logger())}
				if r := app.Settings().Retention; r > 0 {
					opts = append(opts, livefeed.WithRetention(r))
				}
				n, err := livefeed.NewWriter(store, opts...).Prune(ctx)
				if err != nil {
					return err
				}
				return output.FormatAny(cmd.OutOrStdout(), pruneResult{Pruned: n}, format)
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return output.FormatFeed(cmd.OutOrStdout(), entries, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", constants.DefaultPageSize, "maximum entries to show")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete entries older than the retention window")

	return cmd
}
