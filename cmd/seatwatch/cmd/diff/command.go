// Package diff compares two catalog snapshot files offline.
package diff

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/completion"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/differ"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
)

// Flags for the diff command.
type Flags struct {
	Semester string
	At       string
	Ignore   []string
	Summary  bool
}

// NewCommand creates the diff command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "diff <old> <new>",
		GroupID: "core",
		Short:   "Print the events between two catalog snapshots",
		Long: `Diff decodes two snapshot files (YAML or JSON) and prints the events a
scrape cycle would emit moving from the first to the second. Nothing is
stored and no notifications are sent.`,
		Example: `  # Table of changes
  seatwatch diff snapshots/old.yaml snapshots/new.yaml

  # Per-type counts as JSON
  seatwatch diff old.yaml new.yaml --summary -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, app, flags, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&flags.Semester, "semester", "", "semester recorded on the events")
	cmd.Flags().StringVar(&flags.At, "at", "", "batch timestamp (RFC3339, default now)")
	cmd.Flags().StringSliceVar(&flags.Ignore, "ignore", nil, "event types to leave out")
	cmd.Flags().BoolVar(&flags.Summary, "summary", false, "print counts per event type")
	_ = cmd.RegisterFlagCompletionFunc("ignore", completion.EventTypes)

	return cmd
}

func runDiff(cmd *cobra.Command, app appcontext.Interface, flags *Flags, oldPath, newPath string) error {
	previous, err := readSnapshot(oldPath)
	if err != nil {
		return err
	}
	current, err := readSnapshot(newPath)
	if err != nil {
		return err
	}

	ts, err := parseAt(flags.At)
	if err != nil {
		return err
	}

	opts := []differ.Option{differ.WithLogger(app.Logger())}
	for _, name := range flags.Ignore {
		t, err := events.ParseType(name)
		if err != nil {
			return errors.NewValidationError("ignore", name, err.Error())
		}
		opts = append(opts, differ.WithIgnoredTypes(t))
	}

	evs := differ.Generate(previous, current, ts, flags.Semester, opts...)
	app.Logger().Debug().Int("events", len(evs)).Msg("Snapshots compared")

	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return err
	}
	if flags.Summary {
		return output.FormatEventCounts(cmd.OutOrStdout(), evs, format)
	}
	return output.FormatEvents(cmd.OutOrStdout(), evs, format)
}

func readSnapshot(path string) (catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return c, nil
}

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now().UTC().Truncate(time.Second), nil
	}
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, errors.NewValidationError("at", at, "must be an RFC3339 timestamp")
	}
	return ts.UTC(), nil
}
