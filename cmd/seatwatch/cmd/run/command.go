// Package run executes one scrape cycle per configured prefix.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/deliver"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/internal/cmd/table"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// Flags for the run command.
type Flags struct {
	Semesters []string
	Prefixes  []string
	At        string
	Wait      time.Duration
}

// NewCommand creates the run command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "run",
		GroupID: "core",
		Short:   "Run one scrape cycle for every configured prefix",
		Long: `Run fetches the current catalog for every semester and department prefix,
diffs it against the stored snapshot, stores the events, notifies
subscribers and appends to the live feed.

All prefixes share one batch timestamp, so running again with the same
--at is a no-op. Queued Discord and webhook deliveries are sent before the
command exits unless the queue lives in Redis.`,
		Example: `  # Configured semesters and prefixes
  seatwatch run

  # One department, fixed batch time
  seatwatch run --semester 202508 --prefix CMSC --at 2025-08-01T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(cmd, app, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.Semesters, "semester", nil, "semesters to scrape (default from config)")
	cmd.Flags().StringSliceVarP(&flags.Prefixes, "prefix", "p", nil, "department prefixes (default from config)")
	cmd.Flags().StringVar(&flags.At, "at", "", "batch timestamp (RFC3339, default now)")
	cmd.Flags().DurationVar(&flags.Wait, "wait", 30*time.Second, "how long to wait for in-process deliveries")

	return cmd
}

// Run executes the cycles and prints one row per prefix.
func Run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
	ctx := cmd.Context()
	logger := app.Logger()

	semesters, prefixes := flags.Semesters, flags.Prefixes
	if len(semesters) == 0 {
		semesters = app.Settings().Semesters
	}
	if len(prefixes) == 0 {
		prefixes = app.Settings().Prefixes
	}
	if len(semesters) == 0 || len(prefixes) == 0 {
		return errors.NewValidationError("semesters/prefixes", nil, "at least one semester and one prefix are required")
	}

	ts := time.Now().UTC().Truncate(time.Second)
	if flags.At != "" {
		parsed, err := time.Parse(time.RFC3339, flags.At)
		if err != nil {
			return errors.NewValidationError("at", flags.At, "must be an RFC3339 timestamp")
		}
		ts = parsed.UTC()
	}

	src, err := app.Source()
	if err != nil {
		return err
	}
	broker, err := app.Broker(ctx)
	if err != nil {
		return err
	}
	pipeline, err := app.Pipeline(ctx)
	if err != nil {
		return err
	}

	inproc := deliver.StartInProcess(ctx, app, broker)

	reports, runErr := RunAll(ctx, pipeline, src, semesters, prefixes, ts)

	waitCtx, cancel := context.WithTimeout(ctx, flags.Wait)
	defer cancel()
	if !inproc.Wait(waitCtx) {
		logger.Warn().Dur("wait", flags.Wait).Msg("Deliveries still queued at exit")
	}

	format, err := output.ParseFormat(app.OutputFormat())
	if err != nil {
		return err
	}
	if err := output.FormatReports(cmd.OutOrStdout(), reports, format); err != nil {
		return err
	}

	var evs int
	for _, r := range reports {
		evs += len(r.Events)
	}
	logger.Info().Msg(fmt.Sprintf("Processed %s across %s", table.FormatCount(evs, "event"), table.FormatCount(len(reports), "cycle")))

	return runErr
}

// RunAll runs every semester with the same batch timestamp and returns the
// reports in semester, then prefix order.
func RunAll(ctx context.Context, p *seatwatch.Pipeline, src seatwatch.Source, semesters, prefixes []string, ts time.Time) ([]seatwatch.CycleReport, error) {
	var (
		all  []seatwatch.CycleReport
		errs []error
	)
	for _, semester := range semesters {
		reports, err := p.RunAll(ctx, src, semester, prefixes, ts)
		all = append(all, reports...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return all, errors.Join(errs...)
}
