// Package serve runs the long-lived seatwatch process: scheduled scrape
// cycles, delivery workers and the HTTP API.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/cmd/seatwatch/cmd/deliver"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/server"
	"github.com/agentstation/seatwatch/internal/server/handlers"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// Flags for the serve command.
type Flags struct {
	Host        string
	Port        int
	Prefix      string
	CORSOrigins []string
	APIKey      string
	RateLimit   int
	Schedule    string
	NoSchedule  bool
	NoDeliver   bool
	RunNow      bool
	Metrics     bool
}

// NewCommand creates the serve command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}
	settings := app.Settings()

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Run scheduled cycles, delivery workers and the HTTP API",
		Long: `Serve runs seatwatch as a service:
  - scrape cycles on a cron schedule for every configured semester and prefix
  - one delivery worker per shard queue
  - a REST API for subscriptions and profiles
  - the live feed over WebSocket (/api/v1/feed/ws) and SSE (/api/v1/feed/stream)
  - Prometheus metrics on /metrics

Write endpoints require the API key when one is configured.`,
		Example: `  # Every five minutes on port 8080
  seatwatch serve

  # Custom schedule, run a cycle immediately
  seatwatch serve --schedule "@every 2m" --run-now

  # API only; deliveries handled by "seatwatch deliver"
  seatwatch serve --no-deliver`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app, flags)
		},
	}

	defaults := server.DefaultConfig()
	cmd.Flags().StringVar(&flags.Host, "host", orDefault(settings.Host, defaults.Host), "bind address")
	cmd.Flags().IntVar(&flags.Port, "port", orDefault(settings.Port, defaults.Port), "server port")
	cmd.Flags().StringVar(&flags.Prefix, "path-prefix", defaults.PathPrefix, "API path prefix")
	cmd.Flags().StringSliceVar(&flags.CORSOrigins, "cors-origins", settings.CORSOrigins, "allowed CORS origins (comma-separated, * for any)")
	cmd.Flags().StringVar(&flags.APIKey, "api-key", settings.APIKey, "API key required by write endpoints")
	cmd.Flags().IntVar(&flags.RateLimit, "rate-limit", orDefault(settings.RateLimit, defaults.RateLimit), "requests per minute per IP (0 to disable)")
	cmd.Flags().StringVar(&flags.Schedule, "schedule", settings.Schedule, "cron spec for scrape cycles")
	cmd.Flags().BoolVar(&flags.NoSchedule, "no-schedule", false, "do not run scheduled cycles")
	cmd.Flags().BoolVar(&flags.NoDeliver, "no-deliver", false, "do not run delivery workers")
	cmd.Flags().BoolVar(&flags.RunNow, "run-now", false, "run one cycle at startup")
	cmd.Flags().BoolVar(&flags.Metrics, "metrics", defaults.MetricsEnabled, "serve /metrics")

	return cmd
}

func runServe(ctx context.Context, app appcontext.Interface, flags *Flags) error {
	logger := app.Logger()
	settings := app.Settings()

	store, err := app.Store(ctx)
	if err != nil {
		return err
	}
	broker, err := app.Broker(ctx)
	if err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	cfg.Host = flags.Host
	cfg.Port = flags.Port
	cfg.PathPrefix = flags.Prefix
	cfg.CORSOrigins = flags.CORSOrigins
	cfg.APIKey = flags.APIKey
	cfg.RateLimit = flags.RateLimit
	cfg.MetricsEnabled = flags.Metrics

	srv := server.New(handlers.Deps{
		Feed:          store,
		Subscriptions: store,
		Profiles:      store,
		Community:     store,
	}, app.Registry(), cfg, logger)

	pipeline, err := app.Pipeline(ctx, seatwatch.WithFeedPublisher(srv))
	if err != nil {
		return err
	}
	pipeline.OnCycle(srv.CycleCompleted)

	var scheduler *Scheduler
	if !flags.NoSchedule {
		src, err := app.Source()
		if err != nil {
			return err
		}
		scheduler, err = NewScheduler(flags.Schedule, pipeline, src, settings.Semesters, settings.Prefixes, logger)
		if err != nil {
			return err
		}
	}

	srv.Start()

	workerDone := make(chan struct{})
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if flags.NoDeliver {
		close(workerDone)
	} else {
		if err := deliver.Recover(ctx, app, broker); err != nil {
			return err
		}
		worker := deliver.NewWorker(app, broker)
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	}

	if scheduler != nil {
		if flags.RunNow {
			go scheduler.Tick(ctx)
		}
		scheduler.Start()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := listen(ctx, httpServer, logger)

	// Fresh context: ctx is already canceled on a signal.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), max(settings.ShutdownTimeout, time.Second))
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Background services shutdown had issues")
	}
	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Delivery workers did not stop in time")
	}

	logger.Info().Msg("Server stopped")
	return serveErr
}

// listen serves until ctx is canceled or the listener fails.
func listen(ctx context.Context, httpServer *http.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
		return nil
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
