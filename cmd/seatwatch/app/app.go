// Package app provides the application context and dependency management
// for the seatwatch CLI. Configuration, logging and the lazily opened
// backends live here; commands reach them through appcontext.Interface.
package app

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/appcontext"
	"github.com/agentstation/seatwatch/internal/cmd/output"
	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/internal/queue/redisq"
	"github.com/agentstation/seatwatch/internal/sources/local"
	"github.com/agentstation/seatwatch/internal/sources/remote"
	"github.com/agentstation/seatwatch/internal/store/memory"
	"github.com/agentstation/seatwatch/internal/store/sqlite"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/notify"
)

// MemoryDatabase selects the in-process store instead of a database file.
const MemoryDatabase = "memory"

// App represents the seatwatch application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Lazily opened backends
	mu       sync.Mutex
	store    seatwatch.Backend
	broker   queue.Broker
	registry *prometheus.Registry
	metrics  *notify.Metrics
}

var _ appcontext.Interface = (*App)(nil)

// New creates a new App instance with the given version information.
// The app is initialized from LoadConfig; options can replace any part.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.NewConfigError("app", "could not load configuration", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Commit returns the git commit hash.
func (a *App) Commit() string { return a.commit }

// Date returns the build date.
func (a *App) Date() string { return a.date }

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string { return a.builtBy }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// OutputFormat returns the configured format, detecting one from the
// terminal when none was given.
func (a *App) OutputFormat() string {
	return string(output.DetectFormat(a.config.Format))
}

// Settings returns the values commands read directly.
func (a *App) Settings() appcontext.Settings {
	return appcontext.Settings{
		Semesters:       a.config.Semesters,
		Prefixes:        a.config.Prefixes,
		Schedule:        a.config.Schedule,
		Retention:       a.config.Retention,
		DeliveryRate:    a.config.DeliveryRate,
		Host:            a.config.Host,
		Port:            a.config.Port,
		APIKey:          a.config.APIKey,
		CORSOrigins:     a.config.CORSOrigins,
		RateLimit:       a.config.RateLimit,
		ShutdownTimeout: constants.ShutdownTimeout,
	}
}

// Store opens the configured store on first use. The database path
// "memory" selects the in-process store.
func (a *App) Store(ctx context.Context) (seatwatch.Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return a.store, nil
	}

	if strings.EqualFold(a.config.DatabasePath, MemoryDatabase) {
		a.logger.Warn().Msg("Using in-memory store; state is lost on exit")
		a.store = memory.New()
		return a.store, nil
	}

	s, err := sqlite.Open(ctx, sqlite.Config{Path: a.config.DatabasePath, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	a.store = s
	return a.store, nil
}

// Broker connects the delivery queue on first use: Redis when redis_url is
// set, otherwise an in-process queue.
func (a *App) Broker(ctx context.Context) (queue.Broker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.broker != nil {
		return a.broker, nil
	}

	if a.config.RedisURL == "" {
		a.broker = queue.NewMemory(a.config.ShardCount)
		return a.broker, nil
	}

	opt, err := goredis.ParseURL(a.config.RedisURL)
	if err != nil {
		return nil, errors.NewConfigError("redis", "invalid redis_url", err)
	}
	q, err := redisq.New(ctx, redisq.Config{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
		Shards:   a.config.ShardCount,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.broker = q
	return a.broker, nil
}

// Source returns the configured catalog source. A source directory takes
// precedence over a source URL.
func (a *App) Source() (seatwatch.Source, error) {
	switch {
	case a.config.SourceDir != "":
		return local.New(a.config.SourceDir), nil
	case a.config.SourceURL != "":
		return remote.New(a.config.SourceURL), nil
	default:
		return nil, errors.NewConfigError("source", "set source_dir or source_url", nil)
	}
}

// Registry returns the metrics registry, creating it with the Go and
// process collectors on first use.
func (a *App) Registry() *prometheus.Registry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registryLocked()
}

func (a *App) registryLocked() *prometheus.Registry {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return a.registry
}

// Pipeline creates a pipeline from the configuration. opts are applied
// after the configured options.
func (a *App) Pipeline(ctx context.Context, opts ...seatwatch.Option) (*seatwatch.Pipeline, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	broker, err := a.Broker(ctx)
	if err != nil {
		return nil, err
	}

	ignored := make([]events.Type, 0, len(a.config.IgnoreTypes))
	for _, name := range a.config.IgnoreTypes {
		t, err := events.ParseType(name)
		if err != nil {
			return nil, errors.NewConfigError("pipeline", "invalid ignore_types entry", err)
		}
		ignored = append(ignored, t)
	}

	a.mu.Lock()
	if a.metrics == nil {
		a.metrics = notify.NewMetrics(a.registryLocked())
	}
	metrics := a.metrics
	a.mu.Unlock()

	pushRate := a.config.PushRate
	if pushRate <= 0 {
		pushRate = constants.DefaultPushRate
	}
	push := notify.NewRateLimitedSender(notify.NewHTTPSender(nil), pushRate, max(1, int(pushRate)))

	all := []seatwatch.Option{
		seatwatch.WithStore(store),
		seatwatch.WithQueue(broker),
		seatwatch.WithPushSender(push),
		seatwatch.WithMetrics(metrics),
		seatwatch.WithLogger(a.logger),
		seatwatch.WithShards(broker.Shards()),
		seatwatch.WithPruneProbability(a.config.PruneProbability),
		seatwatch.WithIgnoredTypes(ignored...),
	}
	// Zero values keep the pipeline defaults.
	if a.config.Concurrency > 0 {
		all = append(all, seatwatch.WithConcurrency(a.config.Concurrency))
	}
	if a.config.Retention > 0 {
		all = append(all, seatwatch.WithFeedRetention(a.config.Retention))
	}
	return seatwatch.New(append(all, opts...)...)
}

// Shutdown closes the backends that were opened.
func (a *App) Shutdown(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, c := range []any{a.broker, a.store} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	a.broker, a.store = nil, nil
	return errors.Join(errs...)
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		logger := NewLogger(config)
		a.logger = &logger
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStore sets the store instead of opening one from the configuration.
func WithStore(s seatwatch.Backend) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

// WithBroker sets the delivery queue instead of connecting one.
func WithBroker(b queue.Broker) Option {
	return func(a *App) error {
		a.broker = b
		return nil
	}
}
