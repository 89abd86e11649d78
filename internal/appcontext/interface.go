// Package appcontext provides the shared application context interface
// used by all commands. Commands accept it rather than the concrete App so
// that they can be tested against in-memory backends.
package appcontext

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/queue"
)

// Settings are the configured values commands read directly.
type Settings struct {
	// Semesters and Prefixes select what run and serve scrape.
	Semesters []string
	Prefixes  []string

	// Schedule is the cron expression for scheduled cycles.
	Schedule string

	// Retention is how long live feed entries are kept.
	Retention time.Duration

	// DeliveryRate limits queued deliveries per shard per second.
	DeliveryRate float64

	// HTTP server
	Host        string
	Port        int
	APIKey      string
	CORSOrigins []string
	RateLimit   int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Interface defines the application context interface that commands need.
type Interface interface {
	// Store returns the configured backend, opening it on first use.
	Store(ctx context.Context) (seatwatch.Backend, error)

	// Broker returns the configured delivery queue, connecting on first use.
	Broker(ctx context.Context) (queue.Broker, error)

	// Source returns the configured catalog source.
	Source() (seatwatch.Source, error)

	// Pipeline creates a pipeline over the configured store and broker.
	// opts are applied after the configured ones.
	Pipeline(ctx context.Context, opts ...seatwatch.Option) (*seatwatch.Pipeline, error)

	// Registry is where every component registers its metrics.
	Registry() *prometheus.Registry

	// Settings returns the configured values commands read directly.
	Settings() Settings

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table, etc).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
