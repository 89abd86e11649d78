// Package constants holds the defaults shared by the pipeline, the CLI and
// the server: timeouts, shard and rate settings, feed retention and paths.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for outbound HTTP requests
	DefaultHTTPTimeout = 30 * time.Second

	// CycleTimeout bounds a single scrape cycle for one semester/prefix pair
	CycleTimeout = 5 * time.Minute

	// FetchTimeout is the timeout for fetching one catalog snapshot
	FetchTimeout = 2 * time.Minute

	// RetryBackoff is the base backoff duration for delivery retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for delivery retries
	MaxRetryBackoff = 30 * time.Second

	// ShutdownTimeout is how long graceful shutdown waits for in-flight work
	ShutdownTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Pipeline defaults
const (
	// DefaultShardCount is the number of delivery shard queues
	DefaultShardCount = 8

	// DefaultConcurrency bounds concurrent resolver/dispatcher operations per run
	DefaultConcurrency = 32

	// DefaultPushRate is the number of push sends allowed per second
	DefaultPushRate = 20

	// DefaultDeliveryRate is the number of HTTP deliveries per second per shard worker
	DefaultDeliveryRate = 5

	// MaxDeliveryAttempts is how many times a queued delivery is tried before dead-lettering
	MaxDeliveryAttempts = 5

	// DefaultSchedule is the cron spec for scheduled scrape cycles
	DefaultSchedule = "*/5 * * * *"
)

// Live feed constants
const (
	// FeedRetention is how long live feed entries are kept
	FeedRetention = 24 * time.Hour

	// FeedPruneProbability is the chance that an append triggers a prune sweep
	FeedPruneProbability = 0.01

	// FeedPruneBatch is the page size used when pruning expired entries
	FeedPruneBatch = 100

	// FeedTextLimit is the maximum length of display strings in feed entries
	FeedTextLimit = 120
)

// Channel and page sizes
const (
	// ChannelBufferSize bounds in-process queues and per-client stream buffers
	ChannelBufferSize = 256

	// DefaultPageSize is the default number of items per page for paginated results
	DefaultPageSize = 100

	// MaxPageSize is the maximum allowed page size for paginated results
	MaxPageSize = 1000
)

// Path constants
const (
	// DefaultDatabasePath is the default sqlite database location
	DefaultDatabasePath = "~/.seatwatch/seatwatch.db"

	// DefaultConfigName is the config file name searched in $HOME and the working directory
	DefaultConfigName = ".seatwatch"
)
