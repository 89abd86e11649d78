package server

import (
	"net"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	PathPrefix string

	// CORSOrigins enables CORS for the listed origins; "*" allows any.
	CORSOrigins []string

	// APIKey protects write endpoints; the feed stays public. Empty
	// disables authentication.
	APIKey     string
	AuthHeader string

	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int

	// Backlog is how many recent feed entries are replayed to a new stream
	// client before its filter is applied.
	Backlog int

	ReadTimeout time.Duration
	IdleTimeout time.Duration
	// WriteTimeout is zero by default: stream responses stay open for as
	// long as the client listens.
	WriteTimeout time.Duration

	MetricsEnabled bool
}

// DefaultConfig returns the configuration used by "seatwatch serve".
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           8080,
		PathPrefix:     "/api/v1",
		AuthHeader:     "X-API-Key",
		RateLimit:      120,
		Backlog:        50,
		ReadTimeout:    10 * time.Second,
		IdleTimeout:    2 * time.Minute,
		MetricsEnabled: true,
	}
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
