package appcontext

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/queue"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// Mock provides a mock implementation of Interface for testing.
// Backends are plain fields; a nil backend makes its accessor fail.
// Function fields override the corresponding method when set.
//
// Example Usage:
//
//	mock := &appcontext.Mock{
//	    Backend: memory.New(),
//	    Queue:   queue.NewMemory(2),
//	    Format:  "json",
//	}
//	cmd := feed.NewCommand(mock)
type Mock struct {
	Backend       seatwatch.Backend
	Queue         queue.Broker
	CatalogSource seatwatch.Source
	Config        Settings
	Format        string

	// PipelineOptions are applied to every Pipeline before the caller's.
	PipelineOptions []seatwatch.Option

	LoggerFunc  func() *zerolog.Logger
	VersionFunc func() string

	regOnce sync.Once
	reg     *prometheus.Registry
}

// Store returns Backend.
func (m *Mock) Store(context.Context) (seatwatch.Backend, error) {
	if m.Backend == nil {
		return nil, &errors.ConfigError{Component: "mock", Message: "no backend"}
	}
	return m.Backend, nil
}

// Broker returns Queue.
func (m *Mock) Broker(context.Context) (queue.Broker, error) {
	if m.Queue == nil {
		return nil, &errors.ConfigError{Component: "mock", Message: "no queue"}
	}
	return m.Queue, nil
}

// Source returns CatalogSource.
func (m *Mock) Source() (seatwatch.Source, error) {
	if m.CatalogSource == nil {
		return nil, &errors.ConfigError{Component: "mock", Message: "no source"}
	}
	return m.CatalogSource, nil
}

// Pipeline builds a pipeline over Backend and Queue.
func (m *Mock) Pipeline(ctx context.Context, opts ...seatwatch.Option) (*seatwatch.Pipeline, error) {
	store, err := m.Store(ctx)
	if err != nil {
		return nil, err
	}
	broker, err := m.Broker(ctx)
	if err != nil {
		return nil, err
	}
	all := []seatwatch.Option{
		seatwatch.WithStore(store),
		seatwatch.WithQueue(broker),
		seatwatch.WithShards(broker.Shards()),
		seatwatch.WithLogger(m.Logger()),
	}
	all = append(all, m.PipelineOptions...)
	return seatwatch.New(append(all, opts...)...)
}

// Registry returns a registry private to the mock.
func (m *Mock) Registry() *prometheus.Registry {
	m.regOnce.Do(func() { m.reg = prometheus.NewRegistry() })
	return m.reg
}

// Settings returns Config.
func (m *Mock) Settings() Settings {
	return m.Config
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns Format or "table".
func (m *Mock) OutputFormat() string {
	if m.Format != "" {
		return m.Format
	}
	return "table"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }

// Ensure Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
