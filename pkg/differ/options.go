package differ

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/events"
)

// Option is a functional option for configuring Generate.
type Option func(*differ)

// WithLogger sets the logger used for malformed-field warnings.
func WithLogger(logger *zerolog.Logger) Option {
	return func(d *differ) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithIgnoredTypes drops events of the given types from the output.
func WithIgnoredTypes(types ...events.Type) Option {
	return func(d *differ) {
		for _, t := range types {
			d.ignore[t] = true
		}
	}
}
