package application

import (
	"time"

	"github.com/manorfm/mcpauth/internal/infrastructure/metrics"
)

// Option customises a service
type Option func(*options)

type options struct {
	clock   func() time.Time
	metrics *metrics.Recorder
}

func newOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now, used to exercise expiry
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMetrics records issued tokens and errors
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = recorder
	}
}
