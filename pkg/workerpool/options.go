package workerpool

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxWorkers matches the size of the default role roster
	DefaultMaxWorkers = 5
	// DefaultTaskTimeout applies to tasks submitted without a timeout
	DefaultTaskTimeout = 60 * time.Second
)

// Option configures a Pool
type Option func(*Pool)

// WithMaxWorkers bounds the number of concurrently busy workers. Values below
// one are raised to one.
func WithMaxWorkers(n int) Option {
	return func(p *Pool) {
		if n < 1 {
			n = 1
		}
		p.maxWorkers = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithDefaultTimeout sets the timeout used for tasks whose Timeout is zero
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}
