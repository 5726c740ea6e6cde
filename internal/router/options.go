package router

import (
	"io"
	"log/slog"
	"runtime"
)

type options struct {
	workers int
	logger  *slog.Logger
}

// Option configures graph and index construction.
type Option func(*options)

// WithWorkers bounds the number of goroutines used while building. Values
// below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	o.logger = o.logger.With("component", "router")
	return o
}

func workerCount(o options, jobs int) int {
	if jobs < o.workers {
		return max(jobs, 1)
	}
	return o.workers
}
