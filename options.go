package kcoro

import (
	"fmt"
	"time"
)

// Option configures a Scheduler. Use NewSchedulerOptions(opts...) to
// construct a Scheduler via options.
type Option func(*Config)

// WithWorkers sets the worker count (0 means hardware concurrency).
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithStealAttempts sets how many peer workers a worker probes when its own
// queues are empty.
func WithStealAttempts(n int) Option {
	return func(c *Config) {
		if n < 0 {
			panic("kcoro: WithStealAttempts requires n >= 0")
		}
		c.StealAttempts = n
	}
}

// WithParkTimeout sets the bounded-wait duration an idle worker sleeps for.
func WithParkTimeout(d time.Duration) Option {
	return func(c *Config) { c.ParkTimeout = d }
}

// WithInjectRingCapacity sets the inject ring's starting capacity.
func WithInjectRingCapacity(n int) Option {
	return func(c *Config) {
		if n <= 0 {
			panic("kcoro: WithInjectRingCapacity requires n > 0")
		}
		c.InjectRingInitialCapacity = n
	}
}

// WithRetirementBatch bounds how many finished coroutines are held before
// the oldest are reclaimed (0 holds them all until Shutdown).
func WithRetirementBatch(n int) Option {
	return func(c *Config) { c.RetirementBatch = n }
}

// WithMaxPooledStacks switches the stack-buffer pool from an unbounded
// sync.Pool to a fixed-capacity pool holding at most n buffers (0, the
// default, keeps the unbounded pool).
func WithMaxPooledStacks(n int) Option {
	return func(c *Config) {
		if n < 0 {
			panic("kcoro: WithMaxPooledStacks requires n >= 0")
		}
		c.MaxPooledStacks = n
	}
}

// NewSchedulerOptions creates a new Scheduler using functional options,
// alongside the Config-based NewScheduler constructor.
func NewSchedulerOptions(opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("kcoro: nil scheduler option")
		}
		opt(&cfg)
	}
	if err := validateConfig(&cfg); err != nil {
		panic(fmt.Errorf("kcoro: invalid scheduler config: %w", err))
	}
	return NewScheduler(&cfg)
}
