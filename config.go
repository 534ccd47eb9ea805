package kcoro

import "time"

// Config holds Scheduler configuration.
type Config struct {
	// Workers defines the number of worker goroutines (OS-thread surrogates).
	// Zero (default) means hardware concurrency.
	Workers int

	// StealAttempts bounds how many peer workers a worker probes for stealable
	// work before falling back to the inject ring.
	StealAttempts int

	// ParkTimeout bounds how long an idle worker sleeps before re-checking
	// all queues.
	ParkTimeout time.Duration

	// InjectRingInitialCapacity is the starting capacity of the cross-thread
	// inject ring; it doubles on overflow.
	InjectRingInitialCapacity int

	// RetirementBatch bounds how many finished coroutines the retirement set
	// holds: once it grows past this, the oldest are reclaimed (their stack
	// buffers go back to the pool). 0 holds every finished coroutine until
	// Shutdown.
	RetirementBatch int

	// MaxPooledStacks bounds how many default-sized stack buffers the
	// scheduler keeps recycled at once. 0 (default) uses an unbounded
	// sync.Pool-backed pool; a positive value switches to a fixed-capacity
	// pool, trading unbounded growth under bursty spawn/retire churn for a
	// hard memory ceiling.
	MaxPooledStacks int
}

// defaultConfig centralizes default values for Config.
func defaultConfig() Config {
	return Config{
		Workers:                   0,
		StealAttempts:             3,
		ParkTimeout:               time.Millisecond,
		InjectRingInitialCapacity: 64,
		RetirementBatch:           0,
		MaxPooledStacks:           0,
	}
}

// validateConfig performs lightweight invariant checks: currently always
// nil, reserved for future validation expansion.
func validateConfig(cfg *Config) error {
	return nil
}
