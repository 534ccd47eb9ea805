// Package kcoro provides a user-space concurrency runtime: stackful
// coroutines multiplexed over a pool of worker goroutines, a family of
// typed channels, a composable multi-way select, hierarchical
// cancellation, and a zero-copy descriptor path with region lifetime
// management.
//
// Constructors
//   - NewScheduler(*Config): accepts an explicit Config.
//   - NewSchedulerOptions(opts ...Option): functional-options constructor.
//
// Defaults
// Unless overridden, the following defaults apply to a newly created
// Scheduler:
//   - Workers: 0 (hardware concurrency)
//   - StealAttempts: 3
//   - ParkTimeout: 1ms
//   - InjectRingInitialCapacity: 64
//   - RetirementBatch: 0 (finished coroutines are reclaimed at Shutdown)
//
// Coroutines
// Coroutines are created with SpawnCoroutine and run to completion or to a
// suspension point (Yield, SleepMs, a blocking channel operation, or
// Select.Wait). A coroutine that returns from its entry function finishes.
//
// Channels
// Four variants share the Channel[T] interface: rendezvous (no buffer),
// buffered (fixed ring), conflated (latest-value slot), and unbounded
// (growing FIFO). Each reports a metrics Snapshot and can be closed; no
// channel is closed automatically by the runtime.
//
// Zero-copy
// The region registry and ZDesc descriptor channels transfer
// (addr,len,region_id,offset) tuples without copying payloads; callers are
// responsible for holding a region ref across a transfer.
//
// Out of scope
// A CLI/benchmark driver, a logger front-end, and a C-ABI bridge are
// external collaborators of this package and are not implemented here.
package kcoro
