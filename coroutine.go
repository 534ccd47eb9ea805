package kcoro

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is a coroutine's lifecycle state.
type State int32

const (
	Created State = iota
	Ready
	Running
	Suspended
	Parked
	Finished
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Parked:
		return "parked"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

var nextCoroutineID uint64

// Coroutine is a stackful cooperative task: an immutable (entry, arg) pair,
// an owned notional stack, and a saved lifecycle state. resume/park are
// realized atop a dedicated goroutine and a pair of unbuffered handoff
// channels in place of a native machine context switch.
type Coroutine struct {
	id    uint64
	stack Stack

	scheduler *Scheduler
	entry     func(ctx context.Context, arg any)
	arg       any

	// buf backs the coroutine's stack-size bookkeeping (Stack.Bytes); it is
	// owned and recycled by the Scheduler's stack pool, not by Coroutine
	// itself, since pooling policy (default-size vs custom) lives there.
	buf []byte

	mu    sync.Mutex
	state State
	name  string

	resumeCh chan struct{}
	yieldCh  chan struct{}
	doneCh   chan struct{}
	started  bool

	// Intrusive ready-list linkage. Only ever touched under the owning
	// Scheduler's ready-list mutex.
	nextReady *Coroutine
	enqueued  bool
}

func newCoroutine(s *Scheduler, entry func(ctx context.Context, arg any), arg any, stackBytes int) *Coroutine {
	return &Coroutine{
		id:        atomic.AddUint64(&nextCoroutineID, 1),
		stack:     newStack(stackBytes),
		scheduler: s,
		entry:     entry,
		arg:       arg,
		state:     Created,
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// ID returns the coroutine's process-local identifier.
func (co *Coroutine) ID() uint64 { return co.id }

// Name returns the coroutine's optional diagnostic name.
func (co *Coroutine) Name() string {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.name
}

// SetName sets the coroutine's optional diagnostic name.
func (co *Coroutine) SetName(name string) {
	co.mu.Lock()
	co.name = name
	co.mu.Unlock()
}

// State returns the coroutine's current lifecycle state.
func (co *Coroutine) State() State {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.state
}

// IsParked reports whether the coroutine is currently parked.
func (co *Coroutine) IsParked() bool { return co.State() == Parked }

// IsFinished reports whether the coroutine has finished.
func (co *Coroutine) IsFinished() bool { return co.State() == Finished }

// StackBytes returns the usable stack budget (excluding the guard page
// bookkeeping value) the coroutine was created with.
func (co *Coroutine) StackBytes() int { return co.stack.Bytes() }

// Done returns a channel closed once the coroutine has finished.
func (co *Coroutine) Done() <-chan struct{} { return co.doneCh }

// trampoline is the coroutine's continuation entry point: it
// waits for the first resume, installs the current-coroutine context value,
// runs the entry function, marks the coroutine Finished, and hands control
// back to the worker blocked in resume(). Any return past this function
// body is impossible by construction — there is no outer loop to fall into.
func (co *Coroutine) trampoline() {
	<-co.resumeCh
	ctx := withCoroutine(context.Background(), co)
	defer func() {
		co.mu.Lock()
		co.state = Finished
		co.mu.Unlock()
		close(co.doneCh)
		co.yieldCh <- struct{}{}
	}()
	co.entry(ctx, co.arg)
}

// resume continues a Created, Ready, Suspended, or Parked coroutine and blocks the
// calling worker until the coroutine next parks or finishes — the
// Go-idiomatic stand-in for a native machine context switch. resume must
// only be called by a worker that currently owns the coroutine (enforced
// by the scheduler: a coroutine is linked in at most one queue at a time).
func (co *Coroutine) resume() {
	co.mu.Lock()
	switch co.state {
	case Finished:
		co.mu.Unlock()
		fatal("coroutine.resume", "resume called on a finished coroutine")
	case Running:
		co.mu.Unlock()
		fatal("coroutine.resume", "resume called on an already-running coroutine")
	}
	first := !co.started
	co.started = true
	co.state = Running
	co.mu.Unlock()

	if first {
		go co.trampoline()
	}
	co.resumeCh <- struct{}{}
	<-co.yieldCh
}

// park suspends the calling coroutine (must be invoked from inside the
// coroutine's own entry-function call stack) and returns control to the
// worker's resume() call. It returns once resumed.
func (co *Coroutine) park() {
	co.mu.Lock()
	co.state = Parked
	co.mu.Unlock()
	co.yieldCh <- struct{}{}
	<-co.resumeCh
}
