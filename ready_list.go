package kcoro

import "sync"

// readyList is the scheduler-global intrusive FIFO of runnable coroutines.
// Linkage lives on the Coroutine itself (nextReady, enqueued) so
// enqueue/dequeue never allocates.
type readyList struct {
	mu         sync.Mutex
	head, tail *Coroutine
	size       int
}

// pushTail links co at the tail of the list. Idempotent with respect to the
// enqueued bit: a coroutine already linked is left untouched (double-enqueue
// is a no-op).
func (rl *readyList) pushTail(co *Coroutine) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if co.enqueued {
		return
	}
	co.enqueued = true
	co.nextReady = nil
	if rl.tail == nil {
		rl.head, rl.tail = co, co
	} else {
		rl.tail.nextReady = co
		rl.tail = co
	}
	rl.size++
}

// popHead unlinks and returns the head coroutine, or nil if empty.
func (rl *readyList) popHead() *Coroutine {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	co := rl.head
	if co == nil {
		return nil
	}
	rl.head = co.nextReady
	if rl.head == nil {
		rl.tail = nil
	}
	co.nextReady = nil
	co.enqueued = false
	rl.size--
	return co
}

func (rl *readyList) empty() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.head == nil
}

func (rl *readyList) len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.size
}

// drain unlinks and returns every coroutine currently in the list, used
// only at scheduler shutdown.
func (rl *readyList) drain() []*Coroutine {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	var out []*Coroutine
	for co := rl.head; co != nil; {
		next := co.nextReady
		co.nextReady = nil
		co.enqueued = false
		out = append(out, co)
		co = next
	}
	rl.head, rl.tail = nil, nil
	rl.size = 0
	return out
}
