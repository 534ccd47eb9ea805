package kcoro

import (
	"context"
	"math/rand"
)

// SelectPolicy chooses the probe/registration order for a Select:
// declared order, or a Fisher-Yates shuffle seeded by the monotonic
// clock.
type SelectPolicy int

const (
	PolicyFirstWins SelectPolicy = iota
	PolicyRandomized
)

// Select composes recv/send clauses across possibly-different channel
// types and waits for exactly one to complete. Clause types are erased behind selectClause; AddRecv/AddSend are
// the typed entry points since Go has no generic methods.
type Select struct {
	scheduler *Scheduler
	policy    SelectPolicy
	token     *Token
	clauses   []selectClause
}

// NewSelect creates a Select bound to s (Default() if nil), an ordering
// policy, and an optional cancellation token.
func NewSelect(s *Scheduler, policy SelectPolicy, token *Token) *Select {
	if s == nil {
		s = Default()
	}
	return &Select{scheduler: s, policy: policy, token: token}
}

// probeOrder returns clause indices in probe/registration order: declared
// order for PolicyFirstWins, else a shuffle seeded by the monotonic clock.
func (sel *Select) probeOrder() []int {
	n := len(sel.clauses)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if sel.policy != PolicyRandomized || n < 2 {
		return order
	}
	rng := rand.New(rand.NewSource(nowNs()))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// Wait runs the probe→register→park→cancel-losers protocol. timeoutMs follows the common channel-op contract: <0 forever,
// 0 non-blocking, >0 bounded. winnerIndex is -1 on ETIME/ECANCELED/
// EAGAIN.
func (sel *Select) Wait(ctx context.Context, timeoutMs int64) (winnerIndex int, err error) {
	order := sel.probeOrder()
	for _, i := range order {
		if sel.clauses[i].probe() {
			sel.cancelAllExcept(i)
			return i, sel.clauses[i].finish()
		}
	}
	if timeoutMs == 0 {
		return -1, ErrWouldBlock
	}
	co := CurrentCoroutine(ctx)
	if co == nil {
		return -1, ErrWouldBlock
	}

	sw := &selectWaiter{co: co}
	for i, c := range sel.clauses {
		c.register(sw, i)
	}

	stop := make(chan struct{})
	var th TimerHandle
	if timeoutMs > 0 {
		th = sel.scheduler.TimerAfter(timeoutMs, func() {
			if sw.latch.CompareAndSwap(0, selectTimeoutWin) {
				sel.scheduler.EnqueueReady(sw.co)
			}
		})
	}
	if sel.token != nil {
		go func() {
			select {
			case <-sel.token.done:
				if sw.latch.CompareAndSwap(0, selectCancelWin) {
					sel.scheduler.EnqueueReady(sw.co)
				}
			case <-stop:
			}
		}()
	}

	co.park()

	close(stop)
	if timeoutMs > 0 {
		sel.scheduler.TimerCancel(th)
	}

	switch winner := sw.latch.Load(); {
	case winner > 0:
		idx := int(winner - 1)
		sel.cancelAllExcept(idx)
		return idx, sel.clauses[idx].finish()
	case winner == selectTimeoutWin:
		sel.cancelAllExcept(-1)
		return -1, ErrTimeout
	default:
		sel.cancelAllExcept(-1)
		return -1, ErrCanceled
	}
}

func (sel *Select) cancelAllExcept(winner int) {
	for i, c := range sel.clauses {
		if i != winner {
			c.cancel()
		}
	}
}
