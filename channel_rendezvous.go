package kcoro

import (
	"context"
	"sync"
)

// RendezvousChannel is a zero-buffer channel: a matched send/recv copies
// the value directly through the waiter queue.
type RendezvousChannel[T any] struct {
	scheduler *Scheduler
	name      string

	mu        sync.Mutex
	closed    bool
	senders   []*chanWaiter[T]
	receivers []*chanWaiter[T]

	metrics chanMetrics
}

// NewRendezvousChannel creates a rendezvous channel bound to s (Default()
// if nil). name is carried on metrics events.
func NewRendezvousChannel[T any](s *Scheduler, name string) *RendezvousChannel[T] {
	if s == nil {
		s = Default()
	}
	return &RendezvousChannel[T]{scheduler: s, name: name, metrics: newChanMetrics(s.Metrics(), KindRendezvous, name)}
}

func (c *RendezvousChannel[T]) trySend(v T) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, newChannelError(KindRendezvous.String(), "send", ErrClosed)
	}
	for len(c.receivers) > 0 {
		w := c.receivers[0]
		c.receivers = c.receivers[1:]
		if !w.claim() {
			continue
		}
		c.mu.Unlock()
		w.value = v
		w.wake(c.scheduler, nil)
		c.metrics.recordSend(byteSizeOf(v))
		return true, nil
	}
	c.mu.Unlock()
	return false, nil
}

func (c *RendezvousChannel[T]) tryRecv() (T, bool, error) {
	var zero T
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, false, newChannelError(KindRendezvous.String(), "recv", ErrClosed)
	}
	for len(c.senders) > 0 {
		w := c.senders[0]
		c.senders = c.senders[1:]
		if !w.claim() {
			continue
		}
		c.mu.Unlock()
		v := w.value
		w.wake(c.scheduler, nil)
		c.metrics.recordRecv(byteSizeOf(v))
		return v, true, nil
	}
	c.mu.Unlock()
	return zero, false, nil
}

func (c *RendezvousChannel[T]) registerSendWaiter(w *chanWaiter[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		w.wake(c.scheduler, newChannelError(KindRendezvous.String(), "send", ErrClosed))
		return
	}
	c.senders = append(c.senders, w)
	c.mu.Unlock()
}

func (c *RendezvousChannel[T]) registerRecvWaiter(w *chanWaiter[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		w.wake(c.scheduler, newChannelError(KindRendezvous.String(), "recv", ErrClosed))
		return
	}
	c.receivers = append(c.receivers, w)
	c.mu.Unlock()
}

func (c *RendezvousChannel[T]) unregisterSendWaiter(w *chanWaiter[T]) {
	c.mu.Lock()
	for i, x := range c.senders {
		if x == w {
			c.senders = append(c.senders[:i], c.senders[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

func (c *RendezvousChannel[T]) unregisterRecvWaiter(w *chanWaiter[T]) {
	c.mu.Lock()
	for i, x := range c.receivers {
		if x == w {
			c.receivers = append(c.receivers[:i], c.receivers[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Send delivers v, following the common timeout contract :
// <0 blocks forever, 0 is non-blocking (EAGAIN if no receiver is
// waiting), >0 bounds the wait (ETIME on expiry).
func (c *RendezvousChannel[T]) Send(ctx context.Context, v T, timeoutMs int64) error {
	return c.send(ctx, v, timeoutMs, nil)
}

// SendCancellable is Send, additionally observing tok: a trigger while
// parked returns ECANCELED without delivering the value.
func (c *RendezvousChannel[T]) SendCancellable(ctx context.Context, v T, timeoutMs int64, tok *Token) error {
	return c.send(ctx, v, timeoutMs, tok)
}

func (c *RendezvousChannel[T]) send(ctx context.Context, v T, timeoutMs int64, tok *Token) error {
	if ok, err := c.trySend(v); err != nil {
		c.metrics.recordErr(errKindOf(err))
		return err
	} else if ok {
		return nil
	}
	if timeoutMs == 0 {
		c.metrics.recordErr("eagain")
		return ErrWouldBlock
	}
	co := CurrentCoroutine(ctx)
	if co == nil {
		return ErrWouldBlock
	}

	w := &chanWaiter[T]{co: co, value: v}
	c.registerSendWaiter(w)
	if w.err != nil { // closed concurrently with registration
		c.metrics.recordErr(errKindOf(w.err))
		return w.err
	}

	stop, cleanup := armWaiterTimeout(c.scheduler, w, timeoutMs, tok)
	co.park()
	close(stop)
	cleanup()

	if w.err != nil {
		c.unregisterSendWaiter(w)
		c.metrics.recordErr(errKindOf(w.err))
		return w.err
	}
	c.metrics.recordSend(byteSizeOf(v))
	return nil
}

// Recv is the receive counterpart of Send.
func (c *RendezvousChannel[T]) Recv(ctx context.Context, timeoutMs int64) (T, error) {
	return c.recv(ctx, timeoutMs, nil)
}

// RecvCancellable is Recv, additionally observing tok.
func (c *RendezvousChannel[T]) RecvCancellable(ctx context.Context, timeoutMs int64, tok *Token) (T, error) {
	return c.recv(ctx, timeoutMs, tok)
}

func (c *RendezvousChannel[T]) recv(ctx context.Context, timeoutMs int64, tok *Token) (T, error) {
	var zero T
	if v, ok, err := c.tryRecv(); err != nil {
		c.metrics.recordErr(errKindOf(err))
		return zero, err
	} else if ok {
		return v, nil
	}
	if timeoutMs == 0 {
		c.metrics.recordErr("eagain")
		return zero, ErrWouldBlock
	}
	co := CurrentCoroutine(ctx)
	if co == nil {
		return zero, ErrWouldBlock
	}

	w := &chanWaiter[T]{co: co}
	c.registerRecvWaiter(w)
	if w.err != nil {
		c.metrics.recordErr(errKindOf(w.err))
		return zero, w.err
	}

	stop, cleanup := armWaiterTimeout(c.scheduler, w, timeoutMs, tok)
	co.park()
	close(stop)
	cleanup()

	if w.err != nil {
		c.unregisterRecvWaiter(w)
		c.metrics.recordErr(errKindOf(w.err))
		return zero, w.err
	}
	c.metrics.recordRecv(byteSizeOf(w.value))
	return w.value, nil
}

// Close wakes every parked waiter with ErrClosed; subsequent ops observe
// EPIPE. Idempotent.
func (c *RendezvousChannel[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	senders, receivers := c.senders, c.receivers
	c.senders, c.receivers = nil, nil
	c.mu.Unlock()

	for _, w := range senders {
		if w.claim() {
			w.wake(c.scheduler, newChannelError(KindRendezvous.String(), "send", ErrClosed))
		}
	}
	for _, w := range receivers {
		if w.claim() {
			w.wake(c.scheduler, newChannelError(KindRendezvous.String(), "recv", ErrClosed))
		}
	}
	return nil
}

// Size is always 0: a rendezvous channel holds no buffered values.
func (c *RendezvousChannel[T]) Size() int { return 0 }

// Snapshot returns the channel's current metrics totals.
func (c *RendezvousChannel[T]) Snapshot() ChannelSnapshot { return c.metrics.snapshot() }

// SetMetricsPipe attaches a best-effort metrics event consumer.
func (c *RendezvousChannel[T]) SetMetricsPipe(pipe chan<- ChannelMetricsEvent, cfg ChannelMetricsConfig) {
	c.metrics.setPipe(pipe, cfg)
}
