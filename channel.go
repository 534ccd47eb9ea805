package kcoro

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/kcoro-run/kcoro/metrics"
)

// ChannelKind identifies one of the four channel variants.
type ChannelKind int

const (
	KindRendezvous ChannelKind = iota
	KindBuffered
	KindConflated
	KindUnbounded
)

func (k ChannelKind) String() string {
	switch k {
	case KindRendezvous:
		return "rendezvous"
	case KindBuffered:
		return "buffered"
	case KindConflated:
		return "conflated"
	case KindUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// Channel is the method set shared by the four channel variants.
type Channel[T any] interface {
	Send(ctx context.Context, v T, timeoutMs int64) error
	SendCancellable(ctx context.Context, v T, timeoutMs int64, tok *Token) error
	Recv(ctx context.Context, timeoutMs int64) (T, error)
	RecvCancellable(ctx context.Context, timeoutMs int64, tok *Token) (T, error)
	Close() error
	Size() int
	Snapshot() ChannelSnapshot
	SetMetricsPipe(pipe chan<- ChannelMetricsEvent, cfg ChannelMetricsConfig)
}

// ChannelSnapshot is the point-in-time totals every channel variant tracks.
type ChannelSnapshot struct {
	TotalSends, TotalRecvs         uint64
	TotalBytesSent, TotalBytesRecv uint64
	TotalEAGAIN, TotalETIME        uint64
	TotalECANCELED, TotalEPIPE     uint64
	FirstOpNs, LastOpNs            int64
}

// ChannelMetricsEvent is emitted on a channel's optional metrics pipe.
type ChannelMetricsEvent struct {
	Kind     ChannelKind
	Name     string
	Snapshot ChannelSnapshot
}

// ChannelMetricsConfig bounds how often events are emitted: whichever
// threshold — op count or elapsed time since the last emit — is reached
// first triggers one.
type ChannelMetricsConfig struct {
	OpThreshold   uint64
	TimeThreshold time.Duration
}

// sizedValue lets a descriptor-like type report its own wire size (raw
// byte count) rather than falling back to unsafe.Sizeof(T).
type sizedValue interface{ ByteSize() int }

func byteSizeOf[T any](v T) int {
	if sv, ok := any(v).(sizedValue); ok {
		return sv.ByteSize()
	}
	return int(unsafe.Sizeof(v))
}

func errKindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWouldBlock):
		return "eagain"
	case errors.Is(err, ErrTimeout):
		return "etime"
	case errors.Is(err, ErrCanceled):
		return "ecanceled"
	case errors.Is(err, ErrClosed):
		return "epipe"
	default:
		return ""
	}
}

// chanMetrics is embedded by every channel variant. Its counters and pipe
// emission are independent of the channel's own critical-section lock, so
// a best-effort pipe send never happens while that lock is held.
type chanMetrics struct {
	kind ChannelKind
	name string

	sends, recvs         atomic.Uint64
	bytesSent, bytesRecv atomic.Uint64
	eagain, etime        atomic.Uint64
	ecanceled, epipe     atomic.Uint64
	firstOpNs, lastOpNs  atomic.Int64

	sendsInstr, recvsInstr         metrics.Counter
	bytesSentInstr, bytesRecvInstr metrics.Counter
	errorsInstr                    metrics.Counter

	mu          sync.Mutex
	pipe        chan<- ChannelMetricsEvent
	cfg         ChannelMetricsConfig
	lastEmitOps uint64
	lastEmitNs  int64
}

// newChanMetrics wires a channel's counters into provider (NoopProvider if
// nil), one named instrument per concern, scoped by channel name since
// Provider instruments are keyed by name alone.
func newChanMetrics(provider metrics.Provider, kind ChannelKind, name string) chanMetrics {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	attrs := metrics.WithAttributes(map[string]string{"channel": name, "kind": kind.String()})
	prefix := "kcoro.channel." + name + "."
	return chanMetrics{
		kind: kind, name: name,
		sendsInstr:     provider.Counter(prefix+"sends", metrics.WithUnit("1"), attrs),
		recvsInstr:     provider.Counter(prefix+"recvs", metrics.WithUnit("1"), attrs),
		bytesSentInstr: provider.Counter(prefix+"bytes_sent", metrics.WithUnit("By"), attrs),
		bytesRecvInstr: provider.Counter(prefix+"bytes_recv", metrics.WithUnit("By"), attrs),
		errorsInstr:    provider.Counter(prefix+"errors", metrics.WithUnit("1"), attrs),
	}
}

func (m *chanMetrics) touch(now int64) {
	m.firstOpNs.CompareAndSwap(0, now)
	m.lastOpNs.Store(now)
}

func (m *chanMetrics) recordSend(nbytes int) {
	m.sends.Add(1)
	m.bytesSent.Add(uint64(nbytes))
	m.sendsInstr.Add(1)
	m.bytesSentInstr.Add(int64(nbytes))
	now := nowNs()
	m.touch(now)
	m.maybeEmit(now)
}

func (m *chanMetrics) recordRecv(nbytes int) {
	m.recvs.Add(1)
	m.bytesRecv.Add(uint64(nbytes))
	m.recvsInstr.Add(1)
	m.bytesRecvInstr.Add(int64(nbytes))
	now := nowNs()
	m.touch(now)
	m.maybeEmit(now)
}

func (m *chanMetrics) recordErr(kind string) {
	switch kind {
	case "eagain":
		m.eagain.Add(1)
	case "etime":
		m.etime.Add(1)
	case "ecanceled":
		m.ecanceled.Add(1)
	case "epipe":
		m.epipe.Add(1)
	default:
		return
	}
	m.errorsInstr.Add(1)
	now := nowNs()
	m.touch(now)
	m.maybeEmit(now)
}

func (m *chanMetrics) snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		TotalSends: m.sends.Load(), TotalRecvs: m.recvs.Load(),
		TotalBytesSent: m.bytesSent.Load(), TotalBytesRecv: m.bytesRecv.Load(),
		TotalEAGAIN: m.eagain.Load(), TotalETIME: m.etime.Load(),
		TotalECANCELED: m.ecanceled.Load(), TotalEPIPE: m.epipe.Load(),
		FirstOpNs: m.firstOpNs.Load(), LastOpNs: m.lastOpNs.Load(),
	}
}

func (m *chanMetrics) setPipe(pipe chan<- ChannelMetricsEvent, cfg ChannelMetricsConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipe = pipe
	m.cfg = cfg
	m.lastEmitOps = m.sends.Load() + m.recvs.Load()
	m.lastEmitNs = nowNs()
}

func (m *chanMetrics) maybeEmit(now int64) {
	m.mu.Lock()
	pipe := m.pipe
	if pipe == nil {
		m.mu.Unlock()
		return
	}
	ops := m.sends.Load() + m.recvs.Load()
	dueOps := m.cfg.OpThreshold > 0 && ops-m.lastEmitOps >= m.cfg.OpThreshold
	dueTime := m.cfg.TimeThreshold > 0 && time.Duration(now-m.lastEmitNs) >= m.cfg.TimeThreshold
	if !dueOps && !dueTime {
		m.mu.Unlock()
		return
	}
	m.lastEmitOps = ops
	m.lastEmitNs = now
	m.mu.Unlock()

	evt := ChannelMetricsEvent{Kind: m.kind, Name: m.name, Snapshot: m.snapshot()}
	select {
	case pipe <- evt:
	default: // best-effort: drop on overflow rather than block a critical section
	}
}

// chanWaiter is a parked sender or receiver. value carries the payload
// (outbound for a sender, filled in for a receiver); claimed is a
// single-claim latch so a match, a timeout, and a Select race fairly for
// exactly one winner.
type chanWaiter[T any] struct {
	co      *Coroutine
	value   T
	claimed atomic.Bool
	err     error

	sel    *selectWaiter
	clause int
}

func (w *chanWaiter[T]) claim() bool { return w.claimed.CompareAndSwap(false, true) }

// wake finalizes the waiter with err and resumes it. A Select-registered
// waiter first claims the shared Select latch; it is silently dropped if
// it loses that race (another clause already won).
func (w *chanWaiter[T]) wake(s *Scheduler, err error) {
	if w.sel != nil {
		if !w.sel.latch.CompareAndSwap(0, int32(w.clause+1)) {
			return
		}
	}
	w.err = err
	s.EnqueueReady(w.co)
}

// selectWaiter is the shared park record for one Select.Wait call: every
// registered clause races to CAS latch from 0 to its 1-based winning
// index (or to one of the reserved timeout/cancel values).
type selectWaiter struct {
	co    *Coroutine
	latch atomic.Int32
}

const (
	selectTimeoutWin int32 = -1
	selectCancelWin  int32 = -2
)

// selectClause is the type-erased registration surface a channel exposes
// to the Select engine.
type selectClause interface {
	probe() bool
	register(sw *selectWaiter, idx int)
	cancel()
	finish() error
}

// recvChannel is the capability a channel variant exposes to support a
// generic select recv clause.
type recvChannel[T any] interface {
	tryRecv() (T, bool, error)
	registerRecvWaiter(w *chanWaiter[T])
	unregisterRecvWaiter(w *chanWaiter[T])
}

// sendChannel is the capability a channel variant exposes to support a
// generic select send clause.
type sendChannel[T any] interface {
	trySend(v T) (bool, error)
	registerSendWaiter(w *chanWaiter[T])
	unregisterSendWaiter(w *chanWaiter[T])
}

type recvClause[T any] struct {
	ch  recvChannel[T]
	out *T
	w   *chanWaiter[T]
}

func (c *recvClause[T]) probe() bool {
	v, ok, err := c.ch.tryRecv()
	if err != nil {
		c.w = &chanWaiter[T]{err: err}
		return true
	}
	if !ok {
		return false
	}
	*c.out = v
	return true
}

func (c *recvClause[T]) register(sw *selectWaiter, idx int) {
	w := &chanWaiter[T]{co: sw.co, sel: sw, clause: idx}
	c.w = w
	c.ch.registerRecvWaiter(w)
}

func (c *recvClause[T]) cancel() {
	if c.w != nil && c.w.co != nil {
		c.ch.unregisterRecvWaiter(c.w)
	}
}

func (c *recvClause[T]) finish() error {
	if c.w == nil {
		return nil
	}
	if c.w.err == nil {
		*c.out = c.w.value
	}
	return c.w.err
}

type sendClause[T any] struct {
	ch  sendChannel[T]
	val T
	w   *chanWaiter[T]
}

func (c *sendClause[T]) probe() bool {
	ok, err := c.ch.trySend(c.val)
	if err != nil {
		c.w = &chanWaiter[T]{err: err}
		return true
	}
	return ok
}

func (c *sendClause[T]) register(sw *selectWaiter, idx int) {
	w := &chanWaiter[T]{co: sw.co, sel: sw, clause: idx, value: c.val}
	c.w = w
	c.ch.registerSendWaiter(w)
}

func (c *sendClause[T]) cancel() {
	if c.w != nil && c.w.co != nil {
		c.ch.unregisterSendWaiter(c.w)
	}
}

func (c *sendClause[T]) finish() error {
	if c.w == nil {
		return nil
	}
	return c.w.err
}

// armWaiterTimeout arms the optional bounded-wait timer and the optional
// cancellation watcher for a parked plain (non-Select) waiter, racing both
// against a normal match via chanWaiter's claim latch. The caller must
// close the returned stop channel and invoke cleanup once it resumes, to
// let the cancellation watcher goroutine (if any) exit and the timer be
// cancelled.
func armWaiterTimeout[T any](s *Scheduler, w *chanWaiter[T], timeoutMs int64, tok *Token) (stop chan struct{}, cleanup func()) {
	stop = make(chan struct{})
	var th TimerHandle
	hasTimer := timeoutMs > 0
	if hasTimer {
		th = s.TimerAfter(timeoutMs, func() {
			if w.claim() {
				w.err = ErrTimeout
				s.EnqueueReady(w.co)
			}
		})
	}
	if tok != nil {
		go func() {
			select {
			case <-tok.done:
				if w.claim() {
					w.err = ErrCanceled
					s.EnqueueReady(w.co)
				}
			case <-stop:
			}
		}()
	}
	cleanup = func() {
		if hasTimer {
			s.TimerCancel(th)
		}
	}
	return stop, cleanup
}

// AddRecv appends a receive clause for a typed channel to sel.
func AddRecv[T any](sel *Select, ch recvChannel[T], out *T) {
	sel.clauses = append(sel.clauses, &recvClause[T]{ch: ch, out: out})
}

// AddSend appends a send clause carrying val for a typed channel to sel.
func AddSend[T any](sel *Select, ch sendChannel[T], val T) {
	sel.clauses = append(sel.clauses, &sendClause[T]{ch: ch, val: val})
}
