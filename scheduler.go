package kcoro

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kcoro-run/kcoro/metrics"
	"github.com/kcoro-run/kcoro/pool"
)

const defaultStackBytes = 64 * 1024

// fastSlot is a per-worker single-task fast path: a task install succeeds
// only while the slot is empty.
type fastSlot struct {
	mu sync.Mutex
	t  *task
}

func (s *fastSlot) tryInstall(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t != nil {
		return false
	}
	s.t = &t
	return true
}

func (s *fastSlot) take() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t == nil {
		return task{}, false
	}
	t := *s.t
	s.t = nil
	return t, true
}

// Scheduler owns worker goroutines, per-worker deques, the global ready
// list, the inject ring, and the timer thread.
type Scheduler struct {
	cfg Config

	deques    []*workerDeque
	fastSlots []fastSlot
	inject    *injectRing
	ready     *readyList
	timer     *timerThread

	parkWake chan struct{}
	stopCh   chan struct{}
	stopped  atomic.Bool
	wg       sync.WaitGroup

	rrCounter atomic.Uint64

	retireMu  sync.Mutex
	retireSet []*Coroutine
	stackPool pool.Pool

	inFlightTasks       atomic.Int64
	inFlightCoroutines  atomic.Int64
	statSpawnedTasks    atomic.Uint64
	statSpawnedCoros    atomic.Uint64
	statSteals          atomic.Uint64
	statFastpathHits    atomic.Uint64
	statFastpathMisses  atomic.Uint64

	metricsProvider metrics.Provider

	spawnedTasksInstr, spawnedCorosInstr     metrics.Counter
	stealsInstr                              metrics.Counter
	fastpathHitsInstr, fastpathMissesInstr   metrics.Counter
}

// NewScheduler creates a Scheduler from an explicit Config. A nil config
// uses defaults. The scheduler's workers start immediately.
func NewScheduler(cfg *Config) *Scheduler {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := validateConfig(&c); err != nil {
		panic(err)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	s := &Scheduler{
		cfg:             c,
		deques:          make([]*workerDeque, c.Workers),
		fastSlots:       make([]fastSlot, c.Workers),
		inject:          newInjectRing(c.InjectRingInitialCapacity),
		ready:           &readyList{},
		timer:           newTimerThread(),
		parkWake:        make(chan struct{}, c.Workers),
		stopCh:          make(chan struct{}),
		metricsProvider: metrics.NewBasicProvider(),
	}
	newStackBuf := func() interface{} { return make([]byte, defaultStackBytes) }
	if c.MaxPooledStacks > 0 {
		s.stackPool = pool.NewFixed(uint(c.MaxPooledStacks), newStackBuf)
	} else {
		s.stackPool = pool.NewDynamic(newStackBuf)
	}
	for i := range s.deques {
		s.deques[i] = &workerDeque{}
	}

	s.spawnedTasksInstr = s.metricsProvider.Counter("kcoro.scheduler.spawned_tasks", metrics.WithUnit("1"))
	s.spawnedCorosInstr = s.metricsProvider.Counter("kcoro.scheduler.spawned_coroutines", metrics.WithUnit("1"))
	s.stealsInstr = s.metricsProvider.Counter("kcoro.scheduler.steals", metrics.WithUnit("1"))
	s.fastpathHitsInstr = s.metricsProvider.Counter("kcoro.scheduler.fastpath_hits", metrics.WithUnit("1"))
	s.fastpathMissesInstr = s.metricsProvider.Counter("kcoro.scheduler.fastpath_misses", metrics.WithUnit("1"))
	s.timer.setMetrics(
		s.metricsProvider.Counter("kcoro.scheduler.timer_fired", metrics.WithUnit("1")),
		s.metricsProvider.Counter("kcoro.scheduler.timer_cancelled", metrics.WithUnit("1")),
	)

	s.timer.start()
	for i := 0; i < c.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
	return s
}

var (
	defaultScheduler *Scheduler
	defaultOnce      sync.Once
)

// Default lazily constructs and returns a process-wide Scheduler. Default
// never shuts itself down — that remains the host's responsibility via
// Shutdown.
func Default() *Scheduler {
	defaultOnce.Do(func() { defaultScheduler = NewSchedulerOptions() })
	return defaultScheduler
}

// Metrics returns the scheduler's instrumentation provider.
func (s *Scheduler) Metrics() metrics.Provider { return s.metricsProvider }

func (s *Scheduler) wakeOne() {
	select {
	case s.parkWake <- struct{}{}:
	default:
	}
}

// submit tries the round-robin target's fast-path slot, else pushes to
// the inject ring (which grows rather than falling back to a deque, per
// DESIGN.md resolution #2).
func (s *Scheduler) submit(t task) error {
	if s.stopped.Load() {
		return nil // spawn after stop is a no-op
	}
	s.inFlightTasks.Add(1)
	target := int(s.rrCounter.Add(1)-1) % len(s.fastSlots)
	if s.fastSlots[target].tryInstall(t) {
		s.statFastpathHits.Add(1)
		s.fastpathHitsInstr.Add(1)
		s.wakeOne()
		return nil
	}
	s.statFastpathMisses.Add(1)
	s.fastpathMissesInstr.Add(1)
	s.inject.push(t)
	s.wakeOne()
	return nil
}

// SpawnTask submits a plain, non-coroutine work item.
// It is delivered exactly once and never suspends: the context it runs
// under carries no current coroutine, so a channel Send/Recv or a
// Select.Wait that would have to park returns ErrWouldBlock instead.
// Yield and SleepMs have no error result; called from fn they return at
// once without yielding or sleeping.
func (s *Scheduler) SpawnTask(fn func(ctx context.Context) error) error {
	s.statSpawnedTasks.Add(1)
	s.spawnedTasksInstr.Add(1)
	return s.submit(task{run: func() {
		defer s.inFlightTasks.Add(-1)
		_ = fn(context.Background())
	}})
}

// SpawnCoroutine creates a coroutine and enqueues it Ready. stackBytes <= 0 floors to one page.
func (s *Scheduler) SpawnCoroutine(fn func(ctx context.Context, arg any), arg any, stackBytes int) *Coroutine {
	co := newCoroutine(s, fn, arg, stackBytes)
	if stackBytes <= 0 || stackBytes == defaultStackBytes {
		co.buf, _ = s.stackPool.Get().([]byte)
	} else {
		co.buf = make([]byte, alignStackBytes(stackBytes))
	}
	s.statSpawnedCoros.Add(1)
	s.spawnedCorosInstr.Add(1)
	s.inFlightCoroutines.Add(1)
	co.mu.Lock()
	co.state = Ready
	co.mu.Unlock()
	s.EnqueueReady(co)
	return co
}

// EnqueueReady links co at the tail of the ready list (idempotent) and
// wakes one idle worker.
func (s *Scheduler) EnqueueReady(co *Coroutine) {
	if s.stopped.Load() {
		return // enqueue after stop is a no-op
	}
	s.ready.pushTail(co)
	s.wakeOne()
}

// Yield re-enqueues the calling coroutine and parks it. Called from
// outside a coroutine (ctx carries none), it is a no-op.
func (s *Scheduler) Yield(ctx context.Context) {
	co := CurrentCoroutine(ctx)
	if co == nil {
		return
	}
	s.EnqueueReady(co)
	co.park()
}

// SleepMs schedules a timer to re-enqueue the calling coroutine after d
// milliseconds, then parks it. Called outside a coroutine, it is a no-op.
func (s *Scheduler) SleepMs(ctx context.Context, d int64) {
	co := CurrentCoroutine(ctx)
	if co == nil {
		return
	}
	s.timer.scheduleAfter(d, func() { s.EnqueueReady(co) })
	co.park()
}

// TimerAt schedules cb to run on the timer thread at the given absolute
// deadline (nanoseconds). cb's only permitted runtime effect is enqueueing
// a coroutine.
func (s *Scheduler) TimerAt(deadlineNs int64, cb func()) TimerHandle {
	return s.timer.scheduleAt(deadlineNs, cb)
}

// TimerAfter schedules cb to run delayMs milliseconds from now.
func (s *Scheduler) TimerAfter(delayMs int64, cb func()) TimerHandle {
	return s.timer.scheduleAfter(delayMs, cb)
}

// TimerCancel cancels a pending timer; see timerThread.cancel for the
// exact boundary semantics.
func (s *Scheduler) TimerCancel(h TimerHandle) bool {
	return s.timer.cancel(h)
}

func (s *Scheduler) retire(co *Coroutine) {
	s.retireMu.Lock()
	s.retireSet = append(s.retireSet, co)
	if s.cfg.RetirementBatch > 0 && len(s.retireSet) > s.cfg.RetirementBatch {
		stale := s.retireSet[:len(s.retireSet)-s.cfg.RetirementBatch]
		s.retireSet = s.retireSet[len(s.retireSet)-s.cfg.RetirementBatch:]
		s.reclaimLocked(stale)
	}
	s.retireMu.Unlock()
	s.inFlightCoroutines.Add(-1)
}

// reclaimLocked returns each coroutine's stack buffer to the pool. Must be
// called with retireMu held.
func (s *Scheduler) reclaimLocked(cos []*Coroutine) {
	for _, co := range cos {
		if len(co.buf) == defaultStackBytes {
			s.stackPool.Put(co.buf)
		}
		co.buf = nil
	}
}

func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()
	for {
		if s.stopped.Load() {
			return
		}
		if co := s.ready.popHead(); co != nil {
			co.resume()
			if co.IsFinished() {
				s.retire(co)
			}
			continue
		}
		if t, ok := s.deques[id].popTail(); ok {
			s.runTask(t)
			continue
		}
		if t, ok := s.fastSlots[id].take(); ok {
			s.runTask(t)
			continue
		}
		if t, ok := s.trySteal(id); ok {
			s.runTask(t)
			continue
		}
		if t, ok := s.inject.pop(); ok {
			s.runTask(t)
			continue
		}
		select {
		case <-s.parkWake:
		case <-time.After(s.cfg.ParkTimeout):
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runTask(t task) {
	if !t.valid() {
		return
	}
	t.run()
}

// trySteal probes up to min(StealAttempts, N-1) peer workers (min(N,4)-1
// with the default StealAttempts of 3), front-popping (FIFO) from the
// first non-empty deque found.
func (s *Scheduler) trySteal(self int) (task, bool) {
	n := len(s.deques)
	if n <= 1 {
		return task{}, false
	}
	attempts := s.cfg.StealAttempts
	if attempts > n-1 {
		attempts = n - 1
	}
	for i := 1; i <= attempts; i++ {
		victim := (self + i) % n
		if t, ok := s.deques[victim].popHead(); ok {
			s.statSteals.Add(1)
			s.stealsInstr.Add(1)
			return t, true
		}
	}
	return task{}, false
}

// Drain waits until the ready list, all per-worker deques, the inject
// ring, the fast-path slots, and all in-flight tasks/coroutines are empty,
// or until timeout elapses. Returns true if drained.
func (s *Scheduler) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.idle() {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Scheduler) idle() bool {
	if s.inFlightTasks.Load() != 0 || s.inFlightCoroutines.Load() != 0 {
		return false
	}
	if !s.ready.empty() || s.inject.len() != 0 {
		return false
	}
	for i := range s.deques {
		if s.deques[i].len() != 0 {
			return false
		}
	}
	return true
}

// Shutdown stops accepting new work, notifies all workers and the timer
// thread, joins them, drains the ready list, and releases the retirement
// set.
func (s *Scheduler) Shutdown() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.timer.shutdown()

	leftover := s.ready.drain()
	s.retireMu.Lock()
	s.reclaimLocked(s.retireSet)
	s.retireSet = nil
	s.reclaimLocked(leftover)
	s.retireMu.Unlock()
}
