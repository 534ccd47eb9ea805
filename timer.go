package kcoro

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kcoro-run/kcoro/metrics"
)

// TimerHandle identifies a scheduled timer callback for later cancellation.
type TimerHandle struct{ id uint64 }

// Valid reports whether h refers to a real (non-zero) timer handle.
func (h TimerHandle) Valid() bool { return h.id != 0 }

type timerItem struct {
	id        uint64
	whenNs    int64
	cb        func()
	cancelled bool
	index     int
}

// timerHeap is a container/heap min-heap keyed by absolute deadline.
type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].whenNs < h[j].whenNs }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type timerThread struct {
	mu          sync.Mutex
	heap        timerHeap
	byID        map[uint64]*timerItem
	nextID      uint64
	wake        chan struct{}
	stop        chan struct{}
	done        chan struct{}
	startOnce   sync.Once
	firedTotal  atomic.Int64
	cancelTotal atomic.Int64

	firedInstr, cancelledInstr metrics.Counter
}

// setMetrics wires fired/cancelled instrument counters; nil counters are
// left unset and skipped at record time.
func (t *timerThread) setMetrics(fired, cancelled metrics.Counter) {
	if fired != nil {
		t.firedInstr = fired
	}
	if cancelled != nil {
		t.cancelledInstr = cancelled
	}
}

func newTimerThread() *timerThread {
	noop := metrics.NewNoopProvider()
	return &timerThread{
		byID:           make(map[uint64]*timerItem),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		firedInstr:     noop.Counter("timer_fired"),
		cancelledInstr: noop.Counter("timer_cancelled"),
	}
}

func (t *timerThread) start() {
	t.startOnce.Do(func() { go t.loop() })
}

func (t *timerThread) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *timerThread) scheduleAt(deadlineNs int64, cb func()) TimerHandle {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	item := &timerItem{id: id, whenNs: deadlineNs, cb: cb}
	heap.Push(&t.heap, item)
	t.byID[id] = item
	t.mu.Unlock()
	t.start()
	t.notify()
	return TimerHandle{id: id}
}

func (t *timerThread) scheduleAfter(delayMs int64, cb func()) TimerHandle {
	return t.scheduleAt(nowNs()+delayMs*int64(time.Millisecond), cb)
}

// cancel marks a pending timer as cancelled. Returns false if the id has
// already fired (or never existed); true if a pending callback was
// suppressed.
func (t *timerThread) cancel(h TimerHandle) bool {
	t.mu.Lock()
	item, ok := t.byID[h.id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	item.cancelled = true
	delete(t.byID, h.id)
	t.mu.Unlock()
	t.cancelTotal.Add(1)
	t.cancelledInstr.Add(1)
	t.notify()
	return true
}

func (t *timerThread) shutdown() {
	select {
	case <-t.done:
		return
	default:
	}
	close(t.stop)
	<-t.done
}

func (t *timerThread) loop() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for len(t.heap) > 0 && t.heap[0].cancelled {
			heap.Pop(&t.heap)
		}
		var wait time.Duration
		hasItem := len(t.heap) > 0
		if hasItem {
			wait = time.Duration(t.heap[0].whenNs - nowNs())
		}
		t.mu.Unlock()

		if !hasItem {
			select {
			case <-t.wake:
			case <-t.stop:
				return
			}
			continue
		}
		if wait <= 0 {
			t.mu.Lock()
			var fire *timerItem
			if len(t.heap) > 0 && !t.heap[0].cancelled {
				fire = heap.Pop(&t.heap).(*timerItem)
				delete(t.byID, fire.id)
			}
			t.mu.Unlock()
			if fire != nil {
				t.firedTotal.Add(1)
				t.firedInstr.Add(1)
				fire.cb()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-t.wake:
			timer.Stop()
		case <-t.stop:
			timer.Stop()
			return
		}
	}
}
