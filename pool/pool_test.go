package pool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDynamic_RecyclesStackBuffers exercises the pool in the shape it is
// actually used for in this module: recycling []byte stack buffers on
// coroutine retirement instead of allocating a fresh one per spawn.
func TestDynamic_RecyclesStackBuffers(t *testing.T) {
	var created int32
	p := NewDynamic(func() interface{} {
		atomic.AddInt32(&created, 1)
		return make([]byte, 64*1024)
	})

	buf := p.Get().([]byte)
	require.Len(t, buf, 64*1024)
	p.Put(buf)

	_ = p.Get().([]byte)
	require.GreaterOrEqual(t, atomic.LoadInt32(&created), int32(1))
}

func TestFixed_CapsConcurrentCreation(t *testing.T) {
	var created int32
	newFn := func() interface{} {
		atomic.AddInt32(&created, 1)
		return make([]byte, 4096)
	}
	p := NewFixed(2, newFn)

	a := p.Get().([]byte)
	b := p.Get().([]byte)
	require.Len(t, a, 4096)
	require.Len(t, b, 4096)

	got := make(chan interface{}, 1)
	go func() { got <- p.Get() }()

	select {
	case <-got:
		t.Fatalf("third Get should block until a Put happens")
	case <-time.After(50 * time.Millisecond):
	}

	p.Put(a)
	c := <-got
	require.NotNil(t, c)
}
