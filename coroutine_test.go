package kcoro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoroutine_LifecycleReachesFinished(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(2))
	defer s.Shutdown()

	ran := make(chan struct{})
	co := s.SpawnCoroutine(func(ctx context.Context, arg any) {
		require.Equal(t, "hello", arg)
		close(ran)
	}, "hello", 0)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("coroutine never ran")
	}
	select {
	case <-co.Done():
	case <-time.After(time.Second):
		t.Fatal("coroutine never finished")
	}
	require.True(t, co.IsFinished())
	require.Equal(t, Finished, co.State())
}

func TestCoroutine_YieldReturnsControl(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()

	var steps []string
	done := make(chan struct{})
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		steps = append(steps, "a1")
		s.Yield(ctx)
		steps = append(steps, "a2")
		close(done)
	}, nil, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coroutine never completed")
	}
	require.Equal(t, []string{"a1", "a2"}, steps)
}

func TestCoroutine_CurrentCoroutineOutsideCoroutineIsNil(t *testing.T) {
	require.Nil(t, CurrentCoroutine(context.Background()))
	require.Nil(t, CurrentScheduler(context.Background()))
}

func TestCoroutine_SleepMsSuspendsAndResumes(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()

	start := make(chan struct{})
	done := make(chan time.Duration, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		t0 := time.Now()
		close(start)
		s.SleepMs(ctx, 20)
		done <- time.Since(t0)
	}, nil, 0)

	<-start
	select {
	case elapsed := <-done:
		require.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("sleep never resumed")
	}
}

func TestCoroutine_SetNameAndStackBytes(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()

	released := make(chan *Coroutine, 1)
	co := s.SpawnCoroutine(func(ctx context.Context, arg any) {
		released <- CurrentCoroutine(ctx)
	}, nil, 0)
	co.SetName("worker-co")
	require.Equal(t, "worker-co", co.Name())
	require.Greater(t, co.StackBytes(), 0)

	select {
	case got := <-released:
		require.Same(t, co, got)
	case <-time.After(time.Second):
		t.Fatal("coroutine never ran")
	}
}
