package kcoro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnbounded_SendNeverBlocksRegardlessOfVolume(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	ch := NewUnboundedChannel[int](s, "unb")

	done := make(chan struct{})
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		for i := 0; i < 10_000; i++ {
			require.NoError(t, ch.Send(ctx, i, 0))
		}
		close(done)
	}, nil, 0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked unexpectedly")
	}
	require.Equal(t, 10_000, ch.Size())
}

func TestUnbounded_FIFOOrderPreserved(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	ch := NewUnboundedChannel[int](s, "unb-fifo")

	result := make(chan []int, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		for i := 1; i <= 5; i++ {
			require.NoError(t, ch.Send(ctx, i, -1))
		}
		var got []int
		for i := 0; i < 5; i++ {
			v, err := ch.Recv(ctx, -1)
			require.NoError(t, err)
			got = append(got, v)
		}
		result <- got
	}, nil, 0)

	select {
	case got := <-result:
		require.Equal(t, []int{1, 2, 3, 4, 5}, got)
	case <-time.After(time.Second):
		t.Fatal("never completed")
	}
}

func TestUnbounded_RecvOnEmptyNonBlockingReturnsWouldBlock(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	ch := NewUnboundedChannel[int](s, "unb-empty")

	result := make(chan error, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		_, err := ch.Recv(ctx, 0)
		result <- err
	}, nil, 0)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrWouldBlock)
	case <-time.After(time.Second):
		t.Fatal("recv never returned")
	}
}

func TestUnbounded_DrainOnCloseThenEPIPE(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(1))
	defer s.Shutdown()
	ch := NewUnboundedChannel[int](s, "unb-drain")

	result := make(chan [2]error, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		require.NoError(t, ch.Send(ctx, 1, -1))
		require.NoError(t, ch.Close())

		_, err1 := ch.Recv(ctx, -1)
		_, err2 := ch.Recv(ctx, -1)
		result <- [2]error{err1, err2}
	}, nil, 0)

	select {
	case errs := <-result:
		require.NoError(t, errs[0])
		require.ErrorIs(t, errs[1], ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("never completed")
	}
}

func TestUnbounded_ParkedRecvWakesOnSend(t *testing.T) {
	s := NewSchedulerOptions(WithWorkers(2))
	defer s.Shutdown()
	ch := NewUnboundedChannel[int](s, "unb-wake")

	got := make(chan int, 1)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		v, err := ch.Recv(ctx, -1)
		require.NoError(t, err)
		got <- v
	}, nil, 0)

	time.Sleep(10 * time.Millisecond)
	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		require.NoError(t, ch.Send(ctx, 99, -1))
	}, nil, 0)

	select {
	case v := <-got:
		require.Equal(t, 99, v)
	case <-time.After(time.Second):
		t.Fatal("parked recv never woke")
	}
}
