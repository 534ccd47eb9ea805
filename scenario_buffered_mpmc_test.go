package kcoro

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Two producers and two consumers hammering a single buffered channel,
// grounded on a channel-stress-style concurrent harness: the channel must
// neither drop nor duplicate a value under contention, and must never
// deadlock once every producer has finished and closed it.
func TestScenario_BufferedMPMCStress(t *testing.T) {
	const perProducer = 100_000
	const producers = 2
	const consumers = 2
	const total = perProducer * producers

	s := NewSchedulerOptions(WithWorkers(4))
	defer s.Shutdown()

	ch := NewBufferedChannel[int](s, "mpmc-stress", 128)

	var produced atomic.Int64
	producersDone := make(chan struct{}, producers)
	for p := 0; p < producers; p++ {
		s.SpawnCoroutine(func(ctx context.Context, arg any) {
			for i := 0; i < perProducer; i++ {
				require.NoError(t, ch.Send(ctx, i, -1))
				produced.Add(1)
			}
			producersDone <- struct{}{}
		}, nil, 0)
	}

	var consumed atomic.Int64
	consumersDone := make(chan struct{}, consumers)
	for c := 0; c < consumers; c++ {
		s.SpawnCoroutine(func(ctx context.Context, arg any) {
			for {
				_, err := ch.Recv(ctx, -1)
				if err != nil {
					require.ErrorIs(t, err, ErrClosed)
					consumersDone <- struct{}{}
					return
				}
				consumed.Add(1)
			}
		}, nil, 0)
	}

	for i := 0; i < producers; i++ {
		select {
		case <-producersDone:
		case <-time.After(30 * time.Second):
			t.Fatal("a producer never finished")
		}
	}
	require.NoError(t, ch.Close())

	for i := 0; i < consumers; i++ {
		select {
		case <-consumersDone:
		case <-time.After(30 * time.Second):
			t.Fatal("a consumer never observed close")
		}
	}

	require.EqualValues(t, total, produced.Load())
	require.EqualValues(t, total, consumed.Load())
}
