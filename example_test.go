package kcoro_test

import (
	"context"
	"fmt"

	"github.com/kcoro-run/kcoro"
)

// ExampleScheduler_SpawnCoroutine shows two coroutines handing a value
// across a rendezvous channel, the basic building block every other
// channel variant and the select engine are layered on top of.
func ExampleScheduler_SpawnCoroutine() {
	s := kcoro.NewSchedulerOptions(kcoro.WithWorkers(2))
	defer s.Shutdown()

	ch := kcoro.NewRendezvousChannel[int](s, "example-rv")
	out := make(chan int, 1)

	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		v, _ := ch.Recv(ctx, -1)
		out <- v * 2
	}, nil, 0)

	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		_ = ch.Send(ctx, 21, -1)
	}, nil, 0)

	fmt.Println(<-out)
	// Output: 42
}

// ExampleSelect shows waiting on one of several channels at once; here
// the buffered channel already has a value queued, so the select
// resolves on its first probe pass without parking.
func ExampleSelect() {
	s := kcoro.NewSchedulerOptions(kcoro.WithWorkers(1))
	defer s.Shutdown()

	ready := kcoro.NewBufferedChannel[string](s, "example-sel", 1)
	empty := kcoro.NewBufferedChannel[string](s, "example-sel-empty", 1)
	out := make(chan string, 1)

	s.SpawnCoroutine(func(ctx context.Context, arg any) {
		_ = ready.Send(ctx, "ready", -1)

		sel := kcoro.NewSelect(s, kcoro.PolicyFirstWins, nil)
		var got string
		kcoro.AddRecv[string](sel, empty, &got)
		kcoro.AddRecv[string](sel, ready, &got)
		_, _ = sel.Wait(ctx, 0)
		out <- got
	}, nil, 0)

	fmt.Println(<-out)
	// Output: ready
}
