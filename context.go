package kcoro

import "context"

// ctxKey is an unexported type so the coroutine context key cannot collide
// with keys from other packages.
type ctxKey struct{}

var currentCoroutineKey ctxKey

// withCoroutine returns a context carrying co as the "current coroutine".
// This is the idiomatic Go substitute for a thread-local "current
// coroutine" pointer: rather than a per-OS-thread global, the coroutine
// reference travels on the context.Context every blocking call already
// takes.
func withCoroutine(ctx context.Context, co *Coroutine) context.Context {
	return context.WithValue(ctx, currentCoroutineKey, co)
}

// CurrentCoroutine returns the coroutine running on ctx's call path, or nil
// if ctx was not derived from a coroutine's entry context (e.g. a plain
// Task, or a call made from outside the runtime entirely).
func CurrentCoroutine(ctx context.Context) *Coroutine {
	co, _ := ctx.Value(currentCoroutineKey).(*Coroutine)
	return co
}

// CurrentScheduler returns the Scheduler owning the coroutine running on
// ctx's call path, or nil outside a coroutine.
func CurrentScheduler(ctx context.Context) *Scheduler {
	if co := CurrentCoroutine(ctx); co != nil {
		return co.scheduler
	}
	return nil
}
