package kcoro

// task is an opaque scheduler work item: a plain (fn) pair submitted via
// SpawnTask. Unlike a Coroutine it is delivered exactly once, runs to
// completion without suspension, and never occupies the ready list.
type task struct {
	run func()
}

func (t task) valid() bool { return t.run != nil }
