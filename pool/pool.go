// Package pool provides generic object recycling used to implement the
// runtime's retirement policy for coroutine stack buffers, avoiding
// per-spawn allocation churn.
package pool

// Pool is an interface that defines methods on a pool of recyclable objects.
type Pool interface {
	// Get returns an object from the pool, creating one if none is available.
	Get() interface{}

	// Put returns an object to the pool for later reuse.
	Put(interface{})
}
