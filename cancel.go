package kcoro

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token is a hierarchical cancellation token. Waiters block on a channel
// closed exactly once by Trigger — the idiomatic Go broadcast primitive.
type Token struct {
	canceled atomic.Bool
	done     chan struct{}

	mu       sync.Mutex
	children []*Token
	parent   *Token
}

// NewToken creates a new, unattached cancellation token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// NewChildToken creates a token attached to parent. If parent is already
// canceled, the child inherits cancellation immediately.
func NewChildToken(parent *Token) *Token {
	t := NewToken()
	if parent == nil {
		return t
	}
	t.parent = parent

	parent.mu.Lock()
	if parent.canceled.Load() {
		parent.mu.Unlock()
		t.Trigger()
		return t
	}
	parent.children = append(parent.children, t)
	parent.mu.Unlock()
	return t
}

// Trigger cancels the token and, depth-first, every descendant. Triggering
// an already-canceled token is a no-op.
func (t *Token) Trigger() {
	if !t.canceled.CompareAndSwap(false, true) {
		return
	}
	close(t.done)

	t.mu.Lock()
	children := t.children
	t.children = nil
	t.mu.Unlock()
	for _, c := range children {
		c.Trigger()
	}
}

// IsSet reports whether the token has been canceled. Wait-free with
// respect to Trigger.
func (t *Token) IsSet() bool { return t.canceled.Load() }

// Wait blocks until the token is canceled or timeoutMs elapses
// (negative = forever, 0 = poll once). Returns true if canceled, false on
// timeout.
func (t *Token) Wait(timeoutMs int64) bool {
	if timeoutMs == 0 {
		return t.IsSet()
	}
	if timeoutMs < 0 {
		<-t.done
		return true
	}
	select {
	case <-t.done:
		return true
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return false
	}
}

// detach removes t from its parent's child list (mirrors
// CancellationToken::detach_from_parent). Safe to call multiple times.
func (t *Token) detach() {
	p := t.parent
	if p == nil {
		return
	}
	p.mu.Lock()
	for i, c := range p.children {
		if c == t {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	t.parent = nil
}

// Close detaches the token from its parent. Hosts that create scoped child
// tokens should call Close when the scope ends to avoid growing the
// parent's child list unboundedly.
func (t *Token) Close() { t.detach() }
