package kcoro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToken_TriggerIsIdempotent(t *testing.T) {
	tok := NewToken()
	require.False(t, tok.IsSet())
	tok.Trigger()
	require.True(t, tok.IsSet())
	tok.Trigger() // no-op, must not panic or double-close
	require.True(t, tok.IsSet())
}

func TestToken_ChildInheritsParentCancellation(t *testing.T) {
	parent := NewToken()
	child := NewChildToken(parent)
	require.False(t, child.IsSet())

	parent.Trigger()
	require.True(t, parent.IsSet())
	require.True(t, child.IsSet())
}

func TestToken_AlreadyCanceledParentCancelsNewChildImmediately(t *testing.T) {
	parent := NewToken()
	parent.Trigger()

	child := NewChildToken(parent)
	require.True(t, child.IsSet())
}

func TestToken_WaitTimesOutWhenNeverTriggered(t *testing.T) {
	tok := NewToken()
	require.False(t, tok.Wait(20))
}

func TestToken_WaitReturnsOnTrigger(t *testing.T) {
	tok := NewToken()
	go func() {
		time.Sleep(5 * time.Millisecond)
		tok.Trigger()
	}()
	require.True(t, tok.Wait(-1))
}

func TestToken_DetachRemovesFromParentChildList(t *testing.T) {
	parent := NewToken()
	child := NewChildToken(parent)
	child.Close()

	parent.Trigger()
	require.False(t, child.IsSet(), "detached child must not observe parent's later trigger")
}

func TestToken_TriggerPropagatesDepthFirstToGrandchildren(t *testing.T) {
	root := NewToken()
	mid := NewChildToken(root)
	leaf := NewChildToken(mid)

	root.Trigger()
	require.True(t, mid.IsSet())
	require.True(t, leaf.IsSet())
}
