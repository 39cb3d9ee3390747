package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"
)

func runQueue(t *testing.T) (*Queue, context.Context) {
	ctx, cancel := context.WithCancel(dlog.NewTestContext(t, false))
	t.Cleanup(cancel)
	q := NewQueue("test")
	go func() {
		_ = q.Run(ctx)
	}()
	return q, ctx
}

func TestPostRunsTask(t *testing.T) {
	q, _ := runQueue(t)
	var ran atomic.Bool
	q.Post("t", func(context.Context) { ran.Store(true) })
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestIdleCancelPreventsRun(t *testing.T) {
	q, _ := runQueue(t)
	gate := make(chan struct{})
	q.Post("block", func(context.Context) { <-gate })

	var ran atomic.Bool
	tok := q.Idle("cancelled", func(context.Context) { ran.Store(true) })
	tok.Cancel()
	close(gate)

	var sentinel atomic.Bool
	q.Post("sentinel", func(context.Context) { sentinel.Store(true) })
	require.Eventually(t, sentinel.Load, time.Second, time.Millisecond)
	assert.False(t, ran.Load(), "cancelled task must not run")
}

func TestCancelIsIdempotent(t *testing.T) {
	q, _ := runQueue(t)
	tok := q.After(time.Hour, "later", func(context.Context) {})
	tok.Cancel()
	tok.Cancel()
}

func TestAfterFires(t *testing.T) {
	q, _ := runQueue(t)
	var ran atomic.Bool
	q.After(time.Millisecond, "soon", func(context.Context) { ran.Store(true) })
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestAfterCancelStopsTimer(t *testing.T) {
	q, _ := runQueue(t)
	var ran atomic.Bool
	tok := q.After(50*time.Millisecond, "never", func(context.Context) { ran.Store(true) })
	tok.Cancel()
	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestHandleHonorsCancellation(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	var ran bool
	tok, run := NewHandle("h", func(context.Context) { ran = true })
	tok.Cancel()
	run(ctx)
	assert.False(t, ran)

	tok2, run2 := NewHandle("h2", func(context.Context) { ran = true })
	run2(ctx)
	assert.True(t, ran)
	tok2.Cancel() // after the fact, a no-op
}
