// Package task provides the cooperative single-threaded run queue that all
// policy decisions execute on. Long-running work happens elsewhere; its
// completion hops back onto the queue with Post.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
)

// Fn is a unit of work. It runs to completion on the queue goroutine and
// must not block.
type Fn func(context.Context)

// Scheduler is what the policy engine sees. The production implementation
// is Queue; tests substitute a synchronous fake.
type Scheduler interface {
	// Post enqueues fn to run as soon as the queue gets to it.
	Post(name string, fn Fn)

	// Idle enqueues fn behind the tasks already queued. The token cancels
	// it before it fires.
	Idle(name string, fn Fn) *Token

	// After runs fn on the queue once d has elapsed.
	After(d time.Duration, name string, fn Fn) *Token
}

type item struct {
	mu        sync.Mutex
	name      string
	fn        Fn
	timer     *time.Timer
	cancelled bool
}

// take claims the item for execution, returning nil if it was cancelled.
// The captured fn is released either way, exactly once.
func (it *item) take() Fn {
	it.mu.Lock()
	defer it.mu.Unlock()
	fn := it.fn
	it.fn = nil
	if it.cancelled {
		return nil
	}
	return fn
}

// Token cancels a scheduled task. Cancelling after the task ran, or twice,
// is a no-op.
type Token struct {
	it *item
}

func (t *Token) Cancel() {
	if t == nil || t.it == nil {
		return
	}
	it := t.it
	t.it = nil
	it.mu.Lock()
	it.cancelled = true
	it.fn = nil
	timer := it.timer
	it.timer = nil
	it.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

// NewHandle pairs a Token with a runner honoring its cancellation. It is
// the building block for alternative Scheduler implementations, such as
// the synchronous queues used in tests.
func NewHandle(name string, fn Fn) (*Token, Fn) {
	it := &item{name: name, fn: fn}
	run := func(ctx context.Context) {
		if f := it.take(); f != nil {
			f(ctx)
		}
	}
	return &Token{it: it}, run
}

// Queue drains tasks on a single goroutine started by Run.
type Queue struct {
	name string
	ch   chan *item
}

func NewQueue(name string) *Queue {
	return &Queue{name: name, ch: make(chan *item, 256)}
}

// Run drains the queue until the context is done. Meant to be handed to a
// dgroup goroutine.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case it := <-q.ch:
			if fn := it.take(); fn != nil {
				fn(ctx)
			}
		}
	}
}

func (q *Queue) enqueue(ctx context.Context, it *item) {
	select {
	case q.ch <- it:
	default:
		// The queue is saturated; drop rather than deadlock the loop.
		dlog.Warnf(ctx, "task queue %s full, dropping %s", q.name, it.name)
	}
}

func (q *Queue) Post(name string, fn Fn) {
	q.enqueue(context.Background(), &item{name: name, fn: fn})
}

func (q *Queue) Idle(name string, fn Fn) *Token {
	it := &item{name: name, fn: fn}
	q.enqueue(context.Background(), it)
	return &Token{it: it}
}

func (q *Queue) After(d time.Duration, name string, fn Fn) *Token {
	it := &item{name: name, fn: fn}
	it.timer = time.AfterFunc(d, func() {
		q.enqueue(context.Background(), it)
	})
	return &Token{it: it}
}
