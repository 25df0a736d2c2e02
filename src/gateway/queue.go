package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"personal/botkit/src/metrics"
)

// SideEffect is work started because of a gateway event, such as running a
// handler and posting its reply.
type SideEffect struct {
	Name    string
	Started time.Time

	done chan struct{}
	once sync.Once
	err  error
}

func NewSideEffect(name string) *SideEffect {
	return &SideEffect{Name: name, Started: time.Now(), done: make(chan struct{})}
}

// Complete marks the side effect finished. Only the first call counts.
func (e *SideEffect) Complete(err error) {
	e.once.Do(func() {
		e.err = err
		close(e.done)
	})
}

func (e *SideEffect) Done() <-chan struct{} { return e.done }

// Finished reports whether Complete has been called.
func (e *SideEffect) Finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Err returns the result once finished.
func (e *SideEffect) Err() error {
	<-e.done
	return e.err
}

// Queue tracks side effects in the order they were started.
//
// Side effects are awaited strictly from the front. A slow side effect holds
// back completion of everything queued behind it even if those are already
// done; that keeps the effects of one event from being observed after the
// effects of a later one.
type Queue struct {
	ctx context.Context

	mu    sync.Mutex
	items []*SideEffect
}

// NewQueue returns a queue whose side effects run under ctx with its
// cancellation removed: they finish even when the session stops.
func NewQueue(ctx context.Context) *Queue {
	return &Queue{ctx: context.WithoutCancel(ctx)}
}

// Go starts fn in a goroutine and enqueues it. A panic in fn completes the
// side effect with an error instead of crashing the process.
func (q *Queue) Go(name string, fn func(ctx context.Context) error) *SideEffect {
	e := NewSideEffect(name)
	q.Enqueue(e)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("side effect %s panicked: %v", name, r)
			}
			e.Complete(err)
		}()
		err = fn(q.ctx)
	}()
	return e
}

// Enqueue appends an already running side effect.
func (q *Queue) Enqueue(e *SideEffect) {
	q.mu.Lock()
	q.items = append(q.items, e)
	n := len(q.items)
	q.mu.Unlock()
	metrics.SideEffectsPending.Set(float64(n))
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// DrainCompletedPrefix removes finished side effects from the front and
// stops at the first one still running. It returns how many were removed.
func (q *Queue) DrainCompletedPrefix() int {
	q.mu.Lock()
	n := 0
	for n < len(q.items) && q.items[n].Finished() {
		n++
	}
	q.items = q.items[n:]
	left := len(q.items)
	q.mu.Unlock()

	if n > 0 {
		metrics.SideEffectsPending.Set(float64(left))
	}
	return n
}

// AwaitAllPendingInOrder waits for each queued side effect in enqueue order
// and returns them in that order. When ctx ends first it returns the side
// effects completed so far with ctx's cause; the rest stay queued.
func (q *Queue) AwaitAllPendingInOrder(ctx context.Context) ([]*SideEffect, error) {
	var completed []*SideEffect
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			metrics.SideEffectsPending.Set(0)
			return completed, nil
		}
		head := q.items[0]
		q.mu.Unlock()

		select {
		case <-head.Done():
		case <-ctx.Done():
			return completed, context.Cause(ctx)
		}

		q.mu.Lock()
		if len(q.items) > 0 && q.items[0] == head {
			q.items = q.items[1:]
		}
		q.mu.Unlock()
		completed = append(completed, head)
	}
}
