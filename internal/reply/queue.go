package reply

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Queue is the global single-flight FIFO that serialises every agent
// invocation: external agent CLIs are memory-heavy, and overlapping runs
// cause OOM and scrambled session-shared state. Built on
// golang.org/x/sync/semaphore, whose weighted acquire already serves
// waiters in FIFO order, so a weight-1 semaphore is exactly the "at most
// one runFn executing" guarantee §4.E asks for.
type Queue struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	waiting int // callers inside Enqueue: the running one plus those queued
}

func NewQueue() *Queue {
	return &Queue{sem: semaphore.NewWeighted(1)}
}

// Enqueue runs runFn once it is this caller's turn. onWait, if non-nil, is
// invoked exactly once — after the wait completes, before runFn starts —
// when this caller had to wait behind at least one other invocation.
func (q *Queue) Enqueue(ctx context.Context, onWait func(waitMs int64, ahead int), runFn func(context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	ahead := q.waiting
	q.waiting++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
	}()

	start := time.Now()
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer q.sem.Release(1)

	if ahead > 0 && onWait != nil {
		onWait(time.Since(start).Milliseconds(), ahead)
	}
	return runFn(ctx)
}

// Ahead reports how many callers a new caller would find ahead of it: the
// one currently running, if any, plus those waiting for their turn.
func (q *Queue) Ahead() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}
