package engine

import (
	"context"
	"sync"
)

// Work is a gateway call. It runs off the machine's goroutine and its
// result is fed back through Machine.Handle.
type Work func(ctx context.Context) Event

// Job is Work bound to a context, ready to run.
type Job func() Event

// Dispatcher schedules gateway calls without blocking the caller.
type Dispatcher interface {
	Go(work Work)
}

// WorkQueue collects dispatched work until the host takes it. Hosts with
// their own async runtime turn jobs into tasks; tests and headless
// drivers call Drain.
type WorkQueue struct {
	mu   sync.Mutex
	ctx  context.Context
	work []Work
}

// NewWorkQueue returns a queue whose jobs run with ctx.
func NewWorkQueue(ctx context.Context) *WorkQueue {
	if ctx == nil {
		ctx = context.Background()
	}
	return &WorkQueue{ctx: ctx}
}

// Go queues work.
func (q *WorkQueue) Go(work Work) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.work = append(q.work, work)
}

// Len returns the number of queued calls.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.work)
}

// Take removes and returns everything queued so far.
func (q *WorkQueue) Take() []Job {
	q.mu.Lock()
	work := q.work
	q.work = nil
	ctx := q.ctx
	q.mu.Unlock()

	jobs := make([]Job, len(work))
	for i, w := range work {
		jobs[i] = func() Event { return w(ctx) }
	}
	return jobs
}

// Drain runs queued jobs in order on the calling goroutine and hands each
// result to m, including work those results queue in turn. It returns the
// number of jobs run.
func (q *WorkQueue) Drain(m *Machine) int {
	n := 0
	for {
		jobs := q.Take()
		if len(jobs) == 0 {
			return n
		}
		for _, job := range jobs {
			m.Handle(job())
			n++
		}
	}
}
