package reminder

import (
	"context"
	"errors"
	"time"
)

var ErrAwaitTimeout = errors.New("task did not finish within the bounded wait")

// Future resolves when the submitted task has run.
type Future struct {
	done chan struct{}
	err  error
}

// Await blocks until the task finishes, the bounded wait lapses or ctx
// is done. A timeout <= 0 waits indefinitely.
func (f *Future) Await(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		return f.err
	case <-expired:
		return ErrAwaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue runs submitted tasks on a single worker goroutine, in
// submission order. One queue per concern keeps per-account work
// strictly sequential without any extra locking.
type Queue struct {
	tasks chan *queuedTask
}

type queuedTask struct {
	fn     func(ctx context.Context) error
	future *Future
}

// NewQueue starts the worker. It runs until ctx is cancelled; tasks
// still buffered at that point resolve with the context's error.
func NewQueue(ctx context.Context, buffer int) *Queue {
	if buffer < 1 {
		buffer = 1
	}
	q := &Queue{tasks: make(chan *queuedTask, buffer)}
	go q.work(ctx)
	return q
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case task := <-q.tasks:
			if ctx.Err() != nil {
				task.future.err = ctx.Err()
			} else {
				task.future.err = task.fn(ctx)
			}
			close(task.future.done)
		case <-ctx.Done():
			// drain whatever is already buffered
			for {
				select {
				case task := <-q.tasks:
					task.future.err = ctx.Err()
					close(task.future.done)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues fn and returns its future. Blocks while the buffer
// is full, which backpressures producers instead of growing unbounded.
func (q *Queue) Submit(fn func(ctx context.Context) error) *Future {
	task := &queuedTask{
		fn:     fn,
		future: &Future{done: make(chan struct{})},
	}
	q.tasks <- task
	return task.future
}
