// internal/reconcile/commit.go - bounded sidecar commit queue
package reconcile

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned when enqueueing on a closed queue
var ErrQueueClosed = errors.New("commit queue is closed")

// commitJob is one queued sidecar write
type commitJob struct {
	fn   func() error
	done func(error)
}

// CommitQueue runs sidecar writes on a fixed worker pool. Enqueue blocks
// while the queue is full, which holds back the producing pass.
type CommitQueue struct {
	jobs      chan *commitJob
	closed    chan struct{}
	closeOnce sync.Once
	sending   sync.RWMutex
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewCommitQueue creates a queue holding up to capacity waiting jobs
func NewCommitQueue(capacity, workers int, logger *zap.Logger) *CommitQueue {
	if capacity < 0 {
		capacity = 0
	}
	if workers < 1 {
		workers = 1
	}
	q := &CommitQueue{
		jobs:   make(chan *commitJob, capacity),
		closed: make(chan struct{}),
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

// worker drains jobs until the queue is closed and empty
func (q *CommitQueue) worker(id int) {
	defer q.wg.Done()

	for job := range q.jobs {
		err := job.fn()
		if job.done != nil {
			job.done(err)
		}

		q.logger.Debug("commit processed",
			zap.Int("worker", id),
			zap.Error(err))
	}
}

// Enqueue schedules fn and returns once it is queued. done, when non-nil,
// is called with fn's result on a worker goroutine. If Enqueue returns an
// error, neither fn nor done runs.
func (q *CommitQueue) Enqueue(ctx context.Context, fn func() error, done func(error)) error {
	q.sending.RLock()
	defer q.sending.RUnlock()

	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- &commitJob{fn: fn, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return ErrQueueClosed
	}
}

// Submit enqueues fn and waits for its result
func (q *CommitQueue) Submit(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := q.Enqueue(ctx, fn, func(err error) { result <- err }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, runs every job already queued and waits for
// the workers to exit.
func (q *CommitQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		// wait out blocked senders, which observe closed and return
		q.sending.Lock()
		close(q.jobs)
		q.sending.Unlock()
	})
	q.wg.Wait()
}
