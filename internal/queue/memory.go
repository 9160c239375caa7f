package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

const handlerRetryDelay = 500 * time.Millisecond

var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Consumer  = (*MemoryQueue)(nil)
)

// MemoryQueue is an unbounded in-process FIFO. Any number of goroutines may
// Publish; exactly one may Consume.
type MemoryQueue struct {
	mu        sync.Mutex
	jobs      []domain.NotificationJob
	consuming bool
	closed    bool

	notify chan struct{}
	done   chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish appends job and returns immediately.
func (q *MemoryQueue) Publish(ctx context.Context, job domain.NotificationJob) error {
	if err := validateJob(job); err != nil {
		return fmt.Errorf("invalid notification job: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Consume hands jobs to handler one at a time until ctx is cancelled or the
// queue is closed. A job whose handler fails goes back to the head.
func (q *MemoryQueue) Consume(ctx context.Context, handler JobHandler) error {
	if handler == nil {
		return fmt.Errorf("job handler is required")
	}

	q.mu.Lock()
	if q.consuming {
		q.mu.Unlock()
		return ErrConsumerActive
	}
	q.consuming = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.consuming = false
		q.mu.Unlock()
	}()

	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.done:
				return nil
			case <-q.notify:
				continue
			}
		}

		if err := handler(ctx, job); err != nil {
			q.pushFront(job)
			select {
			case <-ctx.Done():
				return nil
			case <-q.done:
				return nil
			case <-time.After(handlerRetryDelay):
			}
		}
	}
}

// Len reports the number of jobs waiting to be consumed.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *MemoryQueue) pop() (domain.NotificationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return domain.NotificationJob{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = domain.NotificationJob{}
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *MemoryQueue) pushFront(job domain.NotificationJob) {
	q.mu.Lock()
	q.jobs = append([]domain.NotificationJob{job}, q.jobs...)
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
