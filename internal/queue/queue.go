package queue

import (
	"context"
	"errors"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

const (
	// JobQueueName is the durable broker queue holding notification jobs.
	JobQueueName = "notification.jobs"
	// DeadLetterQueueName receives payloads the consumer could not decode.
	DeadLetterQueueName = "dlq.notification.jobs"
)

var (
	ErrClosed         = errors.New("queue is closed")
	ErrConsumerActive = errors.New("queue already has a consumer")
)

// Publisher enqueues notification jobs. Publish must not wait on delivery.
type Publisher interface {
	Publish(ctx context.Context, job domain.NotificationJob) error
	Close() error
}

// JobHandler processes one consumed job. A non-nil error hands the job back
// to the queue so it is not lost.
type JobHandler func(ctx context.Context, job domain.NotificationJob) error

// Consumer feeds jobs, in enqueue order, to a single handler.
type Consumer interface {
	Consume(ctx context.Context, handler JobHandler) error
	Close() error
}
