package service

import (
	"context"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"go.uber.org/zap"
)

// emitter hands composed jobs to the delivery queue. Producers never see
// delivery failures, so a failed publish is logged and counted only.
type emitter struct {
	publisher queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func (e *emitter) emit(ctx context.Context, jobs ...domain.NotificationJob) int {
	published := 0
	for _, job := range jobs {
		if err := e.publisher.Publish(ctx, job); err != nil {
			fields := append(observability.JobFields(job), zap.Error(err))
			observability.WithContextLogger(e.logger, ctx).Error("failed to enqueue notification job", fields...)
			continue
		}
		e.metrics.IncJobEnqueued(job.Event.String())
		published++
	}
	return published
}
