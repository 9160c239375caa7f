package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/ratelimit"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"github.com/kursadbilgin/attendance-notifier/internal/session"
	"go.uber.org/zap"
)

const (
	defaultDispatchAccount = "default"
	baseCapacityDelay      = 5 * time.Second
	maxCapacityDelay       = 5 * time.Minute
)

// Dispatcher delivers one message through the channel session and reports
// how many session-level attempts it took.
type Dispatcher interface {
	Dispatch(ctx context.Context, contact, message string) (int, error)
}

var _ Dispatcher = (*session.Manager)(nil)

type depthReporter interface {
	Len() int
}

// WorkerService is the single consumer of the job queue. It dispatches one
// job at a time and never re-queues a job that failed terminally.
type WorkerService struct {
	consumer   queue.Consumer
	dispatcher Dispatcher
	limiter    ratelimit.RateLimiter
	classifier session.OutcomeClassifier
	failures   FailureLog
	outcomes   repository.OutcomeRepository
	account    string
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewWorkerService(
	consumer queue.Consumer,
	dispatcher Dispatcher,
	limiter ratelimit.RateLimiter,
	classifier session.OutcomeClassifier,
	failureLog FailureLog,
	outcomes repository.OutcomeRepository,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil || dispatcher == nil {
		return nil, fmt.Errorf("consumer and dispatcher are required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if failureLog == nil {
		return nil, fmt.Errorf("failure log is required")
	}
	if classifier == nil {
		classifier = session.NewSignatureClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:   consumer,
		dispatcher: dispatcher,
		limiter:    limiter,
		classifier: classifier,
		failures:   failureLog,
		outcomes:   outcomes,
		account:    defaultDispatchAccount,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetAccount names the channel account dispatches are paced under.
func (s *WorkerService) SetAccount(account string) {
	if s == nil || account == "" {
		return
	}
	s.account = account
}

// Start consumes jobs until ctx is cancelled.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info("worker started", zap.String("account", s.account))
	err := s.consumer.Consume(ctx, s.processJob)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("worker stopped with error", zap.Error(err))
		return err
	}
	s.logger.Info("worker stopped")
	return nil
}

// processJob returns an error only when the job was not dispatched, so the
// queue keeps it.
func (s *WorkerService) processJob(ctx context.Context, job domain.NotificationJob) error {
	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()
	if q, ok := s.consumer.(depthReporter); ok {
		s.metrics.SetQueueDepth(q.Len())
	}

	logger := s.logger.With(observability.JobFields(job)...)

	for capacityAttempt := 0; ; capacityAttempt++ {
		if err := s.limiter.Wait(ctx, s.account); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		logger.Debug("dispatching job", zap.String("state", domain.JobDispatching.String()))
		start := s.now()
		attempts, err := s.dispatcher.Dispatch(ctx, job.Contact, job.Body)
		elapsed := s.now().Sub(start)

		if errors.Is(err, session.ErrNoCapacity) {
			delay := capacityDelay(capacityAttempt)
			logger.Warn("channel session unavailable, holding job",
				zap.Duration("retryIn", delay),
				zap.Error(err),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		outcome := s.settle(job, attempts, err, logger)
		s.metrics.ObserveDispatchDuration(outcome.Status.String(), elapsed)
		s.metrics.IncDelivery(job.Event.String(), outcome.Status.String())
		if s.outcomes != nil {
			if err := s.outcomes.Create(ctx, &outcome); err != nil {
				logger.Error("failed to store delivery outcome", zap.Error(err))
			}
		}
		return nil
	}
}

// settle turns a dispatch result into the job's terminal outcome and records
// failures against the contact.
func (s *WorkerService) settle(job domain.NotificationJob, attempts int, dispatchErr error, logger *zap.Logger) domain.DeliveryOutcome {
	outcome := domain.DeliveryOutcome{
		JobID:       job.ID,
		StudentID:   job.StudentID,
		Contact:     job.Contact,
		Event:       job.Event,
		Status:      domain.JobDelivered,
		Attempts:    attempts,
		CompletedAt: s.now().UTC(),
	}
	if dispatchErr == nil {
		logger.Info("notification delivered", zap.Int("attempts", attempts))
		return outcome
	}

	reason, detail := s.classifier.Classify(dispatchErr)
	outcome.Status = domain.JobFailed
	outcome.Reason = reason
	outcome.Detail = detail
	s.metrics.IncDeliveryFailed(reason.String())

	logger.Warn("notification delivery failed",
		zap.String("reason", reason.String()),
		zap.Int("attempts", attempts),
		zap.Error(dispatchErr),
	)

	if _, err := s.failures.Record(failures.Entry{
		Contact: job.Contact,
		Event:   job.Event,
		Reason:  reason,
		Detail:  detail,
		At:      outcome.CompletedAt,
	}); err != nil {
		logger.Error("failed to record delivery failure", zap.Error(err))
	}
	return outcome
}

func capacityDelay(attempt int) time.Duration {
	delay := baseCapacityDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxCapacityDelay {
			return maxCapacityDelay
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
