package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/message"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"go.uber.org/zap"
)

const maxBroadcastContentLength = 4000

// Broadcaster sends one announcement to every guardian on file.
type Broadcaster struct {
	store      repository.Store
	broadcasts repository.BroadcastRepository
	composer   *message.Composer
	emitter    *emitter
	logger     *zap.Logger
	now        func() time.Time
}

func NewBroadcaster(
	store repository.Store,
	broadcasts repository.BroadcastRepository,
	publisher queue.Publisher,
	composer *message.Composer,
	logger *zap.Logger,
) (*Broadcaster, error) {
	if store == nil || broadcasts == nil {
		return nil, fmt.Errorf("store and broadcast repository are required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if composer == nil {
		composer = message.NewComposer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broadcaster{
		store:      store,
		broadcasts: broadcasts,
		composer:   composer,
		emitter:    &emitter{publisher: publisher, logger: logger},
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (b *Broadcaster) SetMetrics(metrics *observability.Metrics) {
	if b == nil {
		return
	}
	b.emitter.metrics = metrics
}

// Send stores the announcement and enqueues a copy per student with a
// guardian contact. Content may use the same {tokens} as fixed templates.
func (b *Broadcaster) Send(ctx context.Context, title, content string) (*domain.Broadcast, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: broadcast title and content are required", domain.ErrValidation)
	}
	if len(content) > maxBroadcastContentLength {
		return nil, fmt.Errorf("%w: broadcast content exceeds %d characters", domain.ErrValidation, maxBroadcastContentLength)
	}

	broadcast := &domain.Broadcast{Title: title, Content: content}
	if err := b.broadcasts.Create(ctx, broadcast); err != nil {
		return nil, fmt.Errorf("failed to store broadcast: %w", err)
	}

	students, err := b.store.Students().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	now := b.now()
	jobs := make([]domain.NotificationJob, 0, len(students))
	for i := range students {
		if strings.TrimSpace(students[i].Contact) == "" {
			continue
		}
		job, err := b.composer.ComposeBroadcast(title, content, &students[i], now)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	recipients := b.emitter.emit(ctx, jobs...)
	sentAt := now.UTC()
	if err := b.broadcasts.MarkSent(ctx, broadcast.ID, recipients, sentAt); err != nil {
		return nil, fmt.Errorf("failed to mark broadcast sent: %w", err)
	}
	broadcast.Recipients = recipients
	broadcast.SentAt = &sentAt

	b.logger.Info("broadcast enqueued",
		zap.String("broadcastId", broadcast.ID),
		zap.Int("recipients", recipients),
	)
	return broadcast, nil
}
