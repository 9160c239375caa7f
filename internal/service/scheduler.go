package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"go.uber.org/zap"
)

const defaultSchedulerCheckInterval = time.Minute

// SweepRunner runs the absentee sweep for one day.
type SweepRunner interface {
	Run(ctx context.Context, date time.Time) (*SweepReport, error)
}

var _ SweepRunner = (*Sweeper)(nil)

// DailySweepScheduler runs the sweep once per local day, at the first check
// after the configured time of day.
type DailySweepScheduler struct {
	sweeper  SweepRunner
	logger   *zap.Logger
	location *time.Location
	hour     int
	minute   int
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewDailySweepScheduler parses at as HH:MM in loc.
func NewDailySweepScheduler(
	sweeper SweepRunner,
	at string,
	loc *time.Location,
	interval time.Duration,
	logger *zap.Logger,
) (*DailySweepScheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("%w: sweep time %q must be HH:MM", domain.ErrValidation, at)
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = defaultSchedulerCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DailySweepScheduler{
		sweeper:  sweeper,
		logger:   logger,
		location: loc,
		hour:     parsed.Hour(),
		minute:   parsed.Minute(),
		interval: interval,
		now:      time.Now,
	}, nil
}

func (s *DailySweepScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the sweep when today's slot has passed and it has not run yet.
// It reports whether a sweep ran.
func (s *DailySweepScheduler) tick(ctx context.Context) bool {
	local := s.now().In(s.location)
	due := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.location)
	if local.Before(due) {
		return false
	}

	today := domain.Day(local)
	s.mu.Lock()
	if s.lastRun.Equal(today) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	report, err := s.sweeper.Run(ctx, today)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scheduled absentee sweep failed",
				zap.String("date", today.Format(time.DateOnly)),
				zap.Error(err),
			)
		}
		return false
	}

	s.mu.Lock()
	s.lastRun = today
	s.mu.Unlock()

	s.logger.Info("scheduled absentee sweep completed",
		zap.String("date", today.Format(time.DateOnly)),
		zap.Int("markedAbsent", report.MarkedAbsent),
	)
	return true
}
