package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/message"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"go.uber.org/zap"
)

const defaultLookbackDays = 2

// SweepReport summarizes one absentee sweep.
type SweepReport struct {
	Date                time.Time               `json:"date"`
	MarkedAbsent        int                     `json:"markedAbsent"`
	Skipped             int                     `json:"skipped"`
	JobsEnqueued        int                     `json:"jobsEnqueued"`
	Tiers               map[domain.EventTag]int `json:"tiers"`
	LowAttendanceAlerts int                     `json:"lowAttendanceAlerts"`
	HighRiskAlerts      int                     `json:"highRiskAlerts"`
	Failed              int                     `json:"failed"`
}

// absenceTier picks the absence message for a newly absent student. The
// first matching rule wins.
func absenceTier(consecutive, totalThisMonth int) domain.EventTag {
	switch {
	case totalThisMonth == 1 && consecutive == 1:
		return domain.EventAbsenceFirst
	case consecutive == 2:
		return domain.EventAbsenceSecond
	case consecutive >= 3:
		return domain.EventAbsenceUrgent
	case consecutive == 1 && totalThisMonth > 1:
		return domain.EventAbsenceRecurred
	default:
		return domain.EventAbsenceGeneric
	}
}

// Sweeper marks every student without a record for the day absent and
// notifies their guardians. Running it twice for one day is a no-op.
type Sweeper struct {
	store        repository.Store
	risk         *RiskService
	composer     *message.Composer
	emitter      *emitter
	logger       *zap.Logger
	metrics      *observability.Metrics
	lookbackDays int
	now          func() time.Time
}

func NewSweeper(
	store repository.Store,
	risk *RiskService,
	publisher queue.Publisher,
	composer *message.Composer,
	lookbackDays int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if risk == nil {
		return nil, fmt.Errorf("risk service is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if composer == nil {
		composer = message.NewComposer("")
	}
	if lookbackDays < 1 {
		lookbackDays = defaultLookbackDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		store:        store,
		risk:         risk,
		composer:     composer,
		emitter:      &emitter{publisher: publisher, logger: logger},
		logger:       logger,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
	s.emitter.metrics = metrics
}

type lowAttendanceWindow struct {
	dates     map[time.Time]struct{}
	oldest    time.Time
	size      int
	threshold float64
}

// Run sweeps one day. A student that fails is rolled back and logged while the
// batch continues. The returned error makes the caller retry, and a retry
// only reaches students that still have no record.
func (s *Sweeper) Run(ctx context.Context, date time.Time) (*SweepReport, error) {
	day := domain.Day(date)
	logger := observability.WithContextLogger(s.logger, ctx)

	settings, err := loadSettings(ctx, s.store, "configure the low attendance window before sweeping")
	if err != nil {
		return nil, err
	}

	window, err := s.lowAttendanceWindow(ctx, settings, day)
	if err != nil {
		return nil, err
	}

	students, err := s.store.Students().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	recorded, err := s.store.Attendance().StudentIDsWithRecord(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded students: %w", err)
	}
	seen := make(map[string]struct{}, len(recorded))
	for _, id := range recorded {
		seen[id] = struct{}{}
	}

	report := &SweepReport{Date: day, Tiers: make(map[domain.EventTag]int)}
	var firstErr error
	for i := range students {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		student := &students[i]
		if _, ok := seen[student.ID]; ok {
			report.Skipped++
			continue
		}

		plan, err := s.markAbsent(ctx, student, day, window)
		if errors.Is(err, domain.ErrDuplicateRecord) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Failed++
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("failed to sweep student",
				zap.String("studentId", student.ID),
				zap.String("date", day.Format(time.DateOnly)),
				zap.Error(err),
			)
			continue
		}

		report.MarkedAbsent++
		report.Tiers[plan.tier]++
		s.metrics.IncSweepAbsence(plan.tier.String())
		if plan.lowAttendance {
			report.LowAttendanceAlerts++
		}
		if plan.highRisk {
			report.HighRiskAlerts++
		}
		report.JobsEnqueued += s.emitter.emit(ctx, plan.jobs...)
	}

	logger.Info("absentee sweep finished",
		zap.String("date", day.Format(time.DateOnly)),
		zap.Int("markedAbsent", report.MarkedAbsent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("jobsEnqueued", report.JobsEnqueued),
	)
	if firstErr != nil {
		return report, fmt.Errorf("absentee sweep failed for %d of %d students: %w", report.Failed, len(students), firstErr)
	}
	return report, nil
}

// absenteePlan is what one newly absent student produces. Counters and jobs
// are applied only after the absent row commits.
type absenteePlan struct {
	jobs          []domain.NotificationJob
	tier          domain.EventTag
	lowAttendance bool
	highRisk      bool
}

// markAbsent writes the absent row and plans its notifications in one
// transaction, so a planning failure leaves no row behind.
func (s *Sweeper) markAbsent(
	ctx context.Context,
	student *domain.Student,
	day time.Time,
	window *lowAttendanceWindow,
) (*absenteePlan, error) {
	var plan *absenteePlan
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		err := tx.Attendance().Create(ctx, &domain.AttendanceRecord{
			StudentID: student.ID,
			Date:      day,
			Absent:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to mark %s absent: %w", student.ID, err)
		}
		plan, err = s.absenteeJobs(ctx, tx, student, day, window)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// lowAttendanceWindow returns the most recent N school days before day, or
// nil when fewer than N exist yet.
func (s *Sweeper) lowAttendanceWindow(ctx context.Context, settings *domain.Settings, day time.Time) (*lowAttendanceWindow, error) {
	n := settings.LowAttendanceWindowDays
	if n <= 0 {
		return nil, nil
	}
	dates, err := s.store.Attendance().ActiveDates(ctx, day, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent school days: %w", err)
	}
	if len(dates) < n {
		return nil, nil
	}

	window := &lowAttendanceWindow{
		dates:     make(map[time.Time]struct{}, len(dates)),
		oldest:    day,
		size:      n,
		threshold: settings.LowAttendanceThresholdPercent,
	}
	for _, d := range dates {
		d = domain.Day(d)
		window.dates[d] = struct{}{}
		if d.Before(window.oldest) {
			window.oldest = d
		}
	}
	return window, nil
}

func (s *Sweeper) absenteeJobs(
	ctx context.Context,
	tx repository.Store,
	student *domain.Student,
	day time.Time,
	window *lowAttendanceWindow,
) (*absenteePlan, error) {
	monthStart := domain.MonthStart(day)
	from := minTime(monthStart, day.AddDate(0, 0, -s.lookbackDays))
	if window != nil {
		from = minTime(from, window.oldest)
	}

	records, err := tx.Attendance().ListByStudent(ctx, student.ID, from, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance for %s: %w", student.ID, err)
	}
	byDay := make(map[time.Time]domain.AttendanceRecord, len(records))
	total := 0
	for _, r := range records {
		d := domain.Day(r.Date)
		byDay[d] = r
		if r.Absent && !d.Before(monthStart) {
			total++
		}
	}

	consecutive := 1
	for i := 1; i <= s.lookbackDays; i++ {
		r, ok := byDay[day.AddDate(0, 0, -i)]
		if !ok || !r.Absent {
			break
		}
		consecutive++
	}

	now := s.now()
	plan := &absenteePlan{
		tier: absenceTier(consecutive, total),
		jobs: make([]domain.NotificationJob, 0, 2),
	}
	job, err := s.composer.Compose(plan.tier, student, now, message.Vars{
		"date":             day.Format(time.DateOnly),
		"consecutive_days": strconv.Itoa(consecutive),
	})
	if err != nil {
		return nil, err
	}
	plan.jobs = append(plan.jobs, job)

	if window != nil && total > 1 {
		present := 0
		for d := range window.dates {
			if r, ok := byDay[d]; ok && r.Present() {
				present++
			}
		}
		rate := float64(present) / float64(window.size) * 100
		if rate < window.threshold {
			job, err := s.composer.Compose(domain.EventLowAttendance, student, now, message.Vars{
				"window_days": strconv.Itoa(window.size),
				"rate":        message.FormatRate(rate),
			})
			if err != nil {
				return nil, err
			}
			plan.lowAttendance = true
			plan.jobs = append(plan.jobs, job)
			return plan, nil
		}
	}

	assessment, err := s.risk.assessStudent(ctx, tx, student, day)
	if err != nil {
		return nil, fmt.Errorf("failed to assess risk for %s: %w", student.ID, err)
	}
	if assessment.Level == domain.RiskHigh {
		job, err := s.composer.Compose(domain.EventHighRisk, student, now, message.Vars{
			"reasons": message.FormatReasons(assessment.Reasons),
		})
		if err != nil {
			return nil, err
		}
		plan.highRisk = true
		plan.jobs = append(plan.jobs, job)
	}
	return plan, nil
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
