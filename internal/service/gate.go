package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/message"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"go.uber.org/zap"
)

type ScanStatus string

const (
	ScanRecorded        ScanStatus = "RECORDED"
	ScanPaymentRequired ScanStatus = "PAYMENT_REQUIRED"
)

// ScanResult is what the scanning desk sees. PaymentRequired carries the
// remaining trials so staff can choose between a free try and payment.
type ScanResult struct {
	Status          ScanStatus
	Student         *domain.Student
	Attendance      *domain.AttendanceRecord
	Late            bool
	TrialsRemaining int
}

type PaymentResult struct {
	Payment *domain.PaymentRecord
	Created bool
}

type PayAndAttendResult struct {
	Payment    *domain.PaymentRecord
	Created    bool
	Attendance *domain.AttendanceRecord
}

type TrialResult struct {
	Attendance      *domain.AttendanceRecord
	TrialsRemaining int
}

// Gate decides whether a student may attend and records attendance, free
// trials and payments. Every check that can refuse runs before any write.
type Gate struct {
	store    repository.Store
	composer *message.Composer
	emitter  *emitter
	logger   *zap.Logger
	now      func() time.Time
}

func NewGate(
	store repository.Store,
	publisher queue.Publisher,
	composer *message.Composer,
	logger *zap.Logger,
) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
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

	return &Gate{
		store:    store,
		composer: composer,
		emitter:  &emitter{publisher: publisher, logger: logger},
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (g *Gate) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.emitter.metrics = metrics
}

// RecordAttendance marks the student present on date.
func (g *Gate) RecordAttendance(ctx context.Context, studentID string, date time.Time) (*domain.AttendanceRecord, error) {
	settings, student, err := g.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := g.ensureNotRecorded(ctx, student.ID, date); err != nil {
		return nil, err
	}

	record, late, err := g.attend(ctx, g.store, settings, student, date, nil)
	if err != nil {
		return nil, err
	}
	g.emitAttendance(ctx, settings, student, date, late)
	return record, nil
}

// GrantFreeTry spends one of the student's free trials on date.
func (g *Gate) GrantFreeTry(ctx context.Context, studentID string, date time.Time) (*TrialResult, error) {
	_, student, err := g.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.FreeTries <= 0 {
		return nil, fmt.Errorf("%w: %s has no free trials left", domain.ErrTrialsExhausted, student.Name)
	}
	if err := g.ensureNotRecorded(ctx, student.ID, date); err != nil {
		return nil, err
	}

	result := &TrialResult{}
	err = g.store.Transaction(ctx, func(tx repository.Store) error {
		remaining, err := tx.Students().DecrementTrial(ctx, student.ID)
		if err != nil {
			return err
		}
		record := presentRecord(student.ID, date, nil)
		if err := tx.Attendance().Create(ctx, record); err != nil {
			return err
		}
		result.Attendance = record
		result.TrialsRemaining = remaining
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant free trial: %w", err)
	}

	g.compose(ctx, domain.EventTrialUsed, student, message.Vars{
		"date":        dayVar(date),
		"trials_left": strconv.Itoa(result.TrialsRemaining),
	})
	return result, nil
}

// RecordPayment marks month as paid. Repeating it for a paid month returns the
// existing payment and changes nothing.
func (g *Gate) RecordPayment(ctx context.Context, studentID string, month time.Time) (*PaymentResult, error) {
	settings, student, err := g.load(ctx, studentID)
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{}
	err = g.store.Transaction(ctx, func(tx repository.Store) error {
		payment, created, err := g.pay(ctx, tx, settings, student, month)
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Created = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	if result.Created {
		g.compose(ctx, domain.EventPaymentReceipt, student, g.receiptVars(settings, result.Payment.Month))
	}
	return result, nil
}

// PayAndAttend records the month's payment for date and the attendance itself
// in one step, sending a single combined message.
func (g *Gate) PayAndAttend(ctx context.Context, studentID string, date time.Time) (*PayAndAttendResult, error) {
	settings, student, err := g.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := g.ensureNotRecorded(ctx, student.ID, date); err != nil {
		return nil, err
	}

	result := &PayAndAttendResult{}
	err = g.store.Transaction(ctx, func(tx repository.Store) error {
		payment, created, err := g.pay(ctx, tx, settings, student, date)
		if err != nil {
			return err
		}
		record := presentRecord(student.ID, date, nil)
		if err := tx.Attendance().Create(ctx, record); err != nil {
			return err
		}
		result.Payment = payment
		result.Created = created
		result.Attendance = record
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record payment and attendance: %w", err)
	}

	vars := g.receiptVars(settings, result.Payment.Month)
	vars["date"] = dayVar(date)
	if result.Created {
		vars["payment_line"] = message.Render("Subscription for {month} received. Amount: {amount}.", vars)
	} else {
		vars["payment_line"] = message.Render("Subscription for {month} is already paid.", vars)
	}
	g.compose(ctx, domain.EventPaymentAttendance, student, vars)
	return result, nil
}

// Scan resolves a scanned barcode. A paid student is recorded at once; an
// unpaid one is reported back without any write.
func (g *Gate) Scan(ctx context.Context, barcode string, date time.Time, arrivedAt time.Time) (*ScanResult, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, fmt.Errorf("%w: barcode is required", domain.ErrValidation)
	}

	settings, err := g.settings(ctx)
	if err != nil {
		return nil, err
	}
	student, err := g.store.Students().GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve barcode: %w", err)
	}
	if err := g.ensureNotRecorded(ctx, student.ID, date); err != nil {
		return nil, err
	}

	paid, err := g.store.Payments().Exists(ctx, student.ID, domain.MonthStart(date))
	if err != nil {
		return nil, fmt.Errorf("failed to check payment: %w", err)
	}
	if !paid {
		return &ScanResult{
			Status:          ScanPaymentRequired,
			Student:         student,
			TrialsRemaining: student.FreeTries,
		}, nil
	}

	arrival := arrivedAt
	if arrival.IsZero() {
		arrival = g.now()
	}
	record, late, err := g.attend(ctx, g.store, settings, student, date, &arrival)
	if err != nil {
		return nil, err
	}
	g.emitAttendance(ctx, settings, student, date, late)

	return &ScanResult{
		Status:          ScanRecorded,
		Student:         student,
		Attendance:      record,
		Late:            late,
		TrialsRemaining: student.FreeTries,
	}, nil
}

func (g *Gate) load(ctx context.Context, studentID string) (*domain.Settings, *domain.Student, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, nil, fmt.Errorf("%w: student id is required", domain.ErrValidation)
	}
	settings, err := g.settings(ctx)
	if err != nil {
		return nil, nil, err
	}
	student, err := g.store.Students().GetByID(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load student: %w", err)
	}
	return settings, student, nil
}

func (g *Gate) settings(ctx context.Context) (*domain.Settings, error) {
	return loadSettings(ctx, g.store, "configure free tries and month price before recording attendance")
}

// loadSettings returns the validated settings row. hint is appended when the
// row has never been saved.
func loadSettings(ctx context.Context, store repository.Store, hint string) (*domain.Settings, error) {
	settings, err := store.Settings().Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsMissing) {
			return nil, fmt.Errorf("%w: %s", err, hint)
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (g *Gate) ensureNotRecorded(ctx context.Context, studentID string, date time.Time) error {
	exists, err := g.store.Attendance().Exists(ctx, studentID, date)
	if err != nil {
		return fmt.Errorf("failed to check attendance: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: attendance already recorded for %s", domain.ErrDuplicateRecord, domain.Day(date).Format(time.DateOnly))
	}
	return nil
}

func (g *Gate) attend(
	ctx context.Context,
	store repository.Store,
	settings *domain.Settings,
	student *domain.Student,
	date time.Time,
	arrival *time.Time,
) (*domain.AttendanceRecord, bool, error) {
	record := presentRecord(student.ID, date, arrival)
	if err := store.Attendance().Create(ctx, record); err != nil {
		return nil, false, fmt.Errorf("failed to record attendance: %w", err)
	}
	late := arrival != nil && settings.IsLate(*arrival)
	return record, late, nil
}

// pay creates the month's payment if missing. Only a newly created payment
// resets the free trials.
func (g *Gate) pay(
	ctx context.Context,
	tx repository.Store,
	settings *domain.Settings,
	student *domain.Student,
	month time.Time,
) (*domain.PaymentRecord, bool, error) {
	payment := &domain.PaymentRecord{
		StudentID: student.ID,
		Month:     domain.MonthStart(month),
		PaidAt:    g.now().UTC(),
	}
	created, err := tx.Payments().GetOrCreate(ctx, payment)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := tx.Students().ResetTrials(ctx, student.ID, settings.DefaultFreeTries, payment.Month); err != nil {
			return nil, false, err
		}
	}
	return payment, created, nil
}

func (g *Gate) receiptVars(settings *domain.Settings, month time.Time) message.Vars {
	return message.Vars{
		"month":  message.FormatMonth(month),
		"amount": strconv.Itoa(settings.MonthPrice),
	}
}

// emitAttendance reports the recorded date, which differs from today when an
// operator backfills a missed day.
func (g *Gate) emitAttendance(ctx context.Context, settings *domain.Settings, student *domain.Student, date time.Time, late bool) {
	vars := message.Vars{"date": dayVar(date)}
	if late {
		vars["late_cutoff"] = settings.LateCutoff
		g.compose(ctx, domain.EventLateAttendance, student, vars)
		return
	}
	g.compose(ctx, domain.EventAttendance, student, vars)
}

func dayVar(date time.Time) string {
	return domain.Day(date).Format(time.DateOnly)
}

func (g *Gate) compose(ctx context.Context, tag domain.EventTag, student *domain.Student, vars message.Vars) {
	job, err := g.composer.Compose(tag, student, g.now(), vars)
	if err != nil {
		g.logger.Error("failed to compose notification",
			zap.String("studentId", student.ID),
			zap.String("event", tag.String()),
			zap.Error(err),
		)
		return
	}
	g.emitter.emit(ctx, job)
}

func presentRecord(studentID string, date time.Time, arrival *time.Time) *domain.AttendanceRecord {
	return &domain.AttendanceRecord{
		StudentID:   studentID,
		Date:        domain.Day(date),
		Absent:      false,
		ArrivalTime: arrival,
	}
}
