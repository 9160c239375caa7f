package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
)

type AttendanceRepository interface {
	Create(ctx context.Context, a *domain.AttendanceRecord) error
	Exists(ctx context.Context, studentID string, date time.Time) (bool, error)
	ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]domain.AttendanceRecord, error)
	StudentIDsWithRecord(ctx context.Context, date time.Time) ([]string, error)
	ActiveDates(ctx context.Context, before time.Time, limit int) ([]time.Time, error)
	CountActiveDays(ctx context.Context, from, to time.Time) (int, error)
}

type GormAttendanceRepo struct {
	db *gorm.DB
}

func NewGormAttendanceRepo(db *gorm.DB) *GormAttendanceRepo {
	return &GormAttendanceRepo{db: db}
}

// Create inserts one record; a second record for the same student and date
// fails with domain.ErrDuplicateRecord via the unique index.
func (r *GormAttendanceRepo) Create(ctx context.Context, a *domain.AttendanceRecord) error {
	model := attendanceModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	if a != nil {
		*a = *attendanceModelToDomain(model)
	}
	return nil
}

func (r *GormAttendanceRepo) Exists(ctx context.Context, studentID string, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AttendanceModel{}).
		Where("student_id = ? AND date = ?", studentID, domain.Day(date)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByStudent returns the student's records with from <= date <= to, oldest first.
func (r *GormAttendanceRepo) ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]domain.AttendanceRecord, error) {
	var models []AttendanceModel
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND date BETWEEN ? AND ?", studentID, domain.Day(from), domain.Day(to)).
		Order("date ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.AttendanceRecord, 0, len(models))
	for i := range models {
		records = append(records, *attendanceModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormAttendanceRepo) StudentIDsWithRecord(ctx context.Context, date time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&AttendanceModel{}).
		Where("date = ?", domain.Day(date)).
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ActiveDates returns up to limit distinct dates strictly before the given
// day on which any student has a record, most recent first.
func (r *GormAttendanceRepo) ActiveDates(ctx context.Context, before time.Time, limit int) ([]time.Time, error) {
	var dates []time.Time
	err := r.db.WithContext(ctx).
		Model(&AttendanceModel{}).
		Distinct().
		Where("date < ?", domain.Day(before)).
		Order("date DESC").
		Limit(limit).
		Pluck("date", &dates).Error
	if err != nil {
		return nil, err
	}
	for i := range dates {
		dates[i] = domain.Day(dates[i])
	}
	return dates, nil
}

// CountActiveDays counts distinct school days in [from, to].
func (r *GormAttendanceRepo) CountActiveDays(ctx context.Context, from, to time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AttendanceModel{}).
		Distinct("date").
		Where("date BETWEEN ? AND ?", domain.Day(from), domain.Day(to)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
