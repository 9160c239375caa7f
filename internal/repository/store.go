package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories the gate and sweep mutate together so a
// caller can run them inside one transaction.
type Store interface {
	Students() StudentRepository
	Attendance() AttendanceRepository
	Payments() PaymentRepository
	Settings() SettingsRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Students() StudentRepository { return NewGormStudentRepo(s.db) }
func (s *GormStore) Attendance() AttendanceRepository { return NewGormAttendanceRepo(s.db) }
func (s *GormStore) Payments() PaymentRepository { return NewGormPaymentRepo(s.db) }
func (s *GormStore) Settings() SettingsRepository { return NewGormSettingsRepo(s.db) }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}
