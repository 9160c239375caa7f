package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	GetOrCreate(ctx context.Context, p *domain.PaymentRecord) (bool, error)
	Exists(ctx context.Context, studentID string, month time.Time) (bool, error)
}

type GormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) *GormPaymentRepo {
	return &GormPaymentRepo{db: db}
}

// GetOrCreate inserts the payment unless one already exists for the student
// and month. p is overwritten with the stored row; the bool reports whether
// this call created it.
func (r *GormPaymentRepo) GetOrCreate(ctx context.Context, p *domain.PaymentRecord) (bool, error) {
	model := paymentModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "month"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, translateError(result.Error)
	}
	created := result.RowsAffected > 0

	if !created {
		var existing PaymentModel
		err := r.db.WithContext(ctx).
			Where("student_id = ? AND month = ?", model.StudentID, model.Month).
			First(&existing).Error
		if err != nil {
			return false, translateError(err)
		}
		model = &existing
	}

	*p = *paymentModelToDomain(model)
	return created, nil
}

func (r *GormPaymentRepo) Exists(ctx context.Context, studentID string, month time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("student_id = ? AND month = ?", studentID, domain.MonthStart(month)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
