package repository

import (
	"context"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
)

type OutcomeRepository interface {
	Create(ctx context.Context, o *domain.DeliveryOutcome) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error)
}

type GormOutcomeRepo struct {
	db *gorm.DB
}

func NewGormOutcomeRepo(db *gorm.DB) *GormOutcomeRepo {
	return &GormOutcomeRepo{db: db}
}

func (r *GormOutcomeRepo) Create(ctx context.Context, o *domain.DeliveryOutcome) error {
	model := outcomeModelFromDomain(o)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if o != nil {
		*o = *outcomeModelToDomain(model)
	}
	return nil
}

func (r *GormOutcomeRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error) {
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 200)

	var models []DeliveryOutcomeModel
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.DeliveryOutcome, 0, len(models))
	for i := range models {
		outcomes = append(outcomes, *outcomeModelToDomain(&models[i]))
	}

	return outcomes, nil
}
