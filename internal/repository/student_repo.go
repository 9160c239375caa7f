package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentRepository interface {
	Create(ctx context.Context, s *domain.Student) error
	GetByID(ctx context.Context, id string) (*domain.Student, error)
	GetByBarcode(ctx context.Context, barcode string) (*domain.Student, error)
	List(ctx context.Context) ([]domain.Student, error)
	DecrementTrial(ctx context.Context, id string) (int, error)
	ResetTrials(ctx context.Context, id string, count int, month time.Time) error
	UpdateContact(ctx context.Context, id string, contact string) error
}

type GormStudentRepo struct {
	db *gorm.DB
}

func NewGormStudentRepo(db *gorm.DB) *GormStudentRepo {
	return &GormStudentRepo{db: db}
}

func (r *GormStudentRepo) Create(ctx context.Context, s *domain.Student) error {
	model := studentModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	if s != nil {
		*s = *studentModelToDomain(model)
	}
	return nil
}

func (r *GormStudentRepo) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	var model StudentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentModelToDomain(&model), nil
}

func (r *GormStudentRepo) GetByBarcode(ctx context.Context, barcode string) (*domain.Student, error) {
	var model StudentModel
	err := r.db.WithContext(ctx).
		Where("barcode = ?", strings.TrimSpace(barcode)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentModelToDomain(&model), nil
}

func (r *GormStudentRepo) List(ctx context.Context) ([]domain.Student, error) {
	var models []StudentModel
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	students := make([]domain.Student, 0, len(models))
	for i := range models {
		students = append(students, *studentModelToDomain(&models[i]))
	}
	return students, nil
}

// DecrementTrial consumes one free trial and returns the remaining count. The
// update is conditional so concurrent callers can never push it below zero.
func (r *GormStudentRepo) DecrementTrial(ctx context.Context, id string) (int, error) {
	var model StudentModel
	result := r.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "free_tries"}}}).
		Where("id = ? AND free_tries > 0", id).
		Update("free_tries", gorm.Expr("free_tries - 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return 0, err
		}
		return 0, domain.ErrTrialsExhausted
	}
	return model.FreeTries, nil
}

func (r *GormStudentRepo) ResetTrials(ctx context.Context, id string, count int, month time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&StudentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"free_tries":       count,
			"last_reset_month": domain.MonthStart(month),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormStudentRepo) UpdateContact(ctx context.Context, id string, contact string) error {
	result := r.db.WithContext(ctx).
		Model(&StudentModel{}).
		Where("id = ?", id).
		Update("contact", strings.TrimSpace(contact))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
