package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
)

type SettingsRepository interface {
	Get(ctx context.Context) (*domain.Settings, error)
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

// Get returns the current settings row or domain.ErrSettingsMissing when the
// admin has not configured one yet.
func (r *GormSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	var model SettingsModel
	err := r.db.WithContext(ctx).Order("id ASC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSettingsMissing
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}
