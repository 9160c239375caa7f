package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"gorm.io/gorm"
)

type BroadcastRepository interface {
	Create(ctx context.Context, b *domain.Broadcast) error
	GetByID(ctx context.Context, id string) (*domain.Broadcast, error)
	MarkSent(ctx context.Context, id string, recipients int, sentAt time.Time) error
}

type GormBroadcastRepo struct {
	db *gorm.DB
}

func NewGormBroadcastRepo(db *gorm.DB) *GormBroadcastRepo {
	return &GormBroadcastRepo{db: db}
}

func (r *GormBroadcastRepo) Create(ctx context.Context, b *domain.Broadcast) error {
	model := broadcastModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *broadcastModelToDomain(model)
	}
	return nil
}

func (r *GormBroadcastRepo) GetByID(ctx context.Context, id string) (*domain.Broadcast, error) {
	var model BroadcastModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return broadcastModelToDomain(&model), nil
}

func (r *GormBroadcastRepo) MarkSent(ctx context.Context, id string, recipients int, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&BroadcastModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"recipients": recipients,
			"sent_at":    sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
