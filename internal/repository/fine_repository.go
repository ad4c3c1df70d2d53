package repository

import (
	"context"
	"fmt"
	"time"

	"unilib/internal/models"

	"gorm.io/gorm"
)

type FineRepository interface {
	Create(ctx context.Context, fine *models.Fine) error
	GetByID(ctx context.Context, id int64) (*models.Fine, error)
	ListByUser(ctx context.Context, userID string) ([]models.Fine, error)
	OutstandingTotal(ctx context.Context, userID string) (float64, error)
	Settle(ctx context.Context, id int64, status models.FineStatus) error
}

type fineRepository struct {
	db *gorm.DB
}

func NewFineRepository(db *gorm.DB) FineRepository {
	return &fineRepository{db: db}
}

func (r *fineRepository) Create(ctx context.Context, fine *models.Fine) error {
	if err := r.db.WithContext(ctx).Create(fine).Error; err != nil {
		return fmt.Errorf("create fine: %w", err)
	}
	return nil
}

func (r *fineRepository) GetByID(ctx context.Context, id int64) (*models.Fine, error) {
	var fine models.Fine
	if err := r.db.WithContext(ctx).First(&fine, id).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) ListByUser(ctx context.Context, userID string) ([]models.Fine, error) {
	var list []models.Fine
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list fines by user: %w", err)
	}
	return list, nil
}

func (r *fineRepository) OutstandingTotal(ctx context.Context, userID string) (float64, error) {
	var total float64
	if err := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("user_id = ? AND status = ?", userID, models.FineOutstanding).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *fineRepository) Settle(ctx context.Context, id int64, status models.FineStatus) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Fine{}).
		Where("id = ? AND status = ?", id, models.FineOutstanding).
		Updates(map[string]interface{}{"status": status, "settled_at": &now})
	if result.Error != nil {
		return fmt.Errorf("settle fine: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
