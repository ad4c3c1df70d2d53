package repository

import (
	"context"
	"fmt"
	"time"

	"unilib/internal/models"

	"gorm.io/gorm"
)

type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	Save(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id int64) (*models.Loan, error)
	FindActiveByCopy(ctx context.Context, copyID int64) (*models.Loan, error)
	ListByUser(ctx context.Context, userID string) ([]models.Loan, error)
	CountActiveByUser(ctx context.Context, userID string) (int64, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.Loan, error)
	Delete(ctx context.Context, id int64) error
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	if err := r.db.WithContext(ctx).Create(loan).Error; err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

func (r *loanRepository) Save(ctx context.Context, loan *models.Loan) error {
	if err := r.db.WithContext(ctx).Save(loan).Error; err != nil {
		return fmt.Errorf("save loan: %w", err)
	}
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id int64) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).Preload("Copy").First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindActiveByCopy(ctx context.Context, copyID int64) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).
		Where("copy_id = ? AND status IN ?", copyID, []models.LoanStatus{models.LoanActive, models.LoanOverdue}).
		First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) ListByUser(ctx context.Context, userID string) ([]models.Loan, error) {
	var list []models.Loan
	if err := r.db.WithContext(ctx).
		Preload("Copy").
		Preload("Copy.Book").
		Where("user_id = ?", userID).
		Order("issued_at desc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list loans by user: %w", err)
	}
	return list, nil
}

func (r *loanRepository) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND status IN ?", userID, []models.LoanStatus{models.LoanActive, models.LoanOverdue}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes a loan row. Only used to undo an issue that failed
// partway through.
func (r *loanRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.Loan{}, id).Error; err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return nil
}

func (r *loanRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.Loan, error) {
	var list []models.Loan
	if err := r.db.WithContext(ctx).
		Where("status = ? AND due_at < ?", models.LoanActive, now).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}
	return list, nil
}
