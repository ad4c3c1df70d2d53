package repository

import (
	"context"
	"errors"
	"fmt"

	"unilib/internal/models"

	"gorm.io/gorm"
)

// ErrCopyNotAvailable is returned when a bind targets a copy that is not
// in the available state (already bound, loaned or withdrawn).
var ErrCopyNotAvailable = errors.New("copy not available")

// CopyInventory is the engine's view of the physical copy stock. The
// reservation workflow only ever binds available copies and releases
// copies it bound; loan issuance moves copies to loaned separately.
type CopyInventory interface {
	FindAvailable(ctx context.Context, bookID int64) (*models.Copy, error)
	Bind(ctx context.Context, copyID int64) error
	Release(ctx context.Context, copyID int64) error
	MarkLoaned(ctx context.Context, copyID int64) error
}

// CopyRepo is the GORM implementation of CopyInventory plus the CRUD
// surface used by the catalog handlers.
type CopyRepo struct {
	db *gorm.DB
}

func NewCopyRepo(db *gorm.DB) *CopyRepo {
	return &CopyRepo{db: db}
}

// FindAvailable returns one available copy of the book, or nil when the
// title has no free copies.
func (r *CopyRepo) FindAvailable(ctx context.Context, bookID int64) (*models.Copy, error) {
	var c models.Copy
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, models.CopyAvailable).
		Order("id asc").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find available copy: %w", err)
	}
	return &c, nil
}

// Bind moves an available copy to reserved. The guarded UPDATE is the
// mutual-exclusion point: two concurrent binds on the same copy cannot
// both see rows affected.
func (r *CopyRepo) Bind(ctx context.Context, copyID int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("id = ? AND status = ?", copyID, models.CopyAvailable).
		Update("status", models.CopyReserved)
	if result.Error != nil {
		return fmt.Errorf("bind copy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCopyNotAvailable
	}
	return nil
}

// Release returns a reserved or loaned copy to the available pool.
func (r *CopyRepo) Release(ctx context.Context, copyID int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("id = ? AND status IN ?", copyID, []models.CopyStatus{models.CopyReserved, models.CopyLoaned}).
		Update("status", models.CopyAvailable)
	if result.Error != nil {
		return fmt.Errorf("release copy: %w", result.Error)
	}
	return nil
}

// MarkLoaned moves a reserved or available copy to loaned on issue.
func (r *CopyRepo) MarkLoaned(ctx context.Context, copyID int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("id = ? AND status IN ?", copyID, []models.CopyStatus{models.CopyReserved, models.CopyAvailable}).
		Update("status", models.CopyLoaned)
	if result.Error != nil {
		return fmt.Errorf("mark copy loaned: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCopyNotAvailable
	}
	return nil
}

// MarkReserved moves a loaned copy back to reserved; the undo of
// MarkLoaned when a loan issue aborts partway.
func (r *CopyRepo) MarkReserved(ctx context.Context, copyID int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("id = ? AND status = ?", copyID, models.CopyLoaned).
		Update("status", models.CopyReserved)
	if result.Error != nil {
		return fmt.Errorf("mark copy reserved: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCopyNotAvailable
	}
	return nil
}

func (r *CopyRepo) GetByID(ctx context.Context, id int64) (*models.Copy, error) {
	var c models.Copy
	if err := r.db.WithContext(ctx).Preload("Book").First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CopyRepo) Create(ctx context.Context, c *models.Copy) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create copy: %w", err)
	}
	return nil
}

// SetStatus is the administrative override (withdraw a damaged copy,
// return a withdrawn one to circulation).
func (r *CopyRepo) SetStatus(ctx context.Context, id int64, status models.CopyStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("set copy status: %w", err)
	}
	return nil
}

func (r *CopyRepo) ListByBook(ctx context.Context, bookID int64) ([]models.Copy, error) {
	var list []models.Copy
	if err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id asc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list copies: %w", err)
	}
	return list, nil
}

// CountAvailable reports how many copies of the book are free right now.
func (r *CopyRepo) CountAvailable(ctx context.Context, bookID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Copy{}).
		Where("book_id = ? AND status = ?", bookID, models.CopyAvailable).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
