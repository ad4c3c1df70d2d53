package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unilib/internal/models"

	"gorm.io/gorm"
)

// ReservationStore is the durable record of every reservation. It is
// mutated only through the reservation service; handlers read through it
// but never write.
type ReservationStore interface {
	Create(ctx context.Context, r *models.Reservation) error
	Save(ctx context.Context, r *models.Reservation) error
	GetByID(ctx context.Context, id int64) (*models.Reservation, error)
	FindActive(ctx context.Context, bookID int64, userID string) (*models.Reservation, error)
	FindHoldByCopy(ctx context.Context, copyID int64) (*models.Reservation, error)
	QueueForBook(ctx context.Context, bookID int64) ([]models.Reservation, error)
	OverdueHolds(ctx context.Context, now time.Time) ([]models.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reservation, error)
	ListByBook(ctx context.Context, bookID int64) ([]models.Reservation, error)
	SavePositions(ctx context.Context, queue []models.Reservation) error
}

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationStore {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) Save(ctx context.Context, res *models.Reservation) error {
	if err := r.db.WithContext(ctx).Save(res).Error; err != nil {
		return fmt.Errorf("save reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// FindActive returns the user's live reservation for the book, or nil if
// there is none. Live means queue_wait, pending_approval or
// ready_for_pickup.
func (r *reservationRepository) FindActive(ctx context.Context, bookID int64, userID string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND user_id = ? AND state IN ?", bookID, userID,
			[]models.ReservationState{models.StateQueueWait, models.StatePendingApproval, models.StateReadyForPickup}).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active reservation: %w", err)
	}
	return &res, nil
}

// FindHoldByCopy returns the live pickup hold bound to the copy, or nil
// if the copy is not bound to any ready_for_pickup reservation.
func (r *reservationRepository) FindHoldByCopy(ctx context.Context, copyID int64) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).
		Where("copy_id = ? AND state = ?", copyID, models.StateReadyForPickup).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find hold by copy: %w", err)
	}
	return &res, nil
}

// QueueForBook returns the book's queue_wait entries in promotion order:
// priority descending, then creation time, then id as the deterministic
// fallback.
func (r *reservationRepository) QueueForBook(ctx context.Context, bookID int64) ([]models.Reservation, error) {
	var queue []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("book_id = ? AND state = ?", bookID, models.StateQueueWait).
		Order("priority desc, created_at asc, id asc").
		Find(&queue).Error; err != nil {
		return nil, fmt.Errorf("queue for book: %w", err)
	}
	return queue, nil
}

// OverdueHolds returns every ready_for_pickup reservation whose deadline
// has passed; input for the expiration sweep.
func (r *reservationRepository) OverdueHolds(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var overdue []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("state = ? AND pickup_deadline < ?", models.StateReadyForPickup, now).
		Order("pickup_deadline asc").
		Find(&overdue).Error; err != nil {
		return nil, fmt.Errorf("overdue holds: %w", err)
	}
	return overdue, nil
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	var list []models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list reservations by user: %w", err)
	}
	return list, nil
}

func (r *reservationRepository) ListByBook(ctx context.Context, bookID int64) ([]models.Reservation, error) {
	var list []models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("book_id = ?", bookID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list reservations by book: %w", err)
	}
	return list, nil
}

// SavePositions persists recomputed queue positions in one transaction so
// a reader never observes a half-renumbered queue.
func (r *reservationRepository) SavePositions(ctx context.Context, queue []models.Reservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range queue {
			if err := tx.Model(&models.Reservation{}).
				Where("id = ?", queue[i].ID).
				Update("queue_position", queue[i].QueuePosition).Error; err != nil {
				return fmt.Errorf("save position for reservation %d: %w", queue[i].ID, err)
			}
		}
		return nil
	})
}
