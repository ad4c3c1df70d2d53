package service

import (
	"context"
	"errors"
	"fmt"

	"unilib/internal/models"
	"unilib/internal/repository"

	"golang.org/x/time/rate"
)

// NotificationService owns user-facing notifications. It doubles as the
// engine's Dispatcher: every user-visible reservation event lands here.
type NotificationService interface {
	Dispatcher
	GetUnread(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID string, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID string) error
}

type notificationService struct {
	repo    repository.NotificationRepository
	limiter *rate.Limiter
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{
		repo: repo,
		// the downstream mail relay tolerates ~10 msg/s sustained
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Dispatch records the reservation event as a notification row. The
// limiter throttles bursts from cascade-heavy sweeps.
func (s *notificationService) Dispatch(ctx context.Context, userID string, reservationID int64, eventKind string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification throttle: %w", err)
	}

	title, message := renderEvent(eventKind, reservationID)
	notification := &models.Notification{
		UserID:  userID,
		Type:    eventKind,
		Title:   title,
		Message: message,
	}
	// loan events carry no reservation reference
	if reservationID != 0 {
		notification.ReservationID = &reservationID
	}
	return s.repo.Create(ctx, notification)
}

func renderEvent(eventKind string, reservationID int64) (title, message string) {
	switch eventKind {
	case models.NotifyReservationReady:
		return "Your book is ready for pickup",
			fmt.Sprintf("A copy you reserved is being held for you (reservation #%d). Pick it up before the hold expires.", reservationID)
	case models.NotifyReservationExpired:
		return "Your hold has expired",
			fmt.Sprintf("Reservation #%d was not picked up in time and has been released to the next person in line.", reservationID)
	case models.NotifyReservationRevoked:
		return "Your reservation was cancelled",
			fmt.Sprintf("Reservation #%d was cancelled by library staff.", reservationID)
	case models.NotifyLoanOverdue:
		return "You have an overdue loan",
			"A borrowed copy is past its due date. Return it to stop the fine from growing."
	default:
		return "Library notification", fmt.Sprintf("Update on reservation #%d.", reservationID)
	}
}

func (s *notificationService) GetUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.repo.GetUnreadByUser(ctx, userID)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID string, notificationID int64) error {
	// Verify notification belongs to user
	notifications, err := s.repo.GetUnreadByUser(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for _, n := range notifications {
		if n.ID == notificationID {
			found = true
			break
		}
	}
	if !found {
		return errors.New("notification not found or already read")
	}

	return s.repo.MarkAsRead(ctx, notificationID)
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}
