package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"unilib/internal/models"
	"unilib/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrDuplicateActiveReservation = errors.New("user already has an active reservation for this book")
	ErrReservationNotFound        = errors.New("reservation not found")
	ErrInvalidTransition          = errors.New("invalid reservation state transition")

	// ErrCopyNotAvailable surfaces the inventory guard: the targeted copy
	// is already bound, loaned or withdrawn.
	ErrCopyNotAvailable = repository.ErrCopyNotAvailable
)

// Dispatcher records a user-facing notification for a reservation event.
// Dispatch failures are best-effort from the engine's perspective: they
// never roll back a state transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, reservationID int64, eventKind string) error
}

// SweepReport summarizes one expiration pass. Per-item failures are
// isolated so one stale row cannot abort the batch.
type SweepReport struct {
	Scanned  int     `json:"scanned"`
	Expired  int     `json:"expired"`
	Promoted int     `json:"promoted"`
	Failed   []int64 `json:"failed,omitempty"`
}

// ReservationService is the reservation lifecycle engine: the state
// machine and queue-fulfillment workflow. The reservation store is
// mutated only through these methods.
type ReservationService interface {
	// Request places a reservation for the user on the title. If a copy is
	// free it is bound immediately and the reservation starts as a pickup
	// hold; otherwise the reservation joins the book's wait queue.
	// priority 0 means "derive from the user's role".
	Request(ctx context.Context, bookID int64, userID string, priority int) (*models.Reservation, error)

	// CopyFreed reports that a copy of the book came back (loan return or
	// administrative release) and cascades one promotion if the queue is
	// non-empty; otherwise the copy is released back to the available pool.
	CopyFreed(ctx context.Context, bookID, copyID int64) error

	// Collect completes a ready_for_pickup reservation when the user picks
	// the copy up; the copy itself transfers to the loan flow.
	Collect(ctx context.Context, reservationID int64) (*models.Reservation, error)

	// Cancel cancels a live reservation. A bound copy is released and the
	// cascade promotes the next queued reservation.
	Cancel(ctx context.Context, reservationID int64, byStaff bool) error

	// RequireApproval parks a queued reservation until staff sign-off;
	// Approve returns it to the wait queue with its original timestamp.
	RequireApproval(ctx context.Context, reservationID int64) error
	Approve(ctx context.Context, reservationID int64) error

	// Sweep expires every pickup hold whose deadline has passed and
	// cascades promotions. Idempotent: re-running on already-expired or
	// completed reservations is a no-op.
	Sweep(ctx context.Context, now time.Time) (SweepReport, error)

	GetByID(ctx context.Context, reservationID int64) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reservation, error)
	ListByBook(ctx context.Context, bookID int64) ([]models.Reservation, error)
}

type reservationService struct {
	store      repository.ReservationStore
	inventory  repository.CopyInventory
	users      repository.UserRepository
	dispatcher Dispatcher
	locks      *bookLocks
	holdWindow time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewReservationService(
	store repository.ReservationStore,
	inventory repository.CopyInventory,
	users repository.UserRepository,
	dispatcher Dispatcher,
	holdWindow time.Duration,
	logger *slog.Logger,
) ReservationService {
	return &reservationService{
		store:      store,
		inventory:  inventory,
		users:      users,
		dispatcher: dispatcher,
		locks:      newBookLocks(),
		holdWindow: holdWindow,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *reservationService) Request(ctx context.Context, bookID int64, userID string, priority int) (*models.Reservation, error) {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if priority == 0 {
		priority = user.ReservationPriority()
	}

	existing, err := s.store.FindActive(ctx, bookID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateActiveReservation
	}

	res := &models.Reservation{
		BookID:            bookID,
		UserID:            userID,
		Kind:              models.KindQueueWait,
		State:             models.StateQueueWait,
		Priority:          priority,
		NotificationState: models.NotifyPending,
	}

	// Fast path: a copy is free right now, bind it and skip the queue.
	free, err := s.inventory.FindAvailable(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if free != nil {
		if err := s.inventory.Bind(ctx, free.ID); err == nil {
			deadline := s.now().Add(s.holdWindow)
			res.Kind = models.KindPickupHold
			res.State = models.StateReadyForPickup
			res.CopyID = &free.ID
			res.PickupDeadline = &deadline
			if err := s.store.Create(ctx, res); err != nil {
				// the bind and the transition must land together; undo the bind
				if relErr := s.inventory.Release(ctx, free.ID); relErr != nil {
					s.logger.Error("failed to release copy after aborted reservation",
						"copy_id", free.ID, "error", relErr)
				}
				return nil, err
			}
			s.notify(ctx, res, models.NotifyReservationReady)
			return res, nil
		} else if !errors.Is(err, repository.ErrCopyNotAvailable) {
			return nil, err
		}
		// the copy raced away between the lookup and the bind; queue instead
	}

	if err := s.store.Create(ctx, res); err != nil {
		return nil, err
	}
	queue, err := s.renumberQueue(ctx, bookID)
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].ID == res.ID {
			res.QueuePosition = queue[i].QueuePosition
		}
	}
	return res, nil
}

func (s *reservationService) CopyFreed(ctx context.Context, bookID, copyID int64) error {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	// A stale or duplicated return report must not unbind a live hold: if
	// a reservation is still bound to this copy, an earlier report already
	// handled it and this one is a no-op.
	held, err := s.store.FindHoldByCopy(ctx, copyID)
	if err != nil {
		return err
	}
	if held != nil {
		return nil
	}

	// Copy goes back to the pool first; the promotion rebinds it so it is
	// never left idle while the queue is non-empty.
	if err := s.inventory.Release(ctx, copyID); err != nil {
		return err
	}
	_, err = s.promoteLocked(ctx, bookID, copyID)
	return err
}

// promoteLocked advances the head of the book's wait queue into a pickup
// hold. Caller holds the book lock. Returns whether a promotion happened.
func (s *reservationService) promoteLocked(ctx context.Context, bookID, preferredCopyID int64) (bool, error) {
	queue, err := s.store.QueueForBook(ctx, bookID)
	if err != nil {
		return false, err
	}
	if len(queue) == 0 {
		return false, nil
	}
	head := queue[0]

	bindID := preferredCopyID
	if err := s.inventory.Bind(ctx, bindID); err != nil {
		if !errors.Is(err, repository.ErrCopyNotAvailable) {
			return false, err
		}
		// preferred copy raced away, fall back to any free copy
		free, ferr := s.inventory.FindAvailable(ctx, bookID)
		if ferr != nil {
			return false, ferr
		}
		if free == nil {
			return false, nil
		}
		bindID = free.ID
		if err := s.inventory.Bind(ctx, bindID); err != nil {
			return false, err
		}
	}

	deadline := s.now().Add(s.holdWindow)
	head.Kind = models.KindPickupHold
	head.State = models.StateReadyForPickup
	head.CopyID = &bindID
	head.PickupDeadline = &deadline
	head.QueuePosition = 0
	head.NotificationState = models.NotifyPending
	if err := s.store.Save(ctx, &head); err != nil {
		// transition and bind land together or not at all
		if relErr := s.inventory.Release(ctx, bindID); relErr != nil {
			s.logger.Error("failed to release copy after aborted promotion",
				"copy_id", bindID, "error", relErr)
		}
		return false, err
	}
	s.notify(ctx, &head, models.NotifyReservationReady)

	if _, err := s.renumberQueue(ctx, bookID); err != nil {
		return true, err
	}
	return true, nil
}

func (s *reservationService) Collect(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	res, err := s.getExisting(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(res.BookID)
	defer unlock()

	// re-read under the lock; the sweep may have expired it meanwhile
	res, err = s.getExisting(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.State.CanTransition(models.StateCompleted) {
		return nil, ErrInvalidTransition
	}

	res.State = models.StateCompleted
	res.PickupDeadline = nil // deadline exists only while ready_for_pickup
	if err := s.store.Save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *reservationService) Cancel(ctx context.Context, reservationID int64, byStaff bool) error {
	res, err := s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(res.BookID)
	defer unlock()

	res, err = s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.State.CanTransition(models.StateCancelled) {
		return ErrInvalidTransition
	}

	// Release before the save: a failed release leaves the reservation
	// untouched so the cancellation can simply be retried, and a failed
	// save is undone by re-binding, so the copy is never stranded in
	// reserved with nothing pointing at it.
	boundCopy := res.CopyID
	if boundCopy != nil {
		if err := s.inventory.Release(ctx, *boundCopy); err != nil {
			return err
		}
	}

	res.State = models.StateCancelled
	res.CopyID = nil
	res.PickupDeadline = nil
	res.QueuePosition = 0
	if err := s.store.Save(ctx, res); err != nil {
		if boundCopy != nil {
			if bindErr := s.inventory.Bind(ctx, *boundCopy); bindErr != nil {
				s.logger.Error("failed to rebind copy after aborted cancellation",
					"copy_id", *boundCopy, "error", bindErr)
			}
		}
		return err
	}

	if byStaff {
		s.notify(ctx, res, models.NotifyReservationRevoked)
	}

	if boundCopy != nil {
		_, err := s.promoteLocked(ctx, res.BookID, *boundCopy)
		return err
	}

	_, err = s.renumberQueue(ctx, res.BookID)
	return err
}

func (s *reservationService) RequireApproval(ctx context.Context, reservationID int64) error {
	res, err := s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(res.BookID)
	defer unlock()

	res, err = s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}
	if !res.State.CanTransition(models.StatePendingApproval) {
		return ErrInvalidTransition
	}

	// parked reservations do not count toward the queue until approved
	res.State = models.StatePendingApproval
	res.QueuePosition = 0
	if err := s.store.Save(ctx, res); err != nil {
		return err
	}
	_, err = s.renumberQueue(ctx, res.BookID)
	return err
}

func (s *reservationService) Approve(ctx context.Context, reservationID int64) error {
	res, err := s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(res.BookID)
	defer unlock()

	res, err = s.getExisting(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.State != models.StatePendingApproval {
		return ErrInvalidTransition
	}

	// CreatedAt is untouched, so the reservation resumes its old spot in
	// the (priority, created_at) ordering.
	res.State = models.StateQueueWait
	if err := s.store.Save(ctx, res); err != nil {
		return err
	}
	_, err = s.renumberQueue(ctx, res.BookID)
	return err
}

func (s *reservationService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{}

	overdue, err := s.store.OverdueHolds(ctx, now)
	if err != nil {
		return report, err
	}
	report.Scanned = len(overdue)

	for i := range overdue {
		promoted, err := s.expireOne(ctx, overdue[i].ID, now)
		if err != nil {
			// isolate the failure, keep sweeping the rest of the batch
			s.logger.Error("sweep item failed", "reservation_id", overdue[i].ID, "error", err)
			report.Failed = append(report.Failed, overdue[i].ID)
			continue
		}
		report.Expired++
		if promoted {
			report.Promoted++
		}
	}
	return report, nil
}

// expireOne expires a single overdue hold and cascades one promotion.
func (s *reservationService) expireOne(ctx context.Context, reservationID int64, now time.Time) (bool, error) {
	res, err := s.getExisting(ctx, reservationID)
	if err != nil {
		return false, err
	}

	unlock := s.locks.Lock(res.BookID)
	defer unlock()

	res, err = s.getExisting(ctx, reservationID)
	if err != nil {
		return false, err
	}
	// idempotence: anything no longer ready_for_pickup (already expired,
	// collected, cancelled) is a no-op, not an error
	if res.State != models.StateReadyForPickup {
		return false, nil
	}
	if res.PickupDeadline == nil || !res.PickupDeadline.Before(now) {
		return false, nil
	}
	if res.CopyID == nil {
		return false, fmt.Errorf("reservation %d is ready_for_pickup without a bound copy", res.ID)
	}

	// Release before the save: a failed release leaves the hold as-is for
	// the next sweep to retry, and a failed save is undone by re-binding.
	// Either way the copy cannot end up reserved with no reservation
	// pointing at it.
	copyID := *res.CopyID
	if err := s.inventory.Release(ctx, copyID); err != nil {
		return false, err
	}

	res.State = models.StateExpired
	res.CopyID = nil
	res.PickupDeadline = nil
	res.NotificationState = models.NotifyPending
	if err := s.store.Save(ctx, res); err != nil {
		if bindErr := s.inventory.Bind(ctx, copyID); bindErr != nil {
			s.logger.Error("failed to rebind copy after aborted expiry",
				"copy_id", copyID, "error", bindErr)
		}
		return false, err
	}
	s.notify(ctx, res, models.NotifyReservationExpired)

	return s.promoteLocked(ctx, res.BookID, copyID)
}

func (s *reservationService) GetByID(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	return s.getExisting(ctx, reservationID)
}

func (s *reservationService) ListByUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *reservationService) ListByBook(ctx context.Context, bookID int64) ([]models.Reservation, error) {
	return s.store.ListByBook(ctx, bookID)
}

// renumberQueue recomputes dense 1-based positions for the book's wait
// queue. The store already orders by (priority desc, created_at asc, id
// asc); only rows whose position changed are written back.
func (s *reservationService) renumberQueue(ctx context.Context, bookID int64) ([]models.Reservation, error) {
	queue, err := s.store.QueueForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	changed := make([]models.Reservation, 0, len(queue))
	for i := range queue {
		want := i + 1
		if queue[i].QueuePosition != want {
			queue[i].QueuePosition = want
			changed = append(changed, queue[i])
		}
	}
	if len(changed) > 0 {
		if err := s.store.SavePositions(ctx, changed); err != nil {
			return nil, err
		}
	}
	return queue, nil
}

// notify records the user-facing event. Best-effort: a dispatch failure
// leaves NotificationState pending for a later retry and never rolls the
// transition back.
func (s *reservationService) notify(ctx context.Context, res *models.Reservation, eventKind string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, res.UserID, res.ID, eventKind); err != nil {
		s.logger.Warn("notification dispatch failed",
			"reservation_id", res.ID, "event", eventKind, "error", err)
		return
	}
	res.NotificationState = models.NotifySent
	if err := s.store.Save(ctx, res); err != nil {
		s.logger.Warn("failed to record notification state", "reservation_id", res.ID, "error", err)
	}
}

func (s *reservationService) getExisting(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	res, err := s.store.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return res, nil
}
