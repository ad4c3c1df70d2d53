package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"unilib/internal/models"
	"unilib/internal/repository"
)

var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrLoanAlreadyReturned = errors.New("loan already returned")
	ErrLoanLimitReached    = errors.New("active loan limit reached")
)

type LoanService interface {
	// IssueFromReservation turns a ready_for_pickup reservation into a
	// loan: the engine completes the reservation and the bound copy moves
	// to loaned.
	IssueFromReservation(ctx context.Context, reservationID int64) (*models.Loan, error)

	// IssueDirect loans an available copy over the desk with no
	// reservation involved.
	IssueDirect(ctx context.Context, copyID int64, userID string) (*models.Loan, error)

	// Return closes the loan, assesses an overdue fine if due, and reports
	// the freed copy to the reservation engine for cascade promotion.
	Return(ctx context.Context, loanID int64) (*models.Loan, error)

	// FlagOverdue marks active loans past their due date and notifies the
	// borrowers. Run periodically next to the reservation sweep.
	FlagOverdue(ctx context.Context, now time.Time) (int, error)

	GetByID(ctx context.Context, loanID int64) (*models.Loan, error)
	ListByUser(ctx context.Context, userID string) ([]models.Loan, error)
}

// CopyLedger is the slice of the copy repository the loan flow needs.
type CopyLedger interface {
	GetByID(ctx context.Context, id int64) (*models.Copy, error)
	MarkLoaned(ctx context.Context, copyID int64) error
	MarkReserved(ctx context.Context, copyID int64) error
	Release(ctx context.Context, copyID int64) error
}

type loanService struct {
	loans        repository.LoanRepository
	copies       CopyLedger
	users        repository.UserRepository
	reservations ReservationService
	fines        FineService
	dispatcher   Dispatcher
	loanPeriod   time.Duration
	maxActive    int
	logger       *slog.Logger
}

func NewLoanService(
	loans repository.LoanRepository,
	copies CopyLedger,
	users repository.UserRepository,
	reservations ReservationService,
	fines FineService,
	dispatcher Dispatcher,
	loanPeriod time.Duration,
	maxActive int,
	logger *slog.Logger,
) LoanService {
	return &loanService{
		loans:        loans,
		copies:       copies,
		users:        users,
		reservations: reservations,
		fines:        fines,
		dispatcher:   dispatcher,
		loanPeriod:   loanPeriod,
		maxActive:    maxActive,
		logger:       logger,
	}
}

func (s *loanService) IssueFromReservation(ctx context.Context, reservationID int64) (*models.Loan, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if res.State != models.StateReadyForPickup || res.CopyID == nil {
		return nil, ErrInvalidTransition
	}
	if err := s.checkLoanLimit(ctx, res.UserID); err != nil {
		return nil, err
	}

	// Completing the reservation is terminal, so it happens last; every
	// step before it is undone when a later one fails, leaving the hold
	// intact for a retry.
	copyID := *res.CopyID
	if err := s.copies.MarkLoaned(ctx, copyID); err != nil {
		return nil, err
	}

	now := time.Now()
	loan := &models.Loan{
		UserID:        res.UserID,
		CopyID:        copyID,
		IssuedAt:      now,
		DueAt:         now.Add(s.loanPeriod),
		Status:        models.LoanActive,
		ReservationID: &res.ID,
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		if undoErr := s.copies.MarkReserved(ctx, copyID); undoErr != nil {
			s.logger.Error("failed to restore copy after aborted issue", "copy_id", copyID, "error", undoErr)
		}
		return nil, err
	}

	if _, err := s.reservations.Collect(ctx, reservationID); err != nil {
		if delErr := s.loans.Delete(ctx, loan.ID); delErr != nil {
			s.logger.Error("failed to remove loan after aborted issue", "loan_id", loan.ID, "error", delErr)
		}
		if undoErr := s.copies.MarkReserved(ctx, copyID); undoErr != nil {
			s.logger.Error("failed to restore copy after aborted issue", "copy_id", copyID, "error", undoErr)
		}
		return nil, err
	}
	return loan, nil
}

func (s *loanService) IssueDirect(ctx context.Context, copyID int64, userID string) (*models.Loan, error) {
	if _, err := s.users.FindByID(userID); err != nil {
		return nil, err
	}
	if err := s.checkLoanLimit(ctx, userID); err != nil {
		return nil, err
	}

	// the guarded update loses against a concurrent reservation bind on
	// the same copy, which is the ordering we want
	if err := s.copies.MarkLoaned(ctx, copyID); err != nil {
		return nil, err
	}

	now := time.Now()
	loan := &models.Loan{
		UserID:   userID,
		CopyID:   copyID,
		IssuedAt: now,
		DueAt:    now.Add(s.loanPeriod),
		Status:   models.LoanActive,
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		if relErr := s.copies.Release(ctx, copyID); relErr != nil {
			s.logger.Error("failed to release copy after aborted loan", "copy_id", copyID, "error", relErr)
		}
		return nil, err
	}
	return loan, nil
}

func (s *loanService) Return(ctx context.Context, loanID int64) (*models.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, ErrLoanNotFound
	}
	if loan.Status == models.LoanReturned {
		return nil, ErrLoanAlreadyReturned
	}

	now := time.Now()
	loan.ReturnedAt = &now
	loan.Status = models.LoanReturned
	if err := s.loans.Save(ctx, loan); err != nil {
		return nil, err
	}

	if now.After(loan.DueAt) {
		if err := s.fines.AssessOverdue(ctx, loan, now); err != nil {
			// the return already happened; the fine can be assessed manually
			s.logger.Error("failed to assess overdue fine", "loan_id", loan.ID, "error", err)
		}
	}

	c, err := s.copies.GetByID(ctx, loan.CopyID)
	if err != nil {
		return nil, err
	}
	// hand the freed copy to the reservation engine; it either promotes
	// the queue head or leaves the copy available
	if err := s.reservations.CopyFreed(ctx, c.BookID, c.ID); err != nil {
		return nil, err
	}

	return loan, nil
}

func (s *loanService) FlagOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i := range overdue {
		loan := overdue[i]
		loan.Status = models.LoanOverdue
		if err := s.loans.Save(ctx, &loan); err != nil {
			s.logger.Error("failed to flag overdue loan", "loan_id", loan.ID, "error", err)
			continue
		}
		flagged++
		if s.dispatcher != nil {
			if err := s.dispatcher.Dispatch(ctx, loan.UserID, 0, models.NotifyLoanOverdue); err != nil {
				s.logger.Warn("overdue notification failed", "loan_id", loan.ID, "error", err)
			}
		}
	}
	return flagged, nil
}

func (s *loanService) GetByID(ctx context.Context, loanID int64) (*models.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

func (s *loanService) ListByUser(ctx context.Context, userID string) ([]models.Loan, error) {
	return s.loans.ListByUser(ctx, userID)
}

func (s *loanService) checkLoanLimit(ctx context.Context, userID string) error {
	active, err := s.loans.CountActiveByUser(ctx, userID)
	if err != nil {
		return err
	}
	if active >= int64(s.maxActive) {
		return ErrLoanLimitReached
	}
	return nil
}
