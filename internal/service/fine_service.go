package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"unilib/internal/models"
	"unilib/internal/repository"

	"gorm.io/gorm"
)

var ErrFineNotFound = errors.New("fine not found or already settled")

type FineService interface {
	// AssessOverdue computes and records the fine for a loan returned
	// after its due date: per-day rate, capped.
	AssessOverdue(ctx context.Context, loan *models.Loan, returnedAt time.Time) error

	Pay(ctx context.Context, fineID int64) error
	Waive(ctx context.Context, fineID int64) error
	ListByUser(ctx context.Context, userID string) ([]models.Fine, error)
	OutstandingTotal(ctx context.Context, userID string) (float64, error)
}

type fineService struct {
	repo       repository.FineRepository
	finePerDay float64
	fineCap    float64
}

func NewFineService(repo repository.FineRepository, finePerDay, fineCap float64) FineService {
	return &fineService{repo: repo, finePerDay: finePerDay, fineCap: fineCap}
}

func (s *fineService) AssessOverdue(ctx context.Context, loan *models.Loan, returnedAt time.Time) error {
	if !returnedAt.After(loan.DueAt) {
		return nil
	}

	// partial days count as whole days
	daysLate := int(math.Ceil(returnedAt.Sub(loan.DueAt).Hours() / 24))
	amount := math.Min(float64(daysLate)*s.finePerDay, s.fineCap)

	fine := &models.Fine{
		UserID: loan.UserID,
		LoanID: loan.ID,
		Amount: amount,
		Reason: fmt.Sprintf("returned %d day(s) late", daysLate),
		Status: models.FineOutstanding,
	}
	return s.repo.Create(ctx, fine)
}

func (s *fineService) Pay(ctx context.Context, fineID int64) error {
	if err := s.repo.Settle(ctx, fineID, models.FinePaid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFineNotFound
		}
		return err
	}
	return nil
}

func (s *fineService) Waive(ctx context.Context, fineID int64) error {
	if err := s.repo.Settle(ctx, fineID, models.FineWaived); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFineNotFound
		}
		return err
	}
	return nil
}

func (s *fineService) ListByUser(ctx context.Context, userID string) ([]models.Fine, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *fineService) OutstandingTotal(ctx context.Context, userID string) (float64, error) {
	return s.repo.OutstandingTotal(ctx, userID)
}
