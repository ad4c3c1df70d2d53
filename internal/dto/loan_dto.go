package dto

import (
	"time"

	"unilib/internal/models"
)

// IssueLoanRequest issues a loan at the desk, either fulfilling a pickup
// hold or directly against an available copy.
type IssueLoanRequest struct {
	ReservationID *int64  `json:"reservation_id,omitempty"`
	CopyID        *int64  `json:"copy_id,omitempty"`
	UserID        *string `json:"user_id,omitempty"`
}

// LoanResponse mirrors one loan for API consumers.
type LoanResponse struct {
	ID            int64             `json:"id"`
	UserID        string            `json:"user_id"`
	CopyID        int64             `json:"copy_id"`
	IssuedAt      time.Time         `json:"issued_at"`
	DueAt         time.Time         `json:"due_at"`
	ReturnedAt    *time.Time        `json:"returned_at,omitempty"`
	Status        models.LoanStatus `json:"status"`
	ReservationID *int64            `json:"reservation_id,omitempty"`
	BookTitle     string            `json:"book_title,omitempty"`
}

// LoanListResponse wraps a user's loan history.
type LoanListResponse struct {
	Items []LoanResponse `json:"items"`
	Total int            `json:"total"`
}

// FineResponse mirrors one fine for API consumers.
type FineResponse struct {
	ID        int64             `json:"id"`
	LoanID    int64             `json:"loan_id"`
	Amount    float64           `json:"amount"`
	Reason    string            `json:"reason"`
	Status    models.FineStatus `json:"status"`
	SettledAt *time.Time        `json:"settled_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// FineListResponse wraps a user's fines plus the outstanding total.
type FineListResponse struct {
	Items       []FineResponse `json:"items"`
	Outstanding float64        `json:"outstanding"`
}

func FromLoanToResponse(l models.Loan) LoanResponse {
	resp := LoanResponse{
		ID:            l.ID,
		UserID:        l.UserID,
		CopyID:        l.CopyID,
		IssuedAt:      l.IssuedAt,
		DueAt:         l.DueAt,
		ReturnedAt:    l.ReturnedAt,
		Status:        l.Status,
		ReservationID: l.ReservationID,
	}
	if l.Copy != nil && l.Copy.Book != nil {
		resp.BookTitle = l.Copy.Book.Title
	}
	return resp
}

func FromFineToResponse(f models.Fine) FineResponse {
	return FineResponse{
		ID:        f.ID,
		LoanID:    f.LoanID,
		Amount:    f.Amount,
		Reason:    f.Reason,
		Status:    f.Status,
		SettledAt: f.SettledAt,
		CreatedAt: f.CreatedAt,
	}
}
