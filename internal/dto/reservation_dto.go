package dto

import (
	"time"

	"unilib/internal/models"
)

// ReserveRequest places a reservation on a title.
type ReserveRequest struct {
	BookID int64 `json:"book_id" binding:"required,min=1"`
	// Priority is honored only on the admin surface; user requests derive
	// priority from their role.
	Priority int `json:"priority,omitempty"`
}

// ReservationResponse mirrors one reservation for API consumers.
type ReservationResponse struct {
	ID                int64                    `json:"id"`
	BookID            int64                    `json:"book_id"`
	UserID            string                   `json:"user_id"`
	CopyID            *int64                   `json:"copy_id,omitempty"`
	Kind              models.ReservationKind   `json:"kind"`
	State             models.ReservationState  `json:"state"`
	QueuePosition     int                      `json:"queue_position,omitempty"`
	Priority          int                      `json:"priority"`
	PickupDeadline    *time.Time               `json:"pickup_deadline,omitempty"`
	NotificationState models.NotificationState `json:"notification_state"`
	CreatedAt         time.Time                `json:"created_at"`
	BookTitle         string                   `json:"book_title,omitempty"`
}

// ReservationListResponse wraps a set of reservations.
type ReservationListResponse struct {
	Items []ReservationResponse `json:"items"`
	Total int                   `json:"total"`
}

// SweepResponse reports the outcome of an on-demand expiration pass.
type SweepResponse struct {
	Scanned  int     `json:"scanned"`
	Expired  int     `json:"expired"`
	Promoted int     `json:"promoted"`
	Failed   []int64 `json:"failed,omitempty"`
}

// CopyFreedRequest reports an externally returned copy to the engine.
type CopyFreedRequest struct {
	BookID int64 `json:"book_id" binding:"required,min=1"`
	CopyID int64 `json:"copy_id" binding:"required,min=1"`
}

func FromReservationToResponse(r models.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:                r.ID,
		BookID:            r.BookID,
		UserID:            r.UserID,
		CopyID:            r.CopyID,
		Kind:              r.Kind,
		State:             r.State,
		QueuePosition:     r.QueuePosition,
		Priority:          r.Priority,
		PickupDeadline:    r.PickupDeadline,
		NotificationState: r.NotificationState,
		CreatedAt:         r.CreatedAt,
	}
	if r.Book != nil {
		resp.BookTitle = r.Book.Title
	}
	return resp
}
