package models

import "time"

// Notification event kinds raised by the reservation engine and loan flow.
const (
	NotifyReservationReady   = "RESERVATION_READY"
	NotifyReservationExpired = "RESERVATION_EXPIRED"
	NotifyReservationRevoked = "RESERVATION_REVOKED" // cancelled by staff
	NotifyLoanOverdue        = "LOAN_OVERDUE"
)

type Notification struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Type          string    `gorm:"not null" json:"type"`
	ReservationID *int64    `json:"reservation_id,omitempty"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Read          bool      `gorm:"default:false" json:"read"`
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	// associations
	User        *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Reservation *Reservation `gorm:"foreignKey:ReservationID" json:"reservation,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
