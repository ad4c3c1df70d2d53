package models

import "time"

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue" // active past its due date
)

type Loan struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     string     `json:"user_id" gorm:"type:uuid;not null;index"`
	CopyID     int64      `json:"copy_id" gorm:"not null;index"`
	IssuedAt   time.Time  `json:"issued_at" gorm:"not null"`
	DueAt      time.Time  `json:"due_at" gorm:"not null;index"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     LoanStatus `json:"status" gorm:"type:varchar(10);default:'active';not null;index"`

	// ReservationID links back to the pickup hold this loan fulfilled, if any.
	ReservationID *int64 `json:"reservation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// associations
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Copy *Copy `json:"copy,omitempty" gorm:"foreignKey:CopyID"`
}

func (Loan) TableName() string {
	return "loans"
}
