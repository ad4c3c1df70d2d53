package models

import "time"

// FineStatus is the settlement state of a fine.
type FineStatus string

const (
	FineOutstanding FineStatus = "outstanding"
	FinePaid        FineStatus = "paid"
	FineWaived      FineStatus = "waived"
)

type Fine struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    string     `json:"user_id" gorm:"type:uuid;not null;index"`
	LoanID    int64      `json:"loan_id" gorm:"not null;index"`
	Amount    float64    `json:"amount" gorm:"type:decimal(8,2);not null"`
	Reason    string     `json:"reason" gorm:"not null"`
	Status    FineStatus `json:"status" gorm:"type:varchar(12);default:'outstanding';not null;index"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// associations
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Loan *Loan `json:"loan,omitempty" gorm:"foreignKey:LoanID"`
}

func (Fine) TableName() string {
	return "fines"
}
