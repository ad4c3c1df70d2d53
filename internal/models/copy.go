package models

import "time"

// CopyStatus is the availability state of a physical copy.
type CopyStatus string

const (
	CopyAvailable CopyStatus = "available"
	CopyLoaned    CopyStatus = "loaned"
	CopyReserved  CopyStatus = "reserved" // bound to a reservation awaiting pickup
	CopyWithdrawn CopyStatus = "withdrawn"
)

// Valid reports whether s is one of the known copy statuses.
func (s CopyStatus) Valid() bool {
	switch s {
	case CopyAvailable, CopyLoaned, CopyReserved, CopyWithdrawn:
		return true
	}
	return false
}

// Copy is a physical instance of a book title, individually trackable
// by its barcode.
type Copy struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	BookID    int64      `json:"book_id" gorm:"not null;index"`
	Barcode   string     `json:"barcode" gorm:"uniqueIndex;not null;size:40"`
	Status    CopyStatus `json:"status" gorm:"type:varchar(20);default:'available';not null;index"`
	Shelf     *string    `json:"shelf,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// association
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

func (Copy) TableName() string {
	return "copies"
}
