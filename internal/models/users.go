package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles recognized by the system. Librarian and admin get access to the
// administrative surface; professors get a reservation priority boost.
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

type User struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string     `gorm:"uniqueIndex;not null" json:"username"`
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"column:password_hash;not null" json:"-"` // never serialized
	Role      string     `gorm:"default:'student';not null" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// BeforeCreate hook to set UUID before creating a User
func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return
}

func (User) TableName() string {
	return "users"
}

// ReservationPriority maps a role to the queue priority it earns.
// Higher values jump ahead in the wait queue; students are neutral.
func (user *User) ReservationPriority() int {
	switch user.Role {
	case RoleProfessor:
		return 10
	case RoleLibrarian, RoleAdmin:
		return 5
	default:
		return 0
	}
}

// IsStaff reports whether the user may perform administrative actions.
func (user *User) IsStaff() bool {
	return user.Role == RoleLibrarian || user.Role == RoleAdmin
}
