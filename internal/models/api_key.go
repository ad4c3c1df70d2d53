package models

import "time"

// APIKey authorizes service-to-service callers (the loan desk terminal,
// the SPA backend-for-frontend). Only the SHA-256 of the key is stored;
// the plaintext is shown once at creation.
type APIKey struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name       string     `json:"name" gorm:"uniqueIndex;not null"`
	KeyHash    string     `json:"-" gorm:"uniqueIndex;not null;size:64"`
	Revoked    bool       `json:"revoked" gorm:"default:false"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
