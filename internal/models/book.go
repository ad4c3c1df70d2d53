package models

import "time"

type Book struct {
	ID          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ISBN        *string    `json:"isbn,omitempty" gorm:"uniqueIndex;size:20"`
	Title       string     `json:"title" gorm:"not null;index"`
	Description *string    `json:"description,omitempty"`
	Publisher   *string    `json:"publisher,omitempty"`
	Year        *int       `json:"year,omitempty"`
	CoverURL    *string    `json:"cover_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`

	// associations
	Authors    []Author   `json:"authors,omitempty" gorm:"many2many:book_authors;constraint:OnDelete:CASCADE;"`
	Categories []Category `json:"categories,omitempty" gorm:"many2many:book_categories;constraint:OnDelete:CASCADE;"`
}

func (Book) TableName() string {
	return "books"
}
