package dto

import (
	"time"

	"unilib/internal/models"
)

// CreateBookDTO used for POST /api/books
type CreateBookDTO struct {
	ISBN        *string `json:"isbn,omitempty"`
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description,omitempty"`
	Publisher   *string `json:"publisher,omitempty"`
	Year        *int    `json:"year,omitempty"`
	CoverURL    *string `json:"cover_url,omitempty"`
	AuthorIDs   []int64 `json:"author_ids,omitempty"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
}

// UpdateBookDTO used for PUT /api/books/:id (partial updates allowed)
type UpdateBookDTO struct {
	ISBN        *string `json:"isbn,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Publisher   *string `json:"publisher,omitempty"`
	Year        *int    `json:"year,omitempty"`
	CoverURL    *string `json:"cover_url,omitempty"`
}

// BookResponse DTO for responses
type BookResponse struct {
	ID          int64             `json:"id"`
	ISBN        *string           `json:"isbn,omitempty"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Publisher   *string           `json:"publisher,omitempty"`
	Year        *int              `json:"year,omitempty"`
	CoverURL    *string           `json:"cover_url,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	Authors     []models.Author   `json:"authors,omitempty"`
	Categories  []models.Category `json:"categories,omitempty"`
}

// BookListResponse wraps a paginated catalog page.
type BookListResponse struct {
	Items    []BookResponse `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// AddCopyRequest registers a new physical copy of a title.
type AddCopyRequest struct {
	Barcode string  `json:"barcode" binding:"required"`
	Shelf   *string `json:"shelf,omitempty"`
}

// Converters
func (d CreateBookDTO) ToModel() models.Book {
	return models.Book{
		ISBN:        d.ISBN,
		Title:       d.Title,
		Description: d.Description,
		Publisher:   d.Publisher,
		Year:        d.Year,
		CoverURL:    d.CoverURL,
	}
}

func (d UpdateBookDTO) ApplyTo(b *models.Book) {
	if d.ISBN != nil {
		b.ISBN = d.ISBN
	}
	if d.Title != nil {
		b.Title = *d.Title
	}
	if d.Description != nil {
		b.Description = d.Description
	}
	if d.Publisher != nil {
		b.Publisher = d.Publisher
	}
	if d.Year != nil {
		b.Year = d.Year
	}
	if d.CoverURL != nil {
		b.CoverURL = d.CoverURL
	}
}

func FromBookToResponse(b models.Book) BookResponse {
	return BookResponse{
		ID:          b.ID,
		ISBN:        b.ISBN,
		Title:       b.Title,
		Description: b.Description,
		Publisher:   b.Publisher,
		Year:        b.Year,
		CoverURL:    b.CoverURL,
		CreatedAt:   b.CreatedAt,
		Authors:     b.Authors,
		Categories:  b.Categories,
	}
}
