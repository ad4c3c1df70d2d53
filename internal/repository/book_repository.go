package repository

import (
	"context"
	"fmt"
	"strings"

	"unilib/internal/models"

	"gorm.io/gorm"
)

type BookRepo struct {
	db *gorm.DB
}

func NewBookRepo(db *gorm.DB) *BookRepo {
	return &BookRepo{db: db}
}

func (r *BookRepo) GetAll(ctx context.Context, page, pageSize int) ([]models.Book, int64, error) {
	var list []models.Book
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize

	if err := r.db.WithContext(ctx).
		Preload("Authors").
		Preload("Categories").
		Order("created_at desc").
		Limit(pageSize).
		Offset(offset).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

func (r *BookRepo) GetByID(ctx context.Context, id int64) (*models.Book, error) {
	var b models.Book
	if err := r.db.WithContext(ctx).Preload("Authors").Preload("Categories").First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookRepo) Create(ctx context.Context, b *models.Book) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (r *BookRepo) Update(ctx context.Context, id int64, b *models.Book) error {
	b.ID = id
	if err := r.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.Book{}, id).Error; err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Search performs case-insensitive partial match on title, ISBN,
// publisher and author name. Splits the query into tokens and requires
// each token to appear in at least one of the fields.
func (r *BookRepo) Search(ctx context.Context, query string) ([]models.Book, error) {
	var list []models.Book
	tokens := strings.Fields(query)
	db := r.db.WithContext(ctx)

	if len(tokens) == 0 {
		return list, nil
	}

	const byAuthor = `books.id IN (
		SELECT ba.book_id FROM book_authors ba
		JOIN authors a ON a.id = ba.author_id
		WHERE a.name ILIKE ?)`

	clauses := make([]string, 0, len(tokens))
	args := make([]interface{}, 0, len(tokens)*4)
	for _, t := range tokens {
		pattern := "%" + t + "%"
		clauses = append(clauses, "(title ILIKE ? OR isbn ILIKE ? OR publisher ILIKE ? OR "+byAuthor+")")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if err := db.
		Preload("Authors").
		Preload("Categories").
		Where(strings.Join(clauses, " AND "), args...).
		Limit(50).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return list, nil
}
