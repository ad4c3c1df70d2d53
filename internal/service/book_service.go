package service

import (
	"context"
	"errors"

	"unilib/internal/models"
	"unilib/internal/repository"
)

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrCopyNotFound  = errors.New("copy not found")
	ErrCopyWithdrawn = errors.New("copy is withdrawn")
	ErrCopyBusy      = errors.New("copy is loaned or reserved")
)

// Availability is the per-title stock summary shown in the catalog.
type Availability struct {
	BookID         int64 `json:"book_id"`
	TotalCopies    int   `json:"total_copies"`
	AvailableCount int64 `json:"available_count"`
	QueueLength    int   `json:"queue_length"`
}

type BookService interface {
	Get(ctx context.Context, id int64) (*models.Book, error)
	List(ctx context.Context, page, pageSize int) ([]models.Book, int64, error)
	Search(ctx context.Context, query string) ([]models.Book, error)
	Create(ctx context.Context, b *models.Book) error
	Update(ctx context.Context, id int64, b *models.Book) error
	Delete(ctx context.Context, id int64) error

	Availability(ctx context.Context, bookID int64) (*Availability, error)
	AddCopy(ctx context.Context, bookID int64, barcode string, shelf *string) (*models.Copy, error)
	WithdrawCopy(ctx context.Context, copyID int64) error
	RestoreCopy(ctx context.Context, copyID int64) error
	ListCopies(ctx context.Context, bookID int64) ([]models.Copy, error)
}

type bookService struct {
	books        *repository.BookRepo
	copies       *repository.CopyRepo
	reservations repository.ReservationStore
}

func NewBookService(books *repository.BookRepo, copies *repository.CopyRepo, reservations repository.ReservationStore) BookService {
	return &bookService{books: books, copies: copies, reservations: reservations}
}

func (s *bookService) Get(ctx context.Context, id int64) (*models.Book, error) {
	b, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, ErrBookNotFound
	}
	return b, nil
}

func (s *bookService) List(ctx context.Context, page, pageSize int) ([]models.Book, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.books.GetAll(ctx, page, pageSize)
}

func (s *bookService) Search(ctx context.Context, query string) ([]models.Book, error) {
	return s.books.Search(ctx, query)
}

func (s *bookService) Create(ctx context.Context, b *models.Book) error {
	return s.books.Create(ctx, b)
}

func (s *bookService) Update(ctx context.Context, id int64, b *models.Book) error {
	if _, err := s.books.GetByID(ctx, id); err != nil {
		return ErrBookNotFound
	}
	return s.books.Update(ctx, id, b)
}

func (s *bookService) Delete(ctx context.Context, id int64) error {
	if _, err := s.books.GetByID(ctx, id); err != nil {
		return ErrBookNotFound
	}
	return s.books.Delete(ctx, id)
}

func (s *bookService) Availability(ctx context.Context, bookID int64) (*Availability, error) {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, ErrBookNotFound
	}

	copies, err := s.copies.ListByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	available, err := s.copies.CountAvailable(ctx, bookID)
	if err != nil {
		return nil, err
	}
	queue, err := s.reservations.QueueForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	return &Availability{
		BookID:         bookID,
		TotalCopies:    len(copies),
		AvailableCount: available,
		QueueLength:    len(queue),
	}, nil
}

func (s *bookService) AddCopy(ctx context.Context, bookID int64, barcode string, shelf *string) (*models.Copy, error) {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, ErrBookNotFound
	}

	c := &models.Copy{
		BookID:  bookID,
		Barcode: barcode,
		Status:  models.CopyAvailable,
		Shelf:   shelf,
	}
	if err := s.copies.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// WithdrawCopy pulls a copy out of circulation. Only idle copies may be
// withdrawn; a loaned or reserved copy must come back first.
func (s *bookService) WithdrawCopy(ctx context.Context, copyID int64) error {
	c, err := s.copies.GetByID(ctx, copyID)
	if err != nil {
		return ErrCopyNotFound
	}
	if c.Status != models.CopyAvailable {
		return ErrCopyBusy
	}
	return s.copies.SetStatus(ctx, copyID, models.CopyWithdrawn)
}

func (s *bookService) RestoreCopy(ctx context.Context, copyID int64) error {
	c, err := s.copies.GetByID(ctx, copyID)
	if err != nil {
		return ErrCopyNotFound
	}
	if c.Status == models.CopyAvailable {
		return nil
	}
	if c.Status != models.CopyWithdrawn {
		return ErrCopyBusy
	}
	return s.copies.SetStatus(ctx, copyID, models.CopyAvailable)
}

func (s *bookService) ListCopies(ctx context.Context, bookID int64) ([]models.Copy, error) {
	return s.copies.ListByBook(ctx, bookID)
}
