package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"unilib/internal/dto"
	"unilib/internal/models"
	"unilib/internal/service"
)

// MockReservationService mocks the ReservationService interface
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) Request(ctx context.Context, bookID int64, userID string, priority int) (*models.Reservation, error) {
	args := m.Called(ctx, bookID, userID, priority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) CopyFreed(ctx context.Context, bookID, copyID int64) error {
	args := m.Called(ctx, bookID, copyID)
	return args.Error(0)
}

func (m *MockReservationService) Collect(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) Cancel(ctx context.Context, reservationID int64, byStaff bool) error {
	args := m.Called(ctx, reservationID, byStaff)
	return args.Error(0)
}

func (m *MockReservationService) RequireApproval(ctx context.Context, reservationID int64) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *MockReservationService) Approve(ctx context.Context, reservationID int64) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *MockReservationService) Sweep(ctx context.Context, now time.Time) (service.SweepReport, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(service.SweepReport), args.Error(1)
}

func (m *MockReservationService) GetByID(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockReservationService) ListByUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockReservationService) ListByBook(ctx context.Context, bookID int64) ([]models.Reservation, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

// fakeAuth stands in for the auth middleware and injects identity into
// the request context.
func fakeAuth(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("role", role)
		c.Next()
	}
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestReserve_Success(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/reservations", fakeAuth("user-1", models.RoleStudent), h.Reserve)

	queued := &models.Reservation{
		ID:            1,
		BookID:        42,
		UserID:        "user-1",
		Kind:          models.KindQueueWait,
		State:         models.StateQueueWait,
		QueuePosition: 3,
	}
	mockSvc.On("Request", mock.Anything, int64(42), "user-1", 0).Return(queued, nil)

	body, _ := json.Marshal(dto.ReserveRequest{BookID: 42})
	req, _ := http.NewRequest("POST", "/reservations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.ReservationResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, 3, resp.QueuePosition)
	assert.Equal(t, models.StateQueueWait, resp.State)
	mockSvc.AssertExpectations(t)
}

func TestReserve_PatronPriorityIgnored(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/reservations", fakeAuth("user-1", models.RoleStudent), h.Reserve)

	// even when the body smuggles a priority, a student request goes in
	// with priority 0
	mockSvc.On("Request", mock.Anything, int64(42), "user-1", 0).
		Return(&models.Reservation{ID: 1, BookID: 42, UserID: "user-1"}, nil)

	body, _ := json.Marshal(dto.ReserveRequest{BookID: 42, Priority: 99})
	req, _ := http.NewRequest("POST", "/reservations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestReserve_DuplicateConflict(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/reservations", fakeAuth("user-1", models.RoleStudent), h.Reserve)

	mockSvc.On("Request", mock.Anything, int64(42), "user-1", 0).
		Return(nil, service.ErrDuplicateActiveReservation)

	body, _ := json.Marshal(dto.ReserveRequest{BookID: 42})
	req, _ := http.NewRequest("POST", "/reservations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReserve_Unauthenticated(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/reservations", h.Reserve)

	body, _ := json.Marshal(dto.ReserveRequest{BookID: 42})
	req, _ := http.NewRequest("POST", "/reservations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGet_OtherUsersReservationHidden(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.GET("/reservations/:id", fakeAuth("user-2", models.RoleStudent), h.Get)

	mockSvc.On("GetByID", mock.Anything, int64(1)).
		Return(&models.Reservation{ID: 1, UserID: "user-1"}, nil)

	req, _ := http.NewRequest("GET", "/reservations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGet_StaffSeesAnyReservation(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.GET("/reservations/:id", fakeAuth("staff-1", models.RoleLibrarian), h.Get)

	mockSvc.On("GetByID", mock.Anything, int64(1)).
		Return(&models.Reservation{ID: 1, UserID: "user-1"}, nil)

	req, _ := http.NewRequest("GET", "/reservations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancel_OwnQueuedReservation(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.DELETE("/reservations/:id", fakeAuth("user-1", models.RoleStudent), h.Cancel)

	mockSvc.On("GetByID", mock.Anything, int64(1)).
		Return(&models.Reservation{ID: 1, UserID: "user-1", State: models.StateQueueWait}, nil)
	mockSvc.On("Cancel", mock.Anything, int64(1), false).Return(nil)

	req, _ := http.NewRequest("DELETE", "/reservations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestCancel_TerminalConflict(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.DELETE("/reservations/:id", fakeAuth("staff-1", models.RoleAdmin), h.Cancel)

	mockSvc.On("Cancel", mock.Anything, int64(1), true).Return(service.ErrInvalidTransition)

	req, _ := http.NewRequest("DELETE", "/reservations/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSweep_ReturnsReport(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/sweep", fakeAuth("staff-1", models.RoleLibrarian), h.Sweep)

	mockSvc.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(service.SweepReport{Scanned: 5, Expired: 3, Promoted: 2}, nil)

	req, _ := http.NewRequest("POST", "/sweep", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.SweepResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Scanned)
	assert.Equal(t, 3, resp.Expired)
	assert.Equal(t, 2, resp.Promoted)
}

func TestCopyFreed_MissingFields(t *testing.T) {
	mockSvc := new(MockReservationService)
	h := NewReservationHandler(mockSvc)
	router := setupRouter()
	router.POST("/copy-freed", h.CopyFreed)

	req, _ := http.NewRequest("POST", "/copy-freed", bytes.NewBufferString(`{"book_id": 1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "CopyFreed")
}
