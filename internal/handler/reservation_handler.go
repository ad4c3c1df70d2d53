package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"unilib/internal/dto"
	"unilib/internal/models"
	"unilib/internal/service"

	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	svc service.ReservationService
}

func NewReservationHandler(svc service.ReservationService) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

// RegisterRoutes mounts the patron-facing surface. Callers are expected
// to be authenticated already.
func (h *ReservationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/", h.Reserve)
	rg.GET("/", h.ListMine)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Cancel)
}

// RegisterAdminRoutes mounts the staff surface. Role checks are applied
// by the caller on the whole group.
func (h *ReservationHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/books/:book_id", h.ListByBook)
	rg.POST("/:id/require-approval", h.RequireApproval)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/sweep", h.Sweep)
}

// RegisterServiceRoutes mounts the machine-to-machine surface, guarded
// by API key rather than a user token.
func (h *ReservationHandler) RegisterServiceRoutes(rg *gin.RouterGroup) {
	rg.POST("/copy-freed", h.CopyFreed)
}

// Reserve places a reservation for the authenticated user.
func (h *ReservationHandler) Reserve(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Patrons cannot pick their own priority; only staff may set it.
	priority := 0
	if isStaff(c) {
		priority = req.Priority
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.svc.Request(ctx, req.BookID, userID.(string), priority)
	if err != nil {
		switch err {
		case service.ErrDuplicateActiveReservation:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.FromReservationToResponse(*res))
}

// ListMine returns the authenticated user's reservation history.
func (h *ReservationHandler) ListMine(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	reservations, err := h.svc.ListByUser(ctx, userID.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toReservationList(reservations))
}

// Get returns one reservation. Patrons can only see their own.
func (h *ReservationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.svc.GetByID(ctx, id)
	if err != nil {
		if err == service.ErrReservationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !isStaff(c) && res.UserID != c.GetString("userID") {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrReservationNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.FromReservationToResponse(*res))
}

// Cancel cancels a live reservation. Patrons cancel their own; staff
// can cancel anyone's, which also triggers a revocation notice.
func (h *ReservationHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	byStaff := isStaff(c)
	if !byStaff {
		res, err := h.svc.GetByID(ctx, id)
		if err != nil {
			if err == service.ErrReservationNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if res.UserID != c.GetString("userID") {
			c.JSON(http.StatusNotFound, gin.H{"error": service.ErrReservationNotFound.Error()})
			return
		}
	}

	if err := h.svc.Cancel(ctx, id, byStaff); err != nil {
		switch err {
		case service.ErrReservationNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reservation cancelled"})
}

// ListByBook returns the live queue for a title, in fulfillment order.
func (h *ReservationHandler) ListByBook(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	reservations, err := h.svc.ListByBook(ctx, bookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toReservationList(reservations))
}

func (h *ReservationHandler) RequireApproval(c *gin.Context) {
	h.transition(c, h.svc.RequireApproval)
}

func (h *ReservationHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

func (h *ReservationHandler) transition(c *gin.Context, op func(context.Context, int64) error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := op(ctx, id); err != nil {
		switch err {
		case service.ErrReservationNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTransition:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Sweep runs an on-demand expiration pass. The background sweeper runs
// the same thing on a timer; this endpoint exists for operators.
func (h *ReservationHandler) Sweep(c *gin.Context) {
	// sweeps touch every overdue hold, give them more room than a read
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	report, err := h.svc.Sweep(ctx, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SweepResponse{
		Scanned:  report.Scanned,
		Expired:  report.Expired,
		Promoted: report.Promoted,
		Failed:   report.Failed,
	})
}

// CopyFreed lets an external system (self-checkout kiosk, sorting
// machine) report a returned copy so the promotion cascade runs.
func (h *ReservationHandler) CopyFreed(c *gin.Context) {
	var req dto.CopyFreedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.svc.CopyFreed(ctx, req.BookID, req.CopyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "copy processed"})
}

func toReservationList(reservations []models.Reservation) dto.ReservationListResponse {
	items := make([]dto.ReservationResponse, 0, len(reservations))
	for _, r := range reservations {
		items = append(items, dto.FromReservationToResponse(r))
	}
	return dto.ReservationListResponse{Items: items, Total: len(items)}
}

func isStaff(c *gin.Context) bool {
	role := c.GetString("role")
	return role == models.RoleLibrarian || role == models.RoleAdmin
}
