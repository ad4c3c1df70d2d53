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

type LoanHandler struct {
	svc service.LoanService
}

func NewLoanHandler(svc service.LoanService) *LoanHandler {
	return &LoanHandler{svc: svc}
}

// RegisterRoutes mounts the patron surface: loan history only. Issuing
// and returning happen at the desk.
func (h *LoanHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.ListMine)
}

// RegisterDeskRoutes mounts the circulation-desk surface. Guarded by
// staff role or desk API key by the caller.
func (h *LoanHandler) RegisterDeskRoutes(rg *gin.RouterGroup) {
	rg.POST("/", h.Issue)
	rg.POST("/:id/return", h.Return)
	rg.POST("/flag-overdue", h.FlagOverdue)
	rg.GET("/users/:user_id", h.ListByUser)
}

func (h *LoanHandler) ListMine(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	h.list(c, userID.(string))
}

func (h *LoanHandler) ListByUser(c *gin.Context) {
	h.list(c, c.Param("user_id"))
}

func (h *LoanHandler) list(c *gin.Context, userID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	loans, err := h.svc.ListByUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.LoanResponse, 0, len(loans))
	for _, l := range loans {
		items = append(items, dto.FromLoanToResponse(l))
	}
	c.JSON(http.StatusOK, dto.LoanListResponse{Items: items, Total: len(items)})
}

// Issue creates a loan, either fulfilling a ready pickup hold
// (reservation_id) or lending an available copy directly
// (copy_id + user_id).
func (h *LoanHandler) Issue(c *gin.Context) {
	var req dto.IssueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var (
		loan *models.Loan
		err  error
	)
	switch {
	case req.ReservationID != nil:
		loan, err = h.svc.IssueFromReservation(ctx, *req.ReservationID)
	case req.CopyID != nil && req.UserID != nil:
		loan, err = h.svc.IssueDirect(ctx, *req.CopyID, *req.UserID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide reservation_id, or copy_id and user_id"})
		return
	}

	if err != nil {
		switch err {
		case service.ErrReservationNotFound, service.ErrCopyNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrInvalidTransition, service.ErrCopyNotAvailable, service.ErrLoanLimitReached:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.FromLoanToResponse(*loan))
}

// Return closes a loan and hands the freed copy to the reservation
// engine, so the response may already have promoted the next hold.
func (h *LoanHandler) Return(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	loan, err := h.svc.Return(ctx, id)
	if err != nil {
		switch err {
		case service.ErrLoanNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case service.ErrLoanAlreadyReturned:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, dto.FromLoanToResponse(*loan))
}

// FlagOverdue marks loans past due and notifies borrowers. The
// background worker runs this on a timer; the endpoint is for
// operators.
func (h *LoanHandler) FlagOverdue(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	flagged, err := h.svc.FlagOverdue(ctx, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flagged": flagged})
}
