package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"unilib/internal/dto"
	"unilib/internal/service"

	"github.com/gin-gonic/gin"
)

type FineHandler struct {
	svc service.FineService
}

func NewFineHandler(svc service.FineService) *FineHandler {
	return &FineHandler{svc: svc}
}

func (h *FineHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.ListMine)
}

func (h *FineHandler) RegisterDeskRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/pay", h.Pay)
	rg.POST("/:id/waive", h.Waive)
	rg.GET("/users/:user_id", h.ListByUser)
}

func (h *FineHandler) ListMine(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	h.list(c, userID.(string))
}

func (h *FineHandler) ListByUser(c *gin.Context) {
	h.list(c, c.Param("user_id"))
}

func (h *FineHandler) list(c *gin.Context, userID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	fines, err := h.svc.ListByUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	outstanding, err := h.svc.OutstandingTotal(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.FineResponse, 0, len(fines))
	for _, f := range fines {
		items = append(items, dto.FromFineToResponse(f))
	}
	c.JSON(http.StatusOK, dto.FineListResponse{Items: items, Outstanding: outstanding})
}

func (h *FineHandler) Pay(c *gin.Context) {
	h.settle(c, h.svc.Pay)
}

func (h *FineHandler) Waive(c *gin.Context) {
	h.settle(c, h.svc.Waive)
}

func (h *FineHandler) settle(c *gin.Context, op func(context.Context, int64) error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fine id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := op(ctx, id); err != nil {
		if err == service.ErrFineNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fine settled"})
}
