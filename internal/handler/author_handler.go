package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"unilib/internal/dto"
	"unilib/internal/middleware"
	"unilib/internal/models"
	"unilib/internal/repository"

	"github.com/gin-gonic/gin"
)

// AuthorHandler serves the author taxonomy. Thin enough that it talks
// to the repository directly.
type AuthorHandler struct {
	repo *repository.AuthorRepo
}

func NewAuthorHandler(repo *repository.AuthorRepo) *AuthorHandler {
	return &AuthorHandler{repo: repo}
}

func (h *AuthorHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.List)
	rg.POST("/", middleware.RequireRole(models.RoleLibrarian, models.RoleAdmin), h.Create)
	rg.GET("/:id/books", h.GetBooksByAuthor)
}

func (h *AuthorHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	list, err := h.repo.GetAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AuthorHandler) Create(c *gin.Context) {
	var in struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	author := models.Author{Name: in.Name}
	if err := h.repo.Create(ctx, &author); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (h *AuthorHandler) GetBooksByAuthor(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid author id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	books, err := h.repo.GetBooksByAuthor(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.BookResponse, 0, len(books))
	for _, b := range books {
		items = append(items, dto.FromBookToResponse(b))
	}
	c.JSON(http.StatusOK, items)
}
