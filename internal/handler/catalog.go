package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/dto"
	"github.com/flicky/casa-storefront/internal/service"
)

type CatalogHandler struct {
	svc *service.CatalogService
	log *slog.Logger
}

func NewCatalogHandler(svc *service.CatalogService, log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, log: log}
}

func (h *CatalogHandler) Featured(c *gin.Context) {
	products, err := h.svc.Featured(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": dto.ToProducts(products)})
}

func (h *CatalogHandler) List(c *gin.Context) {
	var req dto.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	products, err := h.svc.List(c.Request.Context(), service.ListProducts{Category: req.Category, Search: req.Search})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": dto.ToProducts(products)})
}

func (h *CatalogHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.svc.Categories(c.Request.Context())})
}

func (h *CatalogHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToProduct(p))
}
