package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/dto"
	"github.com/flicky/casa-storefront/internal/service"
)

type WishlistHandler struct {
	svc *service.WishlistService
	log *slog.Logger
}

func NewWishlistHandler(svc *service.WishlistService, log *slog.Logger) *WishlistHandler {
	return &WishlistHandler{svc: svc, log: log}
}

func (h *WishlistHandler) GetWishlist(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToWishlist(h.svc.Snapshot()))
}

func (h *WishlistHandler) AddItem(c *gin.Context) {
	var req dto.AddWishlistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	item, err := h.svc.Add(c.Request.Context(), req.ProductID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ToWishlistItem(item))
}

func (h *WishlistHandler) DeleteItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.Remove(c.Request.Context(), itemID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
