package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/casa-storefront/internal/authclient"
	"github.com/flicky/casa-storefront/internal/rowstore"
	"github.com/flicky/casa-storefront/internal/service"
)

// writeError maps service and backend errors to a status code. Unknown
// errors are logged and hidden from the client.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	var verr *service.ValidationError
	var aerr *authclient.Error
	var serr *rowstore.Error

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, service.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "please sign in to continue"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, service.ErrCartItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
	case errors.Is(err, service.ErrWishlistItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "wishlist item not found"})
	case errors.Is(err, rowstore.ErrNotConfigured), errors.Is(err, authclient.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend not configured"})
	case errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500:
		c.JSON(http.StatusBadRequest, gin.H{"error": aerr.Message})
	case errors.As(err, &serr):
		log.Error("backend request failed", "op", serr.Op, "table", serr.Table, "status", serr.Status, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend request failed"})
	default:
		log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
