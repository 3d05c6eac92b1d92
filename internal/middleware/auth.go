package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/service"
)

const userIDKey = "userID"

type SessionReader interface {
	CurrentUser() *model.User
}

type CapabilityChecker interface {
	Require(ctx context.Context, userID uuid.UUID, perm string) error
}

// RequireSession rejects the request unless a user is signed in.
func RequireSession(session SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := session.CurrentUser()
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "please sign in to continue"})
			return
		}
		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// RequireCapability checks perm against the admin table on every request.
// It must run after RequireSession.
func RequireCapability(authz CapabilityChecker, perm string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := authz.Require(c.Request.Context(), GetUserID(c), perm)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
		default:
			log.Error("check capability", "perm", perm, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	uid, _ := id.(uuid.UUID)
	return uid
}
