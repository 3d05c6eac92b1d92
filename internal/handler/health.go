package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/casa-storefront/internal/rowstore"
)

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type amqpConn interface {
	IsClosed() bool
}

// HealthHandler reports dependency status. Redis and RabbitMQ are optional
// and reported as disabled when not configured.
type HealthHandler struct {
	store rowstore.Store
	redis redisPinger
	amqp  amqpConn
}

func NewHealthHandler(store rowstore.Store, redisClient *redis.Client, conn *amqp.Connection) *HealthHandler {
	h := &HealthHandler{store: store}
	if redisClient != nil {
		h.redis = redisClient
	}
	if conn != nil {
		h.amqp = conn
	}
	return h
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	resp := gin.H{"status": "ok", "backend": "connected", "redis": "disabled", "rabbitmq": "disabled"}
	ready := true

	// The not-configured stub is a supported mode, not an outage.
	if err := h.store.Ping(ctx); err != nil {
		if errors.Is(err, rowstore.ErrNotConfigured) {
			resp["backend"] = "not_configured"
		} else {
			resp["backend"] = "unavailable"
			ready = false
		}
	}
	if h.redis != nil {
		resp["redis"] = "connected"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp["redis"] = "unavailable"
			ready = false
		}
	}
	if h.amqp != nil {
		resp["rabbitmq"] = "connected"
		if h.amqp.IsClosed() {
			resp["rabbitmq"] = "unavailable"
			ready = false
		}
	}

	if !ready {
		resp["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
