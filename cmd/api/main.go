package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/casa-storefront/internal/authclient"
	"github.com/flicky/casa-storefront/internal/backend"
	"github.com/flicky/casa-storefront/internal/config"
	"github.com/flicky/casa-storefront/internal/dto"
	"github.com/flicky/casa-storefront/internal/events"
	"github.com/flicky/casa-storefront/internal/handler"
	"github.com/flicky/casa-storefront/internal/service"
	"github.com/flicky/casa-storefront/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (optional): persists the auth session across restarts.
	var redisClient *redis.Client
	var storage authclient.Storage = authclient.NewMemoryStorage()
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		storage = authclient.NewRedisStorage(redisClient, cfg.Redis.SessionKey)
		log.Info("connected to Redis")
	}

	// RabbitMQ (optional): publishes session, cart and wishlist changes.
	var amqpConn *amqp.Connection
	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQ.URL != "" {
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		amqpCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer amqpCh.Close()

		if err := events.SetupExchange(amqpCh, cfg.RabbitMQ.Exchange); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}
		publisher = events.NewAMQPPublisher(amqpCh, cfg.RabbitMQ.Exchange)
		log.Info("connected to RabbitMQ")
	}

	be, err := backend.New(ctx, cfg, storage, log)
	if err != nil {
		log.Error("connect to backend", "error", err)
		os.Exit(1)
	}
	defer be.Close()

	// Services
	authz := service.NewAuthorizer(be.Store)
	authSvc := service.NewAuthService(be.Auth, be.Store, authz, cfg.Auth.BootstrapAdminEmail, log)
	catalogSvc := service.NewCatalogService(be.Store, cfg.Catalog.FeaturedLimit)
	cartSvc := service.NewCartService(be.Store, authSvc, log)
	wishlistSvc := service.NewWishlistService(be.Store, authSvc, log)
	adminSvc := service.NewAdminService(be.Store, cfg.Catalog.LowStockThreshold, log)

	followSession(ctx, authSvc, cartSvc, wishlistSvc, publisher, log)
	authSvc.Start(ctx)
	defer authSvc.Close()

	refresher := worker.NewSessionRefresher(be.Auth, cfg.Auth.RefreshInterval, cfg.Auth.RefreshMargin, log)
	refresher.Start(ctx)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:           authSvc,
		Authz:          authz,
		Catalog:        catalogSvc,
		Cart:           cartSvc,
		Wishlist:       wishlistSvc,
		Admin:          adminSvc,
		Health:         handler.NewHealthHandler(be.Store, redisClient, amqpConn),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port, "degraded", be.Degraded)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	refresher.Stop()
	cancel()
	log.Info("server stopped")
}

// followSession keeps cart and wishlist bound to the signed-in user and
// forwards every change to the publisher.
func followSession(ctx context.Context, auth *service.AuthService, cart *service.CartService,
	wishlist *service.WishlistService, pub events.Publisher, log *slog.Logger) {
	publish := func(t events.Type, userID uuid.UUID, payload any) {
		e := events.Event{Type: t, UserID: userID, OccurredAt: time.Now().UTC(), Payload: payload}
		if err := pub.Publish(ctx, e); err != nil {
			log.Warn("publish event", "type", t, "error", err)
		}
	}

	auth.Subscribe(func(s service.SessionSnapshot) {
		var userID uuid.UUID
		switch s.State {
		case service.StateAuthenticated:
			userID = s.User.ID
			if err := cart.Load(ctx, userID); err != nil {
				log.Error("load cart", "user_id", userID, "error", err)
			}
			if err := wishlist.Load(ctx, userID); err != nil {
				log.Error("load wishlist", "user_id", userID, "error", err)
			}
		case service.StateAnonymous:
			cart.Reset()
			wishlist.Reset()
		}
		publish(events.TypeSessionChanged, userID, dto.ToSession(s))
	})
	cart.Subscribe(func(s service.CartSnapshot) {
		publish(events.TypeCartChanged, s.UserID, dto.ToCart(s))
	})
	wishlist.Subscribe(func(s service.WishlistSnapshot) {
		publish(events.TypeWishlistChanged, s.UserID, dto.ToWishlist(s))
	})
}
