package handler

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/flicky/casa-storefront/internal/middleware"
	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/service"
)

type RouterDeps struct {
	Auth           *service.AuthService
	Authz          middleware.CapabilityChecker
	Catalog        *service.CatalogService
	Cart           *service.CartService
	Wishlist       *service.WishlistService
	Admin          *service.AdminService
	Health         *HealthHandler
	AllowedOrigins []string
	Log            *slog.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	authH := NewAuthHandler(d.Auth, d.Log)
	catalogH := NewCatalogHandler(d.Catalog, d.Log)
	cartH := NewCartHandler(d.Cart, d.Log)
	wishlistH := NewWishlistHandler(d.Wishlist, d.Log)
	adminH := NewAdminHandler(d.Admin, d.Log)

	router := gin.Default()
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))
	router.GET("/healthz", d.Health.Healthz)
	router.GET("/readyz", d.Health.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.GET("/session", authH.Session)
		auth.POST("/sign-in", authH.SignIn)
		auth.POST("/sign-up", authH.SignUp)
		auth.POST("/sign-out", authH.SignOut)

		products := v1.Group("/products")
		products.GET("", catalogH.List)
		products.GET("/featured", catalogH.Featured)
		products.GET("/categories", catalogH.Categories)
		products.GET("/:id", catalogH.Get)

		signedIn := middleware.RequireSession(d.Auth)

		cart := v1.Group("/cart", signedIn)
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)

		wishlist := v1.Group("/wishlist", signedIn)
		wishlist.GET("", wishlistH.GetWishlist)
		wishlist.POST("/items", wishlistH.AddItem)
		wishlist.DELETE("/items/:id", wishlistH.DeleteItem)

		can := func(perm string) gin.HandlerFunc {
			return middleware.RequireCapability(d.Authz, perm, d.Log)
		}
		admin := v1.Group("/admin", signedIn)
		admin.GET("/stats", can(model.PermOrdersRead), adminH.Stats)
		admin.GET("/products", can(model.PermProductsRead), adminH.ListProducts)
		admin.POST("/products", can(model.PermProductsWrite), adminH.CreateProduct)
		admin.PUT("/products/:id", can(model.PermProductsWrite), adminH.UpdateProduct)
		admin.DELETE("/products/:id", can(model.PermProductsWrite), adminH.DeleteProduct)
		admin.POST("/products/:id/toggle", can(model.PermProductsWrite), adminH.ToggleProduct)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
