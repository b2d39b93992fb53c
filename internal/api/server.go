// Package api exposes the store over a JSON REST API built on gin.
//
// Routes under /api/cart, /api/orders and /api/users require a bearer token
// issued by /api/auth/login or /api/auth/register. Catalog reads are public;
// catalog writes require a token.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dshills/gocommerce/internal/account"
	"github.com/dshills/gocommerce/internal/cart"
	"github.com/dshills/gocommerce/internal/catalog"
	"github.com/dshills/gocommerce/internal/order"
	"github.com/dshills/gocommerce/internal/storage"
)

// Services groups the services the API delegates to
type Services struct {
	Storage  storage.Storage
	Accounts *account.Service
	Catalog  *catalog.Service
	Carts    *cart.Service
	Orders   *order.Service
}

// Config contains configuration for the HTTP server
type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration // default: 10s
}

// Server is the REST API
type Server struct {
	svc    Services
	config Config
	router *gin.Engine
}

// NewServer builds the router for the given services
func NewServer(svc Services, config Config) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{svc: svc, config: config}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.config.CORSOrigins) == 0 || slices.Contains(s.config.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.health)

	apiGroup := r.Group("/api")
	auth := authMiddleware(s.svc.Accounts)

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", s.register)
	authGroup.POST("/login", s.login)

	products := apiGroup.Group("/products")
	products.GET("", s.listProducts)
	products.GET("/:id", s.getProduct)
	products.GET("/:id/summary", s.getProductSummary)
	products.POST("", auth, s.createProduct)
	products.PUT("/:id", auth, s.updateProduct)
	products.DELETE("/:id", auth, s.deleteProduct)

	categories := apiGroup.Group("/categories")
	categories.GET("", s.listCategories)
	categories.GET("/:id", s.getCategory)
	categories.POST("", auth, s.createCategory)
	categories.PUT("/:id", auth, s.updateCategory)
	categories.DELETE("/:id", auth, s.deleteCategory)

	users := apiGroup.Group("/users", auth)
	users.GET("/me", s.getMe)
	users.PUT("/me", s.updateMe)
	users.DELETE("/me", s.deleteMe)
	users.GET("/me/preferences", s.getPreferences)
	users.PUT("/me/preferences", s.putPreferences)

	carts := apiGroup.Group("/cart", auth)
	carts.GET("", s.getCart)
	carts.POST("/items", s.addCartItem)
	carts.PUT("/items/:productId", s.updateCartItem)
	carts.DELETE("/items/:productId", s.removeCartItem)
	carts.DELETE("", s.clearCart)

	orders := apiGroup.Group("/orders", auth)
	orders.GET("", s.listOrders)
	orders.POST("", s.createOrder)
	orders.GET("/:id", s.getOrder)
	orders.PUT("/:id/status", s.updateOrderStatus)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	status, err := s.svc.Storage.GetStatus(c.Request.Context())
	if err != nil || !status.Health.DatabaseAccessible {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"schema_version": status.SchemaVersion,
	})
}
