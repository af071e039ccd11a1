package api

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"casecommerce/internal/auth"
	"casecommerce/internal/models"
	"casecommerce/internal/service"
	"casecommerce/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CartService is the cart half of the Cart/Order Manager
type CartService interface {
	AddToCart(ctx context.Context, req *service.AddToCartRequest) (*models.CartItem, error)
	RemoveFromCart(ctx context.Context, req *service.RemoveFromCartRequest) error
	GetCart(ctx context.Context, userID int64) (*models.CartView, error)
}

// OrderService is the order half of the Cart/Order Manager
type OrderService interface {
	PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
}

// CatalogService serves categories and products
type CatalogService interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, req *service.CreateProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *service.UpdateProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// UserService handles accounts and sessions
type UserService interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// ImageStore persists uploaded product images
type ImageStore interface {
	SaveAll(files []*multipart.FileHeader) ([]string, error)
	Remove(urls []string)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the handler to its collaborators. Images may be nil, in
// which case multipart product uploads are rejected.
type Options struct {
	Carts          CartService
	Orders         OrderService
	Catalog        CatalogService
	Users          UserService
	Images         ImageStore
	DB             Pinger
	Tokens         *auth.TokenManager
	Policy         *auth.Policy
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Handler contains HTTP handlers
type Handler struct {
	carts   CartService
	orders  OrderService
	catalog CatalogService
	users   UserService
	images  ImageStore
	db      Pinger
	tokens  *auth.TokenManager
	policy  *auth.Policy
	timeout time.Duration
	origins []string
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	policy := opts.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	return &Handler{
		carts:   opts.Carts,
		orders:  opts.Orders,
		catalog: opts.Catalog,
		users:   opts.Users,
		images:  opts.Images,
		db:      opts.DB,
		tokens:  opts.Tokens,
		policy:  policy,
		timeout: opts.RequestTimeout,
		origins: opts.AllowedOrigins,
		logger:  util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(h.logger))
	router.Use(prometheusMiddleware())
	router.Use(corsMiddleware(h.origins))
	router.Use(timeoutMiddleware(h.timeout))

	router.GET("/", h.root)
	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/categories", h.listCategories)
	router.GET("/categories/:id", h.getCategory)
	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)
	router.GET("/products/category/:categoryId", h.listProductsByCategory)

	router.POST("/register", h.register)
	router.POST("/login", h.login)

	catalogAdmin := router.Group("/", h.authenticate(), h.requireCapability(auth.ManageCatalog))
	{
		catalogAdmin.POST("/products", h.createProduct)
		catalogAdmin.PUT("/products/:id", h.updateProduct)
		catalogAdmin.DELETE("/products/:id", h.deleteProduct)
	}

	authed := router.Group("/", h.authenticate())
	{
		authed.POST("/cart", h.addToCart)
		authed.GET("/cart/:userId", h.getCart)
		authed.DELETE("/cart", h.removeFromCart)

		authed.POST("/orders", h.placeOrder)
		authed.GET("/orders", h.listOrders)

		authed.GET("/user/:id", h.getUser)
	}
}

func (h *Handler) root(c *gin.Context) {
	c.String(http.StatusOK, "API is working")
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only while the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
