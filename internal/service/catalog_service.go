package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casecommerce/internal/models"
	"casecommerce/internal/store"
	"casecommerce/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	keyCategories         = "catalog:categories"
	keyCategory           = "catalog:category:%d"
	keyProducts           = "catalog:products"
	keyProductsByCategory = "catalog:products:category:%d"
	keyProduct            = "catalog:product:%d"

	// Covers every product listing and product detail key.
	productKeyPrefix = "catalog:product"
)

// CatalogService serves categories and products through a read-through cache
type CatalogService struct {
	repo   CatalogRepository
	cache  Cache
	images ImageRemover
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a catalog service. A nil cache disables caching;
// a nil image remover leaves image files of deleted products in place.
func NewCatalogService(repo CatalogRepository, cache Cache, images ImageRemover, ttl time.Duration) *CatalogService {
	if cache == nil {
		cache = noopCache{}
	}
	if images == nil {
		images = noopImages{}
	}
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		images: images,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest is the body of POST /products. ImageURLs is filled in
// by the upload handler, never from JSON.
type CreateProductRequest struct {
	Name        string           `json:"name" binding:"required,max=255"`
	Description string           `json:"description" binding:"max=10000"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Stock       *int             `json:"stock" binding:"required,min=0"`
	CategoryID  *int64           `json:"category_id" binding:"omitempty,gt=0"`
	ImageURLs   []string         `json:"-"`
}

// UpdateProductRequest is the body of PUT /products/:id; absent fields are
// left unchanged.
type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string          `json:"description" binding:"omitempty,max=10000"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	CategoryID  *int64           `json:"category_id" binding:"omitempty,gt=0"`
}

// ListCategories returns all categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	return readThrough(ctx, s, "categories", keyCategories, func() ([]models.Category, error) {
		return s.repo.ListCategories(ctx)
	})
}

// GetCategory returns one category
func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetCategory", attribute.Int64("category_id", id))
	defer span.End()

	category, err := readThrough(ctx, s, "category", fmt.Sprintf(keyCategory, id), func() (*models.Category, error) {
		return s.repo.GetCategory(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Category not found", err)
	}
	return category, err
}

// ListProducts returns every product with category name and images
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	return readThrough(ctx, s, "products", keyProducts, func() ([]models.Product, error) {
		return s.repo.ListProducts(ctx)
	})
}

// ListProductsByCategory returns the products of one category
func (s *CatalogService) ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProductsByCategory", attribute.Int64("category_id", categoryID))
	defer span.End()

	return readThrough(ctx, s, "products_by_category", fmt.Sprintf(keyProductsByCategory, categoryID), func() ([]models.Product, error) {
		return s.repo.ListProductsByCategory(ctx, categoryID)
	})
}

// GetProduct returns one product
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct", attribute.Int64("product_id", id))
	defer span.End()

	product, err := readThrough(ctx, s, "product", fmt.Sprintf(keyProduct, id), func() (*models.Product, error) {
		return s.repo.GetProduct(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Product not found", err)
	}
	return product, err
}

// CreateProduct stores a new product and its image URLs
func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if req.Price == nil || req.Price.IsNegative() {
		return nil, validationError("price is required and must not be negative")
	}
	if req.Stock == nil || *req.Stock < 0 {
		return nil, validationError("stock is required and must not be negative")
	}

	product, err := s.repo.CreateProduct(ctx, store.ProductInput{
		Name:        name,
		Description: req.Description,
		Price:       *req.Price,
		Stock:       *req.Stock,
		CategoryID:  req.CategoryID,
		ImageURLs:   req.ImageURLs,
	})
	if errors.Is(err, store.ErrForeignKey) {
		return nil, notFound("Category not found", err)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.invalidateProducts(ctx)
	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.Int("images", len(req.ImageURLs)))
	return product, nil
}

// UpdateProduct applies a partial update
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *UpdateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct", attribute.Int64("product_id", id))
	defer span.End()

	patch := store.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
	}
	if patch.Empty() {
		return nil, validationError("at least one field must be provided")
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, validationError("price must not be negative")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return nil, validationError("stock must not be negative")
	}

	product, err := s.repo.UpdateProduct(ctx, id, patch)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound("Product not found", err)
	case errors.Is(err, store.ErrForeignKey):
		return nil, notFound("Category not found", err)
	case err != nil:
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.invalidateProducts(ctx)
	return product, nil
}

// DeleteProduct removes a product that no order refers to, then its image
// files.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct", attribute.Int64("product_id", id))
	defer span.End()

	imageURLs, err := s.repo.DeleteProduct(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound("Product not found", err)
	case errors.Is(err, store.ErrForeignKey):
		return conflict("Product is referenced by existing orders", err)
	case err != nil:
		util.RecordError(span, err)
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.images.Remove(imageURLs)
	s.invalidateProducts(ctx)
	s.logger.Info("Product deleted",
		zap.Int64("product_id", id),
		zap.Int("images", len(imageURLs)))
	return nil
}

func (s *CatalogService) invalidateProducts(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, productKeyPrefix); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}

// readThrough serves key from the cache, loading and storing it on a miss.
// Cache failures are logged and never fail the read.
func readThrough[T any](ctx context.Context, s *CatalogService, resource, key string, load func() (T, error)) (T, error) {
	var cached T
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		util.CatalogCacheHitsTotal.WithLabelValues(resource).Inc()
		return cached, nil
	}
	util.CatalogCacheMissesTotal.WithLabelValues(resource).Inc()

	value, err := load()
	if err != nil {
		return value, err
	}

	if err := s.cache.SetJSON(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
