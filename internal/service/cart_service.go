package service

import (
	"context"
	"errors"
	"fmt"

	"casecommerce/internal/models"
	"casecommerce/internal/store"
	"casecommerce/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxLineQuantity bounds the quantity of a single cart or order line. The
// binding tags of the request structs repeat it.
const maxLineQuantity = 10000

// CartService owns the cart consistency rules
type CartService struct {
	repo   CartRepository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo CartRepository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// AddToCartRequest is the body of POST /cart
type AddToCartRequest struct {
	UserID    int64 `json:"userId" binding:"required,gt=0"`
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0,max=10000"`
}

// RemoveFromCartRequest is the body of DELETE /cart
type RemoveFromCartRequest struct {
	UserID    int64 `json:"userId" binding:"required,gt=0"`
	ProductID int64 `json:"productId" binding:"required,gt=0"`
}

// AddToCart adds quantity of a product to the user's cart, creating the cart
// on first use. Repeated adds accumulate.
func (s *CartService) AddToCart(ctx context.Context, req *AddToCartRequest) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart",
		attribute.Int64("user_id", req.UserID),
		attribute.Int64("product_id", req.ProductID))
	defer span.End()

	if req.UserID <= 0 || req.ProductID <= 0 {
		return nil, validationError("userId and productId must be positive")
	}
	if req.Quantity <= 0 {
		return nil, validationError("quantity must be a positive number")
	}
	if req.Quantity > maxLineQuantity {
		return nil, validationError("quantity must be at most %d", maxLineQuantity)
	}

	item, err := s.repo.UpsertCartItem(ctx, req.UserID, req.ProductID, req.Quantity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, notFound("Product not found", err)
	case errors.Is(err, store.ErrForeignKey):
		return nil, notFound("User not found", err)
	case errors.Is(err, store.ErrOutOfRange):
		return nil, conflict(fmt.Sprintf("Cart quantity for a product cannot exceed %d", maxLineQuantity), err)
	case err != nil:
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to add item to cart: %w", err)
	}

	util.CartItemsAddedTotal.Inc()
	s.logger.Debug("Cart item upserted",
		zap.Int64("user_id", req.UserID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", item.Quantity))

	return item, nil
}

// RemoveFromCart deletes the user's line for a product. Removing a line that
// is not there succeeds.
func (s *CartService) RemoveFromCart(ctx context.Context, req *RemoveFromCartRequest) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveFromCart",
		attribute.Int64("user_id", req.UserID),
		attribute.Int64("product_id", req.ProductID))
	defer span.End()

	if req.UserID <= 0 || req.ProductID <= 0 {
		return validationError("userId and productId must be positive")
	}

	if err := s.repo.DeleteCartItem(ctx, req.UserID, req.ProductID); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	util.CartItemsRemovedTotal.Inc()
	return nil
}

// GetCart returns the user's cart with enriched lines. A user without a cart
// gets a NotFound error; an empty cart comes back with no items.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart", attribute.Int64("user_id", userID))
	defer span.End()

	if userID <= 0 {
		return nil, validationError("userId must be positive")
	}

	cart, err := s.repo.GetCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Cart not found for user", err)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	lines, err := s.repo.ListCartItems(ctx, cart.ID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	if lines == nil {
		lines = []models.CartLine{}
	}

	return &models.CartView{CartID: cart.ID, UserID: cart.UserID, Items: lines}, nil
}

// ClearPurchased drops the ordered products from the user's cart after a
// checkout.
func (s *CartService) ClearPurchased(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearPurchased", attribute.Int64("order_id", event.OrderID))
	defer span.End()

	productIDs := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	removed, err := s.repo.RemoveCartItems(ctx, event.UserID, productIDs)
	if err != nil {
		util.CartCleanupsTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return fmt.Errorf("failed to clear purchased items: %w", err)
	}

	util.CartCleanupsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Cleared purchased items from cart",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.Int64("removed", removed))
	return nil
}
