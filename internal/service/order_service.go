package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casecommerce/internal/models"
	"casecommerce/internal/store"
	"casecommerce/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var validOrderStatuses = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

// OrderService handles order business logic
type OrderService struct {
	repo           OrderRepository
	cache          Cache
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service. The cache is the catalog
// cache, cleared of product entries once an order changes stock. A nil
// cache or publisher disables that part.
func NewOrderService(repo OrderRepository, cache Cache, eventPublisher EventPublisher) *OrderService {
	if cache == nil {
		cache = noopCache{}
	}
	if eventPublisher == nil {
		eventPublisher = noopPublisher{}
	}
	return &OrderService{
		repo:           repo,
		cache:          cache,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// PlaceOrderRequest is the body of POST /orders
type PlaceOrderRequest struct {
	UserID         int64              `json:"user_id" binding:"required,gt=0"`
	TotalPrice     *decimal.Decimal   `json:"total_price" binding:"required"`
	Status         string             `json:"status" binding:"required,oneof=pending processing shipped delivered cancelled"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" binding:"omitempty,max=255"`
}

// OrderItemRequest represents an item in an order. Price is accepted from
// older clients but never used; the product table is authoritative.
type OrderItemRequest struct {
	ProductID int64            `json:"product_id" binding:"required,gt=0"`
	Quantity  int              `json:"quantity" binding:"required,gt=0,max=10000"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// PlaceOrder validates the request, then writes the order and its items in
// one transaction. Nothing is written when validation fails.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder", attribute.Int64("user_id", req.UserID))
	defer span.End()

	if err := validatePlaceOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, nil
		}
	}

	order := &models.Order{
		UserID:     req.UserID,
		TotalPrice: *req.TotalPrice,
		Status:     req.Status,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	lines := make([]store.OrderLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = store.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	start := time.Now()
	err := s.repo.CreateOrder(ctx, order, lines)
	util.OrderPlaceLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var stockErr *store.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, conflict(fmt.Sprintf("Insufficient stock for product %d", stockErr.ProductID), err)
		case errors.Is(err, store.ErrNotFound):
			util.OrdersFailedTotal.WithLabelValues("unknown_product").Inc()
			return nil, notFound("Product not found", err)
		case errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "":
			// Lost a race with a concurrent request carrying the same key.
			existing, findErr := s.findByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if findErr == nil && existing != nil {
				return existing, nil
			}
			return nil, conflict("Order with this idempotency key already exists", err)
		case errors.Is(err, store.ErrForeignKey):
			util.OrdersFailedTotal.WithLabelValues("unknown_user").Inc()
			return nil, notFound("User not found", err)
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.cache.DeletePrefix(ctx, productKeyPrefix); err != nil {
		s.logger.Warn("Failed to invalidate product cache",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int("items", len(order.Items)))

	s.publishOrderPlaced(ctx, order)
	return order, nil
}

// ListOrders returns every order of the user with its items nested. Orders
// without items carry an empty list.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.Int64("user_id", userID))
	defer span.End()

	if userID <= 0 {
		return nil, validationError("user_id must be a positive integer")
	}

	orders, err := s.repo.ListOrdersByUser(ctx, userID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	if err := s.attachItems(ctx, orders); err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	order, err := s.repo.GetOrderByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}

	orders := []models.Order{*order}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items of all orders in one query and groups them.
func (s *OrderService) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
	}

	items, err := s.repo.ListOrderItems(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to list order items: %w", err)
	}

	index := make(map[int64]int, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
	}
	for _, item := range items {
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return nil
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		Items:      items,
	}

	if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func validatePlaceOrder(req *PlaceOrderRequest) error {
	if req.UserID <= 0 {
		return validationError("user_id is required")
	}
	if req.TotalPrice == nil {
		return validationError("total_price is required")
	}
	if req.TotalPrice.IsNegative() {
		return validationError("total_price must not be negative")
	}
	if !validOrderStatuses[req.Status] {
		return validationError("status must be one of pending, processing, shipped, delivered, cancelled")
	}
	if len(req.Items) == 0 {
		return validationError("items must contain at least one entry")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return validationError("items[%d].product_id is required", i)
		}
		if item.Quantity <= 0 {
			return validationError("items[%d].quantity must be positive", i)
		}
		if item.Quantity > maxLineQuantity {
			return validationError("items[%d].quantity must be at most %d", i, maxLineQuantity)
		}
	}
	return nil
}
