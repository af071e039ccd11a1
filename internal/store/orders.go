package store

import (
	"context"
	"fmt"
	"sort"

	"casecommerce/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// OrderLine is a requested product quantity.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// InsufficientStockError reports a product that cannot cover an order.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

type lockedProduct struct {
	ID    int64           `db:"id"`
	Price decimal.Decimal `db:"price"`
	Stock int             `db:"stock"`
}

// CreateOrder writes the order row, its items priced from the product table,
// and the stock decrements in a single transaction. On any failure nothing
// is persisted. order.ID, order.CreatedAt and order.Items are filled in.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, lines []OrderLine) error {
	requested := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, seen := requested[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}
	// Lock rows in a stable order so concurrent orders cannot deadlock.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In(
			"SELECT id, price, stock FROM product WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
		if err != nil {
			return err
		}

		var locked []lockedProduct
		if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}

		byID := make(map[int64]lockedProduct, len(locked))
		for _, p := range locked {
			byID[p.ID] = p
		}
		for _, id := range ids {
			p, ok := byID[id]
			if !ok {
				return fmt.Errorf("product %d: %w", id, ErrNotFound)
			}
			if p.Stock < requested[id] {
				return &InsufficientStockError{ProductID: id, Available: p.Stock, Requested: requested[id]}
			}
		}

		err = tx.GetContext(ctx, order, `
			INSERT INTO orders (user_id, total_price, status, idempotency_key)
			VALUES ($1, $2, $3, $4)
			RETURNING order_id, user_id, total_price, status, idempotency_key, created_at`,
			order.UserID, order.TotalPrice, order.Status, order.IdempotencyKey)
		if err != nil {
			return translate(err)
		}

		items := make([]models.OrderItem, len(lines))
		for i, l := range lines {
			items[i] = models.OrderItem{
				OrderID:   order.ID,
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     byID[l.ProductID].Price,
			}
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES (:order_id, :product_id, :quantity, :price)`, items); err != nil {
			return fmt.Errorf("failed to insert order items: %w", translate(err))
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"UPDATE product SET stock = stock - $1 WHERE id = $2",
				requested[id], id); err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
		}

		order.Items = items
		return nil
	})
}

// GetOrderByIdempotencyKey retrieves the order a user placed with key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT order_id, user_id, total_price, status, idempotency_key, created_at
		FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT order_id, user_id, total_price, status, idempotency_key, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, order_id DESC`, userID)
	return orders, err
}

// ListOrderItems retrieves the items of the given orders with product names
func (s *Store) ListOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []models.OrderItem{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT oi.order_id, oi.product_id, oi.quantity, oi.price, p.name AS product_name
		FROM order_items oi
		JOIN product p ON oi.product_id = p.id
		WHERE oi.order_id IN (?)`, orderIDs)
	if err != nil {
		return nil, err
	}

	items := []models.OrderItem{}
	err = s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...)
	return items, err
}
