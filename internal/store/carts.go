package store

import (
	"context"
	"fmt"

	"casecommerce/internal/models"

	"github.com/jmoiron/sqlx"
)

// UpsertCartItem adds quantity to the user's line for productID, creating
// the cart and the line on first use. Both creations are single
// INSERT .. ON CONFLICT statements against unique keys, so concurrent calls
// for a new user converge on one cart and one line.
func (s *Store) UpsertCartItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	var item models.CartItem

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM product WHERE id = $1)", productID); err != nil {
			return fmt.Errorf("failed to check product: %w", err)
		}
		if !exists {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}

		var cartID int64
		err := tx.GetContext(ctx, &cartID, `
			INSERT INTO cart (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING cart_id`, userID)
		if err != nil {
			return translate(err)
		}

		err = tx.GetContext(ctx, &item, `
			INSERT INTO cart_item (cart_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_item.quantity + EXCLUDED.quantity
			RETURNING cart_item_id, cart_id, product_id, quantity`,
			cartID, productID, quantity)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCartItem removes the user's line for productID. Deleting a line that
// does not exist is not an error.
func (s *Store) DeleteCartItem(ctx context.Context, userID, productID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_item ci
		USING cart c
		WHERE ci.cart_id = c.cart_id AND c.user_id = $1 AND ci.product_id = $2`,
		userID, productID)
	return err
}

// RemoveCartItems removes every line of the user's cart whose product is in
// productIDs and returns how many were deleted.
func (s *Store) RemoveCartItems(ctx context.Context, userID int64, productIDs []int64) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		DELETE FROM cart_item ci
		USING cart c
		WHERE ci.cart_id = c.cart_id AND c.user_id = ? AND ci.product_id IN (?)`,
		userID, productIDs)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetCartByUser retrieves the cart owned by userID
func (s *Store) GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT cart_id, user_id, created_at FROM cart WHERE user_id = $1", userID)
	if err != nil {
		return nil, translate(err)
	}
	return &cart, nil
}

// ListCartItems returns the lines of a cart joined with product and category
func (s *Store) ListCartItems(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := s.db.SelectContext(ctx, &lines, `
		SELECT ci.cart_item_id, ci.product_id, ci.quantity,
		       p.name, p.description, p.price, p.stock, c.name AS category_name
		FROM cart_item ci
		JOIN product p ON ci.product_id = p.id
		LEFT JOIN product_category c ON p.category_id = c.id
		WHERE ci.cart_id = $1
		ORDER BY ci.cart_item_id`, cartID)
	return lines, err
}
