package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"casecommerce/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestUpsertCartItemUsesAtomicUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM product WHERE id = $1)")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("SET quantity = cart_item.quantity + EXCLUDED.quantity")).
		WithArgs(10, 3, 5).
		WillReturnRows(sqlmock.NewRows([]string{"cart_item_id", "cart_id", "product_id", "quantity"}).
			AddRow(99, 10, 3, 7))
	mock.ExpectCommit()

	item, err := s.UpsertCartItem(context.Background(), 7, 3, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(10), item.CartID)
	assert.Equal(t, int64(3), item.ProductID)
	assert.Equal(t, 7, item.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCartItemUnknownProductRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := s.UpsertCartItem(context.Background(), 7, 404, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCartItemUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart (user_id)")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "cart_user_id_fkey"})
	mock.ExpectRollback()

	_, err := s.UpsertCartItem(context.Background(), 12345, 3, 1)
	assert.ErrorIs(t, err, ErrForeignKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCartItemQuantityOverflow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart (user_id)")).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cart_item")).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "cart_item_quantity_check"})
	mock.ExpectRollback()

	_, err := s.UpsertCartItem(context.Background(), 7, 3, 9000)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCartByUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cart WHERE user_id = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"cart_id", "user_id", "created_at"}))

	_, err := s.GetCartByUser(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderCommitsWithAuthoritativePrices(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, price, stock FROM product WHERE id IN ($1) ORDER BY id FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price", "stock"}).AddRow(3, "20.00", 10))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "total_price", "status", "idempotency_key", "created_at"}).
			AddRow(42, 7, "50.00", "pending", nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE product SET stock = stock - $1 WHERE id = $2")).
		WithArgs(2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order := &models.Order{UserID: 7, TotalPrice: decimal.NewFromInt(50), Status: models.OrderStatusPending}
	err := s.CreateOrder(context.Background(), order, []OrderLine{{ProductID: 3, Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, int64(42), order.ID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(42), order.Items[0].OrderID)
	assert.True(t, decimal.NewFromInt(20).Equal(order.Items[0].Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRollsBackWhenItemsFail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price", "stock"}).AddRow(3, "20.00", 10))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "user_id", "total_price", "status", "idempotency_key", "created_at"}).
			AddRow(42, 7, "50.00", "pending", nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	order := &models.Order{UserID: 7, TotalPrice: decimal.NewFromInt(50), Status: models.OrderStatusPending}
	err := s.CreateOrder(context.Background(), order, []OrderLine{{ProductID: 3, Quantity: 2}})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price", "stock"}).AddRow(3, "20.00", 1))
	mock.ExpectRollback()

	order := &models.Order{UserID: 7, TotalPrice: decimal.NewFromInt(50), Status: models.OrderStatusPending}
	err := s.CreateOrder(context.Background(), order,
		[]OrderLine{{ProductID: 3, Quantity: 1}, {ProductID: 3, Quantity: 1}})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "price", "stock"}))
	mock.ExpectRollback()

	order := &models.Order{UserID: 7, TotalPrice: decimal.NewFromInt(1), Status: models.OrderStatusPending}
	err := s.CreateOrder(context.Background(), order, []OrderLine{{ProductID: 9, Quantity: 1}})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductReturnsImageURLs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT image_url FROM product_images WHERE product_id = $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"image_url"}).
			AddRow("/uploads/products/a.png").
			AddRow("/uploads/products/b.jpg"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM product WHERE id = $1")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	urls, err := s.DeleteProduct(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/products/a.png", "/uploads/products/b.jpg"}, urls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT image_url FROM product_images")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"image_url"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM product WHERE id = $1")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	urls, err := s.DeleteProduct(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, urls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	assert.Contains(t, schemaSQL, "ON orders (user_id, idempotency_key)")
	assert.NotContains(t, schemaSQL, "idempotency_key  VARCHAR(255) UNIQUE")
}

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(&pq.Error{Code: "23505"}), ErrDuplicate)
	assert.ErrorIs(t, translate(&pq.Error{Code: "23503"}), ErrForeignKey)
	assert.ErrorIs(t, translate(&pq.Error{Code: "23514"}), ErrOutOfRange)
	assert.ErrorIs(t, translate(&pq.Error{Code: "22003"}), ErrOutOfRange)

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}
