package service

import (
	"context"
	"time"

	"casecommerce/internal/models"
	"casecommerce/internal/store"
)

// CartRepository is the cart part of the relational store.
type CartRepository interface {
	UpsertCartItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, userID, productID int64) error
	RemoveCartItems(ctx context.Context, userID int64, productIDs []int64) (int64, error)
	GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartLine, error)
}

// OrderRepository is the order part of the relational store.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, lines []store.OrderLine) error
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error)
}

// CatalogRepository is the category/product part of the relational store.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, in store.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch store.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) ([]string, error)
}

// UserRepository is the account part of the relational store.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// EventPublisher publishes domain events after they are committed.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// Cache is a best-effort JSON cache.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ImageRemover deletes stored product images by their public URLs.
type ImageRemover interface {
	Remove(urls []string)
}

type noopCache struct{}

func (noopCache) GetJSON(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (noopCache) SetJSON(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCache) DeletePrefix(context.Context, string) error                        { return nil }

type noopImages struct{}

func (noopImages) Remove([]string) {}

type noopPublisher struct{}

func (noopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }
