package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Category represents a product category
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Product represents a product in the catalog
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	CategoryID   *int64          `db:"category_id" json:"category_id"`
	CategoryName *string         `db:"category_name" json:"category_name,omitempty"`
	Images       []string        `db:"-" json:"images"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// ProductImage is an uploaded image attached to a product
type ProductImage struct {
	ID        int64  `db:"image_id" json:"image_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	ImageURL  string `db:"image_url" json:"image_url"`
}

// Cart is the single pending-purchase container of a user
type Cart struct {
	ID        int64     `db:"cart_id" json:"cart_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is a (cart, product) quantity pairing
type CartItem struct {
	ID        int64 `db:"cart_item_id" json:"cart_item_id"`
	CartID    int64 `db:"cart_id" json:"cart_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartLine is a cart item enriched with its product and category
type CartLine struct {
	ID           int64           `db:"cart_item_id" json:"cart_item_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	CategoryName *string         `db:"category_name" json:"category_name"`
}

// CartView is what GetCart returns: an existing cart and its lines,
// possibly none.
type CartView struct {
	CartID int64      `json:"cart_id"`
	UserID int64      `json:"user_id"`
	Items  []CartLine `json:"items"`
}

// Order represents a customer order
type Order struct {
	ID             int64           `db:"order_id" json:"order_id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	Status         string          `db:"status" json:"status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []OrderItem     `db:"-" json:"items"`
}

// OrderItem is an order line. Price is the product price captured when the
// order was placed.
type OrderItem struct {
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ProductName string          `db:"product_name" json:"product_name,omitempty"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// User is an account. PasswordHash never leaves the process.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
