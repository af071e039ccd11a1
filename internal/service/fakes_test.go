package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"casecommerce/internal/models"
	"casecommerce/internal/store"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for store.Store that mirrors its error
// contract.
type memStore struct {
	mu sync.Mutex

	nextID     int64
	users      map[int64]*models.User
	categories map[int64]models.Category
	products   map[int64]models.Product
	carts      map[int64]int64 // user_id -> cart_id
	cartItems  map[int64]map[int64]*models.CartItem
	orders     []models.Order
	orderItems []models.OrderItem

	createOrderCalls int
	failCreateOrder  error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     100,
		users:      map[int64]*models.User{},
		categories: map[int64]models.Category{},
		products:   map[int64]models.Product{},
		carts:      map[int64]int64{},
		cartItems:  map[int64]map[int64]*models.CartItem{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addUser(id int64) {
	m.users[id] = &models.User{ID: id, Username: fmt.Sprintf("user%d", id), Role: models.RoleUser}
}

func (m *memStore) addProduct(id int64, price string, stock int) {
	m.products[id] = models.Product{
		ID:     id,
		Name:   fmt.Sprintf("product-%d", id),
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Images: []string{},
	}
}

func (m *memStore) UpsertCartItem(_ context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[productID]; !ok {
		return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("%w: cart_user_id_fkey", store.ErrForeignKey)
	}

	cartID, ok := m.carts[userID]
	if !ok {
		cartID = m.id()
		m.carts[userID] = cartID
		m.cartItems[cartID] = map[int64]*models.CartItem{}
	}

	item, ok := m.cartItems[cartID][productID]
	if !ok {
		item = &models.CartItem{ID: m.id(), CartID: cartID, ProductID: productID}
	}
	if item.Quantity+quantity > 10000 {
		return nil, fmt.Errorf("%w: cart_item_quantity_check", store.ErrOutOfRange)
	}
	m.cartItems[cartID][productID] = item
	item.Quantity += quantity

	copied := *item
	return &copied, nil
}

func (m *memStore) DeleteCartItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cartID, ok := m.carts[userID]; ok {
		delete(m.cartItems[cartID], productID)
	}
	return nil
}

func (m *memStore) RemoveCartItems(_ context.Context, userID int64, productIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cartID, ok := m.carts[userID]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, id := range productIDs {
		if _, ok := m.cartItems[cartID][id]; ok {
			delete(m.cartItems[cartID], id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetCartByUser(_ context.Context, userID int64) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cartID, ok := m.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.Cart{ID: cartID, UserID: userID}, nil
}

func (m *memStore) ListCartItems(_ context.Context, cartID int64) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := []models.CartLine{}
	for _, item := range m.cartItems[cartID] {
		p := m.products[item.ProductID]
		lines = append(lines, models.CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
		})
	}
	return lines, nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, lines []store.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createOrderCalls++
	if m.failCreateOrder != nil {
		return m.failCreateOrder
	}
	if _, ok := m.users[order.UserID]; !ok {
		return fmt.Errorf("%w: orders_user_id_fkey", store.ErrForeignKey)
	}
	if order.IdempotencyKey != nil {
		for _, o := range m.orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("%w: orders_idempotency_key_key", store.ErrDuplicate)
			}
		}
	}

	requested := map[int64]int{}
	for _, l := range lines {
		if _, ok := m.products[l.ProductID]; !ok {
			return fmt.Errorf("product %d: %w", l.ProductID, store.ErrNotFound)
		}
		requested[l.ProductID] += l.Quantity
	}
	for id, qty := range requested {
		if p := m.products[id]; p.Stock < qty {
			return &store.InsufficientStockError{ProductID: id, Available: p.Stock, Requested: qty}
		}
	}

	order.ID = m.id()
	order.CreatedAt = time.Now()
	order.Items = make([]models.OrderItem, len(lines))
	for i, l := range lines {
		item := models.OrderItem{
			OrderID:   order.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     m.products[l.ProductID].Price,
		}
		order.Items[i] = item
		m.orderItems = append(m.orderItems, item)
	}
	for id, qty := range requested {
		p := m.products[id]
		p.Stock -= qty
		m.products[id] = p
	}

	stored := *order
	stored.Items = nil
	m.orders = append(m.orders, stored)
	return nil
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			copied := o
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := []models.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *memStore) ListOrderItems(_ context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := map[int64]bool{}
	for _, id := range orderIDs {
		wanted[id] = true
	}
	items := []models.OrderItem{}
	for _, item := range m.orderItems {
		if wanted[item.OrderID] {
			item.ProductName = m.products[item.ProductID].Name
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *memStore) ListCategories(context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Category{}
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) ListProducts(context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Product{}
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) ListProductsByCategory(_ context.Context, categoryID int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Product{}
	for _, p := range m.products {
		if p.CategoryID != nil && *p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) CreateProduct(_ context.Context, in store.ProductInput) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.CategoryID != nil {
		if _, ok := m.categories[*in.CategoryID]; !ok {
			return nil, fmt.Errorf("%w: product_category_id_fkey", store.ErrForeignKey)
		}
	}
	images := append([]string{}, in.ImageURLs...)
	p := models.Product{
		ID:          m.id(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		Images:      images,
	}
	m.products[p.ID] = p
	return &p, nil
}

func (m *memStore) UpdateProduct(_ context.Context, id int64, patch store.ProductPatch) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.CategoryID != nil {
		p.CategoryID = patch.CategoryID
	}
	m.products[id] = p
	return &p, nil
}

func (m *memStore) DeleteProduct(_ context.Context, id int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range m.orderItems {
		if item.ProductID == id {
			return nil, fmt.Errorf("%w: order_items_product_id_fkey", store.ErrForeignKey)
		}
	}
	delete(m.products, id)
	return p.Images, nil
}

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", store.ErrDuplicate)
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now()
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// memCache is a map-backed Cache that stores JSON like the Redis client does.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failGet {
		return false, errors.New("cache unavailable")
	}
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

type recordingImages struct {
	mu      sync.Mutex
	removed [][]string
}

func (r *recordingImages) Remove(urls []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, urls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return p.err
}
