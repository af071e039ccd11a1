package api

import (
	"context"
	"errors"
	"mime/multipart"
	"sync"

	"casecommerce/internal/models"
	"casecommerce/internal/service"
)

type fakeCarts struct {
	mu      sync.Mutex
	carts   map[int64]*models.CartView
	added   []service.AddToCartRequest
	removed []service.RemoveFromCartRequest
	err     error
}

func (f *fakeCarts) AddToCart(_ context.Context, req *service.AddToCartRequest) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, *req)
	qty := 0
	for _, a := range f.added {
		if a.UserID == req.UserID && a.ProductID == req.ProductID {
			qty += a.Quantity
		}
	}
	return &models.CartItem{ID: 1, CartID: req.UserID * 10, ProductID: req.ProductID, Quantity: qty}, nil
}

func (f *fakeCarts) RemoveFromCart(_ context.Context, req *service.RemoveFromCartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, *req)
	return nil
}

func (f *fakeCarts) GetCart(_ context.Context, userID int64) (*models.CartView, error) {
	if f.err != nil {
		return nil, f.err
	}
	cart, ok := f.carts[userID]
	if !ok {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "Cart not found for user"}
	}
	return cart, nil
}

type fakeOrders struct {
	placed []service.PlaceOrderRequest
	orders map[int64][]models.Order
	// block makes every call wait for the request context to end.
	block bool
	err   error
}

func (f *fakeOrders) PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*models.Order, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	f.placed = append(f.placed, *req)

	order := models.Order{
		ID:         int64(len(f.placed)),
		UserID:     req.UserID,
		TotalPrice: *req.TotalPrice,
		Status:     req.Status,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return &order, nil
}

func (f *fakeOrders) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	orders := f.orders[userID]
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

type fakeCatalog struct {
	products map[int64]*models.Product
	created  []service.CreateProductRequest
	updated  map[int64]service.UpdateProductRequest
	deleted  []int64
	err      error
}

func (f *fakeCatalog) ListCategories(context.Context) ([]models.Category, error) {
	return []models.Category{{ID: 1, Name: "Phone cases"}}, f.err
}

func (f *fakeCatalog) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	if id != 1 {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "Category not found"}
	}
	return &models.Category{ID: 1, Name: "Phone cases"}, nil
}

func (f *fakeCatalog) ListProducts(context.Context) ([]models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Product{}
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeCatalog) ListProductsByCategory(_ context.Context, categoryID int64) ([]models.Product, error) {
	out := []models.Product{}
	for _, p := range f.products {
		if p.CategoryID != nil && *p.CategoryID == categoryID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "Product not found"}
	}
	return p, nil
}

func (f *fakeCatalog) CreateProduct(_ context.Context, req *service.CreateProductRequest) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, *req)
	return &models.Product{
		ID:         int64(len(f.created)),
		Name:       req.Name,
		Price:      *req.Price,
		Stock:      *req.Stock,
		CategoryID: req.CategoryID,
		Images:     append([]string{}, req.ImageURLs...),
	}, nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, id int64, req *service.UpdateProductRequest) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "Product not found"}
	}
	if f.updated == nil {
		f.updated = make(map[int64]service.UpdateProductRequest)
	}
	f.updated[id] = *req
	if req.Name != nil {
		p.Name = *req.Name
	}
	return p, nil
}

func (f *fakeCatalog) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return &service.Error{Kind: service.KindNotFound, Message: "Product not found"}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeUsers struct {
	users map[int64]*models.User
}

func (f *fakeUsers) Register(_ context.Context, req *service.RegisterRequest) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == req.Email {
			return nil, &service.Error{Kind: service.KindConflict, Message: "Email is already registered"}
		}
	}
	u := &models.User{ID: int64(len(f.users) + 1), Username: req.Username, Email: req.Email, PasswordHash: "hash", Role: models.RoleUser}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) Login(_ context.Context, req *service.LoginRequest) (*service.LoginResponse, error) {
	for _, u := range f.users {
		if u.Email == req.Email && req.Password == "secret123" {
			return &service.LoginResponse{Token: "token", User: u}, nil
		}
	}
	return nil, &service.Error{Kind: service.KindUnauthorized, Message: "Invalid email or password"}
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &service.Error{Kind: service.KindNotFound, Message: "User not found"}
	}
	return u, nil
}

type fakeImages struct {
	saved   []string
	removed []string
	err     error
}

func (f *fakeImages) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	urls := make([]string, len(files))
	for i, fh := range files {
		urls[i] = "/uploads/products/" + fh.Filename
	}
	f.saved = append(f.saved, urls...)
	return urls, nil
}

func (f *fakeImages) Remove(urls []string) {
	f.removed = append(f.removed, urls...)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errStoreDown = errors.New("pq: connection refused to 10.0.0.5:5432")
