package store

import (
	"context"
	"fmt"
	"strings"

	"casecommerce/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const productColumns = `
	SELECT p.id, p.name, p.description, p.price, p.stock, p.category_id,
	       c.name AS category_name, p.created_at
	FROM product p
	LEFT JOIN product_category c ON p.category_id = c.id`

// ProductInput carries the columns of a new product.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  *int64
	ImageURLs   []string
}

// ProductPatch holds the columns to change; nil fields are left alone.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	CategoryID  *int64
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil && p.CategoryID == nil
}

// ListCategories returns all categories
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, "SELECT id, name FROM product_category ORDER BY id")
	return categories, err
}

// GetCategory retrieves a category by ID
func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category, "SELECT id, name FROM product_category WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &category, nil
}

// ListProducts returns every product with its category name and images
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, productColumns+" ORDER BY p.id"); err != nil {
		return nil, err
	}
	if err := s.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListProductsByCategory returns the products of one category
func (s *Store) ListProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, productColumns+" WHERE p.category_id = $1 ORDER BY p.id", categoryID)
	if err != nil {
		return nil, err
	}
	if err := s.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := s.db.GetContext(ctx, &product, productColumns+" WHERE p.id = $1", id); err != nil {
		return nil, translate(err)
	}

	products := []models.Product{product}
	if err := s.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// CreateProduct inserts a product and its image rows in one transaction
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &id, `
			INSERT INTO product (name, description, price, stock, category_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			in.Name, in.Description, in.Price, in.Stock, in.CategoryID)
		if err != nil {
			return translate(err)
		}

		for _, url := range in.ImageURLs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO product_images (product_id, image_url) VALUES ($1, $2)",
				id, url); err != nil {
				return fmt.Errorf("failed to insert product image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(ctx, id)
}

// UpdateProduct applies a partial update. Only whitelisted columns can be
// set, so the statement is built from constants plus placeholders.
func (s *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*models.Product, error) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Stock != nil {
		add("stock", *patch.Stock)
	}
	if patch.CategoryID != nil {
		add("category_id", *patch.CategoryID)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := fmt.Sprintf("UPDATE product SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, translate(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, ErrNotFound
		}
	}

	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product and returns the URLs of its images; the
// image rows and cart items cascade.
func (s *Store) DeleteProduct(ctx context.Context, id int64) ([]string, error) {
	var urls []string

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &urls,
			"SELECT image_url FROM product_images WHERE product_id = $1 ORDER BY image_id", id); err != nil {
			return fmt.Errorf("failed to load product images: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM product WHERE id = $1", id)
		if err != nil {
			return translate(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// attachImages loads image URLs for the given products in one query.
func (s *Store) attachImages(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	for i := range products {
		ids[i] = products[i].ID
		products[i].Images = []string{}
	}

	query, args, err := sqlx.In(
		"SELECT image_id, product_id, image_url FROM product_images WHERE product_id IN (?) ORDER BY image_id", ids)
	if err != nil {
		return err
	}

	var images []models.ProductImage
	if err := s.db.SelectContext(ctx, &images, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load product images: %w", err)
	}

	byProduct := make(map[int64][]string, len(products))
	for _, img := range images {
		byProduct[img.ProductID] = append(byProduct[img.ProductID], img.ImageURL)
	}
	for i := range products {
		if urls, ok := byProduct[products[i].ID]; ok {
			products[i].Images = urls
		}
	}
	return nil
}
