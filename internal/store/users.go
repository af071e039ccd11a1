package store

import (
	"context"

	"casecommerce/internal/models"
)

// CreateUser inserts a user; a taken email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.GetContext(ctx, user, `
		INSERT INTO users (username, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, email, password, role, created_at`,
		user.Username, user.Email, user.PasswordHash, user.Role)
	return translate(err)
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, password, role, created_at FROM users WHERE email = $1", email)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, password, role, created_at FROM users WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
