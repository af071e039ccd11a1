package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"casecommerce/internal/auth"
	"casecommerce/internal/models"
	"casecommerce/internal/store"
	"casecommerce/internal/util"

	"go.uber.org/zap"
)

const invalidCredentials = "Invalid email or password"

// UserService handles registration, login and profiles
type UserService struct {
	repo        UserRepository
	tokens      *auth.TokenManager
	passwords   *auth.PasswordHasher
	adminEmails map[string]bool
	logger      *zap.Logger
}

// NewUserService creates a user service. Accounts registered with one of
// adminEmails get the admin role.
func NewUserService(repo UserRepository, tokens *auth.TokenManager, passwords *auth.PasswordHasher, adminEmails []string) *UserService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[normalizeEmail(e)] = true
	}
	return &UserService{
		repo:        repo,
		tokens:      tokens,
		passwords:   passwords,
		adminEmails: admins,
		logger:      util.GetLogger(),
	}
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates an account
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" || req.Password == "" {
		return nil, validationError("username, email and password are required")
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	role := models.RoleUser
	if s.adminEmails[email] {
		role = models.RoleAdmin
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, conflict("Email already registered", err)
		}
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

// Login checks credentials and issues a session token
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		util.LoginAttemptsTotal.WithLabelValues("unknown_email").Inc()
		return nil, &Error{Kind: KindUnauthorized, Message: invalidCredentials}
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.passwords.Matches(user.PasswordHash, req.Password) {
		util.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, &Error{Kind: KindUnauthorized, Message: invalidCredentials}
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	util.LoginAttemptsTotal.WithLabelValues("ok").Inc()
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// GetUser returns a user's profile
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.GetUser")
	defer span.End()

	user, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("User not found", err)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
