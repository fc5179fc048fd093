package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
	"github.com/cryptoadmin/api/pkg/config"
	"github.com/cryptoadmin/api/pkg/crypto"
	jwtpkg "github.com/cryptoadmin/api/pkg/jwt"
)

// Messages double as user-visible response text, so they stay user-safe.
var (
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrInvalidEmail       = errors.New("a valid email address is required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrInvalidRole        = errors.New("role must be one of admin, manager or user")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const minPasswordLength = 6

// Service handles registration, login, and token authorization.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Register creates an account and returns it with a fresh session token.
// An empty role defaults to "user".
func (s Service) Register(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, "", ErrMissingFields
	}
	if !strings.Contains(email, "@") {
		return nil, "", ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, "", ErrPasswordTooShort
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, "", ErrInvalidRole
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", err
	}
	token, err := jwtpkg.Generate(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, token, nil
}

// Login authenticates credentials and returns the user with a session
// token. Unknown email and wrong password yield the same error so
// callers cannot enumerate accounts.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := jwtpkg.Generate(user.ID, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and resolves the principal. The
// store lookup runs on every request; decisions are never cached.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, jwtpkg.ErrInvalidToken
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, jwtpkg.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}
