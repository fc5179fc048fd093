package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
	"github.com/cryptoadmin/api/pkg/crypto"
)

var (
	ErrMissingFields    = errors.New("name, email and password are required")
	ErrInvalidRole      = errors.New("role must be one of admin, manager or user")
	ErrEmailTaken       = errors.New("user already exists")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrWrongPassword    = errors.New("current password is incorrect")
)

const (
	minPasswordLength = 6
	defaultPageLimit  = 10
	maxPageLimit      = 100
)

// Service implements user management for admins and self-service
// profile operations.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

// Page is one page of the user listing.
type Page struct {
	Users      []domain.User
	Page       int
	Limit      int
	TotalCount int
	TotalPages int
}

// UpdateInput carries a partial admin update. Nil fields are untouched.
type UpdateInput struct {
	Name     *string
	Email    *string
	Role     *domain.Role
	Password *string
}

// List returns a page of users sorted by creation time descending,
// optionally filtered by a case-insensitive substring on name or email.
func (s Service) List(ctx context.Context, page, limit int, search string) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	users, total, err := s.users.ListUsers(ctx, repository.ListUsersParams{
		Search: strings.TrimSpace(search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return Page{}, err
	}
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Page{Users: users, Page: page, Limit: limit, TotalCount: total, TotalPages: totalPages}, nil
}

// Get fetches a single user by ID.
func (s Service) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// Create registers a user on behalf of an admin. Role defaults to "user".
func (s Service) Create(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
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
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Update applies a partial admin update. A supplied password is rehashed.
func (s Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil && strings.TrimSpace(*input.Email) != "" {
		user.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Role != nil && *input.Role != "" {
		if !domain.ValidRole(*input.Role) {
			return nil, ErrInvalidRole
		}
		user.Role = *input.Role
	}
	if input.Password != nil && *input.Password != "" {
		if len(*input.Password) < minPasswordLength {
			return nil, ErrPasswordTooShort
		}
		hash, err := crypto.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.logger.Info("user updated", "user_id", user.ID)
	return user, nil
}

// Delete removes a user record.
func (s Service) Delete(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// UpdateProfile lets the authenticated user change their own name and
// email. Empty fields are left untouched.
func (s Service) UpdateProfile(ctx context.Context, userID, name, email string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		user.Name = trimmed
	}
	if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
		user.Email = trimmed
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password before storing a new
// hash. A mismatch is reported as ErrWrongPassword, never retried.
func (s Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := crypto.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return ErrWrongPassword
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", userID)
	return nil
}
