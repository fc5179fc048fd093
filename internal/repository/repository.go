package repository

import (
	"context"
	"time"

	"github.com/cryptoadmin/api/internal/domain"
)

// ListUsersParams controls paged user listing. Search matches name or
// email as a case-insensitive substring.
type ListUsersParams struct {
	Search string
	Limit  int
	Offset int
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context, params ListUsersParams) ([]domain.User, int, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
	CountUsersCreatedSince(ctx context.Context, since time.Time) (int, error)
	ListMonthlySignups(ctx context.Context, from time.Time) ([]domain.MonthlySignups, error)
}
