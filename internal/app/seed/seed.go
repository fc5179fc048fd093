// Package seed provisions the demo accounts the dashboard ships with.
package seed

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
	usersvc "github.com/cryptoadmin/api/internal/service/user"
)

type demoAccount struct {
	name     string
	email    string
	password string
	role     domain.Role
}

var demoAccounts = []demoAccount{
	{name: "Admin User", email: "admin@cryptoadmin.com", password: "admin123", role: domain.RoleAdmin},
	{name: "Manager Smith", email: "manager@cryptoadmin.com", password: "manager123", role: domain.RoleManager},
	{name: "John User", email: "user@cryptoadmin.com", password: "user123", role: domain.RoleUser},
}

// DemoUsers creates the demo admin, manager, and user accounts when they
// do not exist yet. Existing accounts are left untouched.
func DemoUsers(ctx context.Context, users repository.UserRepository, svc usersvc.Service, log *slog.Logger) error {
	for _, account := range demoAccounts {
		_, err := users.GetUserByEmail(ctx, account.email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("check demo account %s: %w", account.email, err)
		}
		if _, err := svc.Create(ctx, account.name, account.email, account.password, account.role); err != nil {
			// A concurrent replica may have seeded the same account.
			if errors.Is(err, usersvc.ErrEmailTaken) {
				continue
			}
			return fmt.Errorf("seed demo account %s: %w", account.email, err)
		}
		log.Info("demo account seeded", "email", account.email, "role", account.role)
	}
	return nil
}
