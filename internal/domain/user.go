package domain

import "time"

// Role is one of the closed set of account roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// ValidRole reports whether the value belongs to the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User represents a platform account. PasswordHash must never be
// serialized to clients; the HTTP layer builds explicit payloads.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MonthlySignups is a registration count bucketed by calendar month.
type MonthlySignups struct {
	Month time.Time
	Count int
}
