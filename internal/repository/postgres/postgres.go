package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
)

const uniqueViolationCode = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.UserRepository = (*Repository)(nil)

// CreateUser inserts a user. A duplicate email maps to ErrDuplicateEmail.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.Role, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateEmail
	}
	return err
}

// GetUserByEmail fetches a user by email, matched case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// ListUsers returns a page of users sorted by creation time descending,
// along with the total count matching the search filter.
func (r *Repository) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]domain.User, int, error) {
	pattern := "%" + escapeLike(params.Search) + "%"

	const countQuery = `SELECT COUNT(1) FROM users
		WHERE $1 = '' OR name ILIKE $2 OR email ILIKE $2`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, params.Search, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	const listQuery = `SELECT id, name, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE $1 = '' OR name ILIKE $2 OR email ILIKE $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, listQuery, params.Search, pattern, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateUser persists name, email, role, password hash, and updated_at.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users
		SET name = $2, email = $3, role = $4, password_hash = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.Role, user.PasswordHash, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user record.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM users`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountUsersCreatedSince counts users registered at or after the instant.
func (r *Repository) CountUsersCreatedSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(1) FROM users WHERE created_at >= $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListMonthlySignups buckets registrations by calendar month from the
// given instant onward, oldest bucket first. Months with no signups are
// absent; callers fill gaps.
func (r *Repository) ListMonthlySignups(ctx context.Context, from time.Time) ([]domain.MonthlySignups, error) {
	const query = `SELECT date_trunc('month', created_at) AS month, COUNT(1)
		FROM users
		WHERE created_at >= $1
		GROUP BY month
		ORDER BY month ASC`
	rows, err := r.pool.Query(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("monthly signups: %w", err)
	}
	defer rows.Close()

	buckets := make([]domain.MonthlySignups, 0)
	for rows.Next() {
		var b domain.MonthlySignups
		if err := rows.Scan(&b.Month, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// likeEscaper neutralizes LIKE wildcards so a search term only ever
// matches as a literal substring.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
