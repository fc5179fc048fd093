package dashboard

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
)

type stubUserRepository struct {
	total        int
	sinceCounts  map[time.Time]int
	signups      []domain.MonthlySignups
	signupsFrom  time.Time
	sinceQueries []time.Time
}

func (s *stubUserRepository) CreateUser(ctx context.Context, user *domain.User) error { return nil }
func (s *stubUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}
func (s *stubUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}
func (s *stubUserRepository) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]domain.User, int, error) {
	return nil, 0, nil
}
func (s *stubUserRepository) UpdateUser(ctx context.Context, user *domain.User) error { return nil }
func (s *stubUserRepository) DeleteUser(ctx context.Context, id string) error         { return nil }

func (s *stubUserRepository) CountUsers(ctx context.Context) (int, error) { return s.total, nil }

func (s *stubUserRepository) CountUsersCreatedSince(ctx context.Context, since time.Time) (int, error) {
	s.sinceQueries = append(s.sinceQueries, since)
	return s.sinceCounts[since], nil
}

func (s *stubUserRepository) ListMonthlySignups(ctx context.Context, from time.Time) ([]domain.MonthlySignups, error) {
	s.signupsFrom = from
	return s.signups, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetStatsComputesTrailingWindows(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	repo := &stubUserRepository{
		total: 40,
		sinceCounts: map[time.Time]int{
			now.AddDate(0, 0, -7):  5,
			now.AddDate(0, 0, -30): 12,
		},
	}
	svc := New(repo, newLogger())
	svc.now = func() time.Time { return now }

	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 40 {
		t.Fatalf("total: %d", stats.TotalUsers)
	}
	if stats.ActiveUsers != 28 {
		t.Fatalf("active users: got %d, want 28", stats.ActiveUsers)
	}
	if stats.NewUsersThisWeek != 5 || stats.NewUsersThisMonth != 12 {
		t.Fatalf("window counts: week=%d month=%d", stats.NewUsersThisWeek, stats.NewUsersThisMonth)
	}
	if len(repo.sinceQueries) != 2 {
		t.Fatalf("expected 2 windowed count queries, got %d", len(repo.sinceQueries))
	}
}

func TestGetUserActivityFillsMissingMonths(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
	repo := &stubUserRepository{
		signups: []domain.MonthlySignups{
			{Month: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), Count: 10},
			{Month: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), Count: 4},
		},
	}
	svc := New(repo, newLogger())
	svc.now = func() time.Time { return now }

	points, err := svc.GetUserActivity(context.Background())
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("expected 7 months, got %d", len(points))
	}
	wantStart := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	if !repo.signupsFrom.Equal(wantStart) {
		t.Fatalf("query start: got %v, want %v", repo.signupsFrom, wantStart)
	}
	names := []string{"Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug"}
	for i, point := range points {
		if point.Name != names[i] {
			t.Fatalf("month %d: got %q, want %q", i, point.Name, names[i])
		}
	}
	if points[1].Users != 10 || points[5].Users != 4 {
		t.Fatalf("bucket counts misplaced: %+v", points)
	}
	if points[0].Users != 0 || points[6].Users != 0 {
		t.Fatalf("missing months must be zero-filled: %+v", points)
	}
	if points[1].ActiveUsers != 7 {
		t.Fatalf("active users: got %d, want 7", points[1].ActiveUsers)
	}
}
