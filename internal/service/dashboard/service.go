package dashboard

import (
	"context"
	"time"

	"log/slog"

	"github.com/cryptoadmin/api/internal/repository"
)

// activeUserRatio approximates active accounts for the demo dashboard;
// the platform has no login tracking to compute a real figure from.
const activeUserRatio = 0.7

const activityMonths = 7

// Stats are the headline dashboard counters. All counts come from the
// store at request time; nothing is cached or pre-aggregated.
type Stats struct {
	TotalUsers        int
	ActiveUsers       int
	NewUsersThisWeek  int
	NewUsersThisMonth int
}

// ActivityPoint is one month of signup activity for the activity chart.
type ActivityPoint struct {
	Name        string `json:"name"`
	Users       int    `json:"users"`
	ActiveUsers int    `json:"activeUsers"`
}

// Service computes read-only dashboard aggregates.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger, now: time.Now}
}

// GetStats counts users in total and within the trailing 7 and 30 day
// windows.
func (s Service) GetStats(ctx context.Context) (Stats, error) {
	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := s.now().UTC()
	weekly, err := s.users.CountUsersCreatedSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return Stats{}, err
	}
	monthly, err := s.users.CountUsersCreatedSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalUsers:        total,
		ActiveUsers:       int(float64(total) * activeUserRatio),
		NewUsersThisWeek:  weekly,
		NewUsersThisMonth: monthly,
	}, nil
}

// GetUserActivity returns signup counts for the last seven calendar
// months, oldest first. Months without signups appear with zero counts.
func (s Service) GetUserActivity(ctx context.Context) ([]ActivityPoint, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(activityMonths - 1), 0)

	buckets, err := s.users.ListMonthlySignups(ctx, start)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(buckets))
	for _, b := range buckets {
		counts[b.Month.UTC().Format("2006-01")] = b.Count
	}

	points := make([]ActivityPoint, 0, activityMonths)
	for i := 0; i < activityMonths; i++ {
		month := start.AddDate(0, i, 0)
		users := counts[month.Format("2006-01")]
		points = append(points, ActivityPoint{
			Name:        month.Format("Jan"),
			Users:       users,
			ActiveUsers: int(float64(users) * activeUserRatio),
		})
	}
	return points, nil
}
