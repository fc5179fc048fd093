package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
	"github.com/cryptoadmin/api/internal/service/auth"
	"github.com/cryptoadmin/api/internal/service/dashboard"
	"github.com/cryptoadmin/api/internal/service/user"
	"github.com/cryptoadmin/api/pkg/config"
	"github.com/cryptoadmin/api/pkg/crypto"
	jwtpkg "github.com/cryptoadmin/api/pkg/jwt"
)

const testSecret = "router-test-secret"

type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{users: make(map[string]domain.User)}
}

func (m *memoryUserRepository) CreateUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memoryUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := u
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepository) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]domain.User, 0, len(m.users))
	needle := strings.ToLower(params.Search)
	for _, u := range m.users {
		if needle == "" || strings.Contains(strings.ToLower(u.Name), needle) || strings.Contains(strings.ToLower(u.Email), needle) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if params.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[params.Offset:]
	if params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (m *memoryUserRepository) UpdateUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memoryUserRepository) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryUserRepository) CountUsers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memoryUserRepository) CountUsersCreatedSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, u := range m.users {
		if !u.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryUserRepository) ListMonthlySignups(ctx context.Context, from time.Time) ([]domain.MonthlySignups, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[time.Time]int)
	for _, u := range m.users {
		if u.CreatedAt.Before(from) {
			continue
		}
		month := time.Date(u.CreatedAt.Year(), u.CreatedAt.Month(), 1, 0, 0, 0, 0, time.UTC)
		buckets[month]++
	}
	out := make([]domain.MonthlySignups, 0, len(buckets))
	for month, count := range buckets {
		out = append(out, domain.MonthlySignups{Month: month, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

type testFixture struct {
	router *Router
	repo   *memoryUserRepository
	admin  *domain.User
	plain  *domain.User

	adminToken   string
	managerToken string
	userToken    string
}

func seedAccount(t *testing.T, repo *memoryUserRepository, id, email, password string, role domain.Role, createdAt time.Time) *domain.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		ID:           id,
		Name:         string(role) + " account",
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", email, err)
	}
	return u
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	repo := newMemoryUserRepository()
	now := time.Now().UTC()
	admin := seedAccount(t, repo, "admin-1", "admin@x.com", "admin-pw1", domain.RoleAdmin, now.Add(-3*time.Hour))
	manager := seedAccount(t, repo, "manager-1", "manager@x.com", "manager-pw1", domain.RoleManager, now.Add(-2*time.Hour))
	plain := seedAccount(t, repo, "user-1", "user@x.com", "user-pw1", domain.RoleUser, now.Add(-time.Hour))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{JWTSecret: testSecret, TokenTTL: time.Hour}
	router := NewRouter(log, auth.New(repo, log, cfg), user.New(repo, log), dashboard.New(repo, log), nil, "*", nil)
	t.Cleanup(router.Close)

	token := func(id string) string {
		signed, err := jwtpkg.Generate(id, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("token for %s: %v", id, err)
		}
		return signed
	}
	return &testFixture{
		router:       router,
		repo:         repo,
		admin:        admin,
		plain:        plain,
		adminToken:   token(admin.ID),
		managerToken: token(manager.ID),
		userToken:    token(plain.ID),
	}
}

func (f *testFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestRootAndHealth(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("root status %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status %d", rr.Code)
	}
}

func TestMeRequiresToken(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/auth/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["success"] != false {
		t.Fatalf("expected success=false envelope: %v", payload)
	}
}

func TestGateShortCircuitsOnInvalidToken(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/auth/me", "garbage-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	// Exactly one response envelope; the denied request must never reach
	// the handler or produce a second body.
	dec := json.NewDecoder(bytes.NewReader(rr.Body.Bytes()))
	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode first envelope: %v", err)
	}
	if dec.More() {
		t.Fatalf("gate wrote more than one response: %s", rr.Body.String())
	}
}

func TestLoginFlowAndMe(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "user@x.com", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "user@x.com", "password": "user-pw1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatalf("login response missing token: %v", payload)
	}
	loginUser, _ := payload["user"].(map[string]any)
	if loginUser == nil || loginUser["email"] != "user@x.com" {
		t.Fatalf("login response user: %v", payload["user"])
	}
	for _, forbidden := range []string{"password", "passwordHash", "password_hash"} {
		if _, ok := loginUser[forbidden]; ok {
			t.Fatalf("login response leaks %q", forbidden)
		}
	}

	rr = f.do(t, http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rr.Code)
	}
	me := decodeBody(t, rr)
	if me["role"] != "user" {
		t.Fatalf("me role: %v", me["role"])
	}
	perms, _ := me["permissions"].([]any)
	if len(perms) == 0 {
		t.Fatalf("me response missing permissions: %v", me)
	}
}

func TestListUsersRoleGates(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/users", f.userToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user role: expected 403, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	msg, _ := payload["message"].(string)
	if !strings.Contains(msg, "admin") || !strings.Contains(msg, "manager") {
		t.Fatalf("403 must name required roles, got %q", msg)
	}

	rr = f.do(t, http.MethodGet, "/users?search=admin@x.com", f.managerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("manager list: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	listing := decodeBody(t, rr)
	if count, _ := listing["totalCount"].(float64); count < 1 {
		t.Fatalf("expected totalCount >= 1, got %v", listing["totalCount"])
	}
	users, _ := listing["users"].([]any)
	found := false
	for _, entry := range users {
		if u, ok := entry.(map[string]any); ok && u["email"] == "admin@x.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("search result missing admin@x.com: %v", listing["users"])
	}
}

func TestCreateUserIsAdminOnly(t *testing.T) {
	f := newTestFixture(t)
	body := map[string]string{"name": "Newbie", "email": "newbie@x.com", "password": "newbie-pw"}

	rr := f.do(t, http.MethodPost, "/users", f.managerToken, body)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("manager create: expected 403, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/users", f.adminToken, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/users", f.adminToken, body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create: expected 400, got %d", rr.Code)
	}
}

func TestUserByIDGates(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/users/ghost-id", f.adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing id: expected 404, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodDelete, "/users/"+f.plain.ID, f.managerToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("manager delete: expected 403, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "users.delete") {
		t.Fatalf("403 must name the missing permission, got %q", msg)
	}
	rr = f.do(t, http.MethodDelete, "/users/"+f.plain.ID, f.adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin delete: expected 200, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodDelete, "/users/"+f.plain.ID, f.adminToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: expected 404, got %d", rr.Code)
	}
}

func TestUpdateUserPartial(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodPut, "/users/"+f.plain.ID, f.managerToken, map[string]string{"name": "Renamed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	data, _ := payload["data"].(map[string]any)
	if data == nil || data["name"] != "Renamed" {
		t.Fatalf("update response: %v", payload)
	}
	if data["email"] != f.plain.Email {
		t.Fatalf("untouched email changed: %v", data["email"])
	}
}

func TestProfileRoutesAreNotShadowedByIDRoute(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodPut, "/users/profile", f.userToken, map[string]string{"name": "Self Renamed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("profile update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	data, _ := payload["data"].(map[string]any)
	if data == nil || data["name"] != "Self Renamed" {
		t.Fatalf("profile response: %v", payload)
	}

	rr = f.do(t, http.MethodPut, "/users/password", f.userToken, map[string]string{
		"currentPassword": "wrong", "newPassword": "next-pw-123",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/users/password", f.userToken, map[string]string{
		"currentPassword": "user-pw1", "newPassword": "next-pw-123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("password change: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// The new password is usable for the next login.
	rr = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "user@x.com", "password": "next-pw-123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rr.Code)
	}
}

func TestRegisterConflictAndValidation(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Dup", "email": "admin@x.com", "password": "dup-pw-123",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: expected 400, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Short", "email": "short@x.com", "password": "pw",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Fresh", "email": "fresh@x.com", "password": "fresh-pw1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatalf("register response missing token")
	}
}

func TestDashboardEndpointsRequireElevatedRole(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/dashboard/stats", f.userToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user stats: expected 403, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/dashboard/stats", f.managerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("manager stats: expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if total, _ := payload["totalUsers"].(float64); total != 3 {
		t.Fatalf("totalUsers: got %v, want 3", payload["totalUsers"])
	}

	rr = f.do(t, http.MethodGet, "/dashboard/user-activity", f.managerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("activity: expected 200, got %d", rr.Code)
	}
	activity := decodeBody(t, rr)
	points, _ := activity["data"].([]any)
	if len(points) != 7 {
		t.Fatalf("expected 7 activity points, got %d", len(points))
	}
}

func TestConcurrentUpdatesKeepOneWriterName(t *testing.T) {
	f := newTestFixture(t)
	names := []string{"First Writer", "Second Writer"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			rr := f.do(t, http.MethodPut, "/users/"+f.plain.ID, f.adminToken, map[string]string{"name": name})
			if rr.Code != http.StatusOK {
				t.Errorf("concurrent update: expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
		}(name)
	}
	wg.Wait()

	rr := f.do(t, http.MethodGet, "/users/"+f.plain.ID, f.adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("read back: expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	data, _ := payload["data"].(map[string]any)
	if data == nil {
		t.Fatalf("read back response: %v", payload)
	}
	stored, _ := data["name"].(string)
	if stored != names[0] && stored != names[1] {
		t.Fatalf("stored name %q is neither submitted value", stored)
	}
}

func TestRateLimitHeadersOnAuthenticatedRoutes(t *testing.T) {
	f := newTestFixture(t)

	rr := f.do(t, http.MethodGet, "/auth/me", f.userToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") == "" || rr.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatalf("expected rate limit headers, got %v", rr.Header())
	}
}
