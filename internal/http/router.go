package httpx

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/service/auth"
	"github.com/cryptoadmin/api/internal/service/dashboard"
	"github.com/cryptoadmin/api/internal/service/user"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	handler   http.Handler
	logger    *slog.Logger
	auth      auth.Service
	users     user.Service
	dashboard dashboard.Service
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	healthCheckTimeout = 2 * time.Second
)

var rolesAdminOrManager = []domain.Role{domain.RoleAdmin, domain.RoleManager}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, dashboardSvc dashboard.Service, limiter RateLimiter, corsOrigins string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		users:     userSvc,
		dashboard: dashboardSvc,
		limiter:   limiter,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	r.handler = corsMiddleware(splitOrigins(corsOrigins), r.mux)
	return r
}

// ServeHTTP delegates to the CORS-wrapped mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit("/", r.handleRoot))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/auth/register", r.audit("/auth/register",
		r.withRateLimit("/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login",
		r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/me", r.audit("/auth/me",
		r.authRead("/auth/me", r.handleMe)))

	r.mux.HandleFunc("/users", r.audit("/users", r.handleUsersCollection))
	r.mux.HandleFunc("/users/profile", r.audit("/users/profile",
		r.authWrite("/users/profile", r.handleUpdateProfile)))
	r.mux.HandleFunc("/users/password", r.audit("/users/password",
		r.authWrite("/users/password", r.handleChangePassword)))
	r.mux.HandleFunc("/users/", r.audit("/users/{id}", r.handleUserByID))

	r.mux.HandleFunc("/dashboard/stats", r.audit("/dashboard/stats",
		r.roleRead("/dashboard/stats", rolesAdminOrManager, r.handleDashboardStats)))
	r.mux.HandleFunc("/dashboard/user-activity", r.audit("/dashboard/user-activity",
		r.roleRead("/dashboard/user-activity", rolesAdminOrManager, r.handleUserActivity)))
}

// authRead gates a handler behind authentication plus a user-keyed read
// rate limit.
func (r *Router) authRead(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, next))
}

// authWrite is authRead with the tighter write budget.
func (r *Router) authWrite(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, next))
}

// roleRead stacks authentication, a read rate limit, and a role check.
func (r *Router) roleRead(route string, roles []domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, r.requireRole(roles, next)))
}

// roleWrite stacks authentication, a write rate limit, and a role check.
func (r *Router) roleWrite(route string, roles []domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, r.requireRole(roles, next)))
}

// permWrite is roleWrite with the check expressed against the permission
// table instead of a role list.
func (r *Router) permWrite(route, permission string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, r.requirePermission(permission, next)))
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Admin Dashboard API"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// audit wraps a handler with request logging and metrics recording.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if principal, ok := principalFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", principal.ID, "role", principal.Role)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host := req.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
