package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cryptoadmin/api/internal/authz"
	"github.com/cryptoadmin/api/internal/domain"
)

type authContextKey string

const contextKeyPrincipal authContextKey = "cryptoadmin-principal"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid bearer token before
// invoking the handler. On failure it writes 401 and stops; the gate
// always short-circuits so a denied request can never reach a handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// requireRole admits only the listed roles. It expects requireAuth to
// have attached the principal already.
func (r *Router) requireRole(roles []domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		principal, ok := principalFromContext(req.Context())
		if !ok {
			r.logger.Error("principal missing after authentication", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "authorization context missing")
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				next(w, req)
				return
			}
		}
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		r.logger.Warn("role check failed", "path", req.URL.Path, "user_id", principal.ID, "role", principal.Role)
		writeError(w, http.StatusForbidden, "not authorized, required roles: "+strings.Join(names, ", "))
	}
}

// requirePermission checks the principal's role against the static
// permission table. It expects requireAuth to have run first.
func (r *Router) requirePermission(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		principal, ok := principalFromContext(req.Context())
		if !ok {
			r.logger.Error("principal missing after authentication", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "authorization context missing")
			return
		}
		if !authz.HasPermission(principal.Role, permission) {
			r.logger.Warn("permission check failed", "path", req.URL.Path, "user_id", principal.ID, "permission", permission)
			writeError(w, http.StatusForbidden, "not authorized, required permission: "+permission)
			return
		}
		next(w, req)
	}
}

// ensureAuth validates the Authorization header, resolves the principal,
// and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, *domain.User, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "not authorized, no token")
		return req.Context(), nil, false
	}
	principal, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "not authorized, token failed")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyPrincipal, principal)
	return ctx, principal, true
}

// principalFromContext extracts the authenticated user from context.
func principalFromContext(ctx context.Context) (*domain.User, bool) {
	principal, ok := ctx.Value(contextKeyPrincipal).(*domain.User)
	return principal, ok && principal != nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
