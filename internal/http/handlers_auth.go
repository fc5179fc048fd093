package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cryptoadmin/api/internal/authz"
	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/service/auth"
)

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string      `json:"name"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     domain.Role `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Register(req.Context(), payload.Name, payload.Email, payload.Password, payload.Role)
	if err != nil {
		r.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    userPayload(user),
		"token":   token,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userPayload(user),
		"token":   token,
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	principal, ok := principalFromContext(req.Context())
	if !ok {
		r.logger.Error("principal missing after authentication", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	payload := userPayload(principal)
	payload["permissions"] = authz.Permissions(principal.Role)
	writeJSON(w, http.StatusOK, payload)
}

// writeAuthError maps auth service failures to their wire status.
func (r *Router) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrMissingFields),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		r.logger.Error("auth request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
