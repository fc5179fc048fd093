package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cryptoadmin/api/internal/domain"
	"github.com/cryptoadmin/api/internal/repository"
	"github.com/cryptoadmin/api/internal/service/user"
)

// handleUsersCollection serves GET /users (admin or manager) and
// POST /users (admin only).
func (r *Router) handleUsersCollection(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.roleRead("/users", rolesAdminOrManager, r.handleListUsers)(w, req)
	case http.MethodPost:
		r.permWrite("/users", "users.create", r.handleCreateUser)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	search := req.URL.Query().Get("search")

	result, err := r.users.List(req.Context(), page, limit, search)
	if err != nil {
		r.writeUserError(w, err)
		return
	}
	users := make([]map[string]any, 0, len(result.Users))
	for i := range result.Users {
		users = append(users, userPayload(&result.Users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"users":      users,
		"page":       result.Page,
		"limit":      result.Limit,
		"totalCount": result.TotalCount,
		"totalPages": result.TotalPages,
	})
}

func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) {
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
	created, err := r.users.Create(req.Context(), payload.Name, payload.Email, payload.Password, payload.Role)
	if err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    userPayload(created),
	})
}

// handleUserByID serves GET, PUT, and DELETE on /users/{id}. Read and
// update admit admins and managers; delete is admin only.
func (r *Router) handleUserByID(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/users/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.roleRead("/users/{id}", rolesAdminOrManager, func(w http.ResponseWriter, req *http.Request) {
			r.handleGetUser(w, req, id)
		})(w, req)
	case http.MethodPut:
		r.roleWrite("/users/{id}", rolesAdminOrManager, func(w http.ResponseWriter, req *http.Request) {
			r.handleUpdateUser(w, req, id)
		})(w, req)
	case http.MethodDelete:
		r.permWrite("/users/{id}", "users.delete", func(w http.ResponseWriter, req *http.Request) {
			r.handleDeleteUser(w, req, id)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request, id string) {
	found, err := r.users.Get(req.Context(), id)
	if err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    userPayload(found),
	})
}

func (r *Router) handleUpdateUser(w http.ResponseWriter, req *http.Request, id string) {
	var payload struct {
		Name     *string      `json:"name"`
		Email    *string      `json:"email"`
		Role     *domain.Role `json:"role"`
		Password *string      `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := r.users.Update(req.Context(), id, user.UpdateInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Role:     payload.Role,
		Password: payload.Password,
	})
	if err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    userPayload(updated),
	})
}

func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request, id string) {
	if err := r.users.Delete(req.Context(), id); err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User deleted successfully",
	})
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	principal, ok := principalFromContext(req.Context())
	if !ok {
		r.logger.Error("principal missing after authentication", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := r.users.UpdateProfile(req.Context(), principal.ID, payload.Name, payload.Email)
	if err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    userPayload(updated),
	})
}

func (r *Router) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	principal, ok := principalFromContext(req.Context())
	if !ok {
		r.logger.Error("principal missing after authentication", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.users.ChangePassword(req.Context(), principal.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		r.writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated successfully",
	})
}

// writeUserError maps user service failures to their wire status.
func (r *Router) writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, user.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, user.ErrMissingFields),
		errors.Is(err, user.ErrInvalidRole),
		errors.Is(err, user.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		r.logger.Error("user request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
