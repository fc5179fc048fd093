package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cryptoadmin/api/internal/domain"
)

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the structured failure envelope the dashboard client
// expects: {"success": false, "message": "..."}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// userPayload serializes a user for clients. The password hash is
// deliberately absent.
func userPayload(user *domain.User) map[string]any {
	return map[string]any{
		"_id":       user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt": user.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
