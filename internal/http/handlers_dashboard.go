package httpx

import "net/http"

func (r *Router) handleDashboardStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	stats, err := r.dashboard.GetStats(req.Context())
	if err != nil {
		r.logger.Error("dashboard stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"totalUsers":        stats.TotalUsers,
		"activeUsers":       stats.ActiveUsers,
		"newUsersThisWeek":  stats.NewUsersThisWeek,
		"newUsersThisMonth": stats.NewUsersThisMonth,
	})
}

func (r *Router) handleUserActivity(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	points, err := r.dashboard.GetUserActivity(req.Context())
	if err != nil {
		r.logger.Error("user activity failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    points,
	})
}
