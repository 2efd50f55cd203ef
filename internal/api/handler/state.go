package handler

import (
	"log/slog"
	"net/http"

	"github.com/vigilhq/vigil-master/internal/api/response"
	"github.com/vigilhq/vigil-master/internal/cache"
)

// NewStateHandler returns an http.HandlerFunc for GET /state: a dump of
// every cache scope plus the current log level, for operator inspection.
func NewStateHandler(reg *cache.Registry, level *slog.LevelVar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"log_level": level.Level().String(),
			"caches":    reg.Snapshot(),
		})
	}
}

// NewStateActionHandler returns an http.HandlerFunc for POST /state. The
// single supported action, dropcaches, empties every in-process cache scope.
func NewStateActionHandler(reg *cache.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		if action != "dropcaches" {
			response.Error(w, http.StatusBadRequest, "InvalidRequest",
				"unknown action", map[string]string{"action": action})
			return
		}
		reg.ResetAll()
		slog.Info("caches dropped by admin request", "remote_addr", r.RemoteAddr)
		response.NoContent(w)
	}
}
