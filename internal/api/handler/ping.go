package handler

import (
	"context"
	"net/http"

	"github.com/vigilhq/vigil-master/internal/api/response"
)

// Pinger reports liveness of one backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingHandler returns an http.HandlerFunc for GET /ping. The response
// carries the liveness of the alarm store and the cache service so a probe
// of the master doubles as a probe of its dependencies.
func NewPingHandler(db, cache Pinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := func(p Pinger) string {
			if p == nil {
				return "unconfigured"
			}
			if err := p.Ping(r.Context()); err != nil {
				return "down"
			}
			return "up"
		}

		response.JSON(w, map[string]any{
			"ping":    "pong",
			"version": version,
			"services": map[string]string{
				"db":    status(db),
				"cache": status(cache),
			},
		})
	}
}
