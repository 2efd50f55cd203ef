package inventory

import (
	"context"
	"log/slog"

	"github.com/vigilhq/vigil-master/internal/cache"
)

// serversKey is the single cache key for the full server set. The set is
// small (thousands at most) and changes rarely, so one entry holding the
// whole roster beats per-server entries.
const serversKey = "servers"

// Roster answers server existence checks against a cached snapshot of the
// fleet. The snapshot lives in the Servers cache scope and ages out on its
// TTL; a miss refetches the whole list.
type Roster struct {
	client Client
	reg    *cache.Registry
	log    *slog.Logger
}

// NewRoster builds a roster over the inventory client and cache registry.
func NewRoster(client Client, reg *cache.Registry, log *slog.Logger) *Roster {
	if log == nil {
		log = slog.Default()
	}
	return &Roster{client: client, reg: reg, log: log}
}

// ServerExists reports whether serverUUID names a known compute server.
func (r *Roster) ServerExists(ctx context.Context, serverUUID string) (bool, error) {
	set, err := r.serverSet(ctx)
	if err != nil {
		return false, err
	}
	return set[serverUUID], nil
}

func (r *Roster) serverSet(ctx context.Context) (map[string]bool, error) {
	if cached, ok := r.reg.Get(cache.ScopeServers, serversKey); ok {
		return cached.(map[string]bool), nil
	}
	servers, err := r.client.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(servers))
	for _, s := range servers {
		set[s.UUID] = true
	}
	r.reg.Set(cache.ScopeServers, serversKey, set)
	r.log.Debug("refreshed server roster", "count", len(set))
	return set, nil
}
