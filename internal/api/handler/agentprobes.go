package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vigilhq/vigil-master/internal/api/response"
	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/directory"
	"github.com/vigilhq/vigil-master/internal/respcache"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// agentProbesTTL bounds how stale a cache-service fallback copy may be. It
// only matters while the directory is down; live traffic is answered from
// the in-process projection.
const agentProbesTTL = 15 * time.Minute

// AgentProbeLister serves the per-agent probe projection.
type AgentProbeLister interface {
	ListByAgent(ctx context.Context, agent string) (*directory.AgentProbeSet, error)
}

// NewAgentProbesHandler returns an http.HandlerFunc for GET and HEAD
// /agentprobes. Agents poll HEAD and compare Content-MD5 against the digest
// of their running set; the body is fetched only on change. Successful
// responses are written through to the cache service so a directory outage
// degrades to serving the last known set instead of failing the fleet.
func NewAgentProbesHandler(lister AgentProbeLister, rc respcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := r.URL.Query().Get("agent")
		if agent == "" {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "agent is required", nil)
			return
		}
		if !models.IsUserUUID(agent) {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "agent must be a UUID", nil)
			return
		}

		set, err := lister.ListByAgent(r.Context(), agent)
		if err != nil {
			if apperr.IsKind(err, apperr.Unavailable) && rc != nil {
				if fallback := cachedSet(r.Context(), rc, agent); fallback != nil {
					slog.Warn("serving agent probes from cache-service fallback", "agent", agent)
					writeAgentProbes(w, r, fallback)
					return
				}
			}
			response.AppError(w, err)
			return
		}

		if rc != nil {
			if raw, err := json.Marshal(set); err == nil {
				rc.Set(r.Context(), respcache.AgentProbesKey(agent), raw, agentProbesTTL)
			}
		}
		writeAgentProbes(w, r, set)
	}
}

func cachedSet(ctx context.Context, rc respcache.Cache, agent string) *directory.AgentProbeSet {
	raw, ok, err := rc.Get(ctx, respcache.AgentProbesKey(agent))
	if err != nil || !ok {
		return nil
	}
	var set directory.AgentProbeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil
	}
	return &set
}

func writeAgentProbes(w http.ResponseWriter, r *http.Request, set *directory.AgentProbeSet) {
	w.Header().Set("Content-MD5", set.Digest)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	response.JSON(w, map[string]any{
		"probes": set.Probes,
		"digest": set.Digest,
	})
}
