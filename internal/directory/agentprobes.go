package directory

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vigilhq/vigil-master/internal/cache"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// AgentProbeSet is the full set of probes one agent should be running, plus
// a digest of the serialized set. Agents poll with the digest so an
// unchanged set costs a header comparison, not a body transfer.
type AgentProbeSet struct {
	Probes []*models.Probe
	Digest string
}

// AgentProbes serves the per-agent probe projection. Entries live in the
// AgentProbes scope, which has no expiry; writes to any probe drop the
// owning agent's entry through the registry, so a cached set is always
// current.
type AgentProbes struct {
	gw  API
	reg *cache.Registry
	log *slog.Logger
}

// NewAgentProbes builds the projection over the gateway and registry.
func NewAgentProbes(gw API, reg *cache.Registry, log *slog.Logger) *AgentProbes {
	if log == nil {
		log = slog.Default()
	}
	return &AgentProbes{gw: gw, reg: reg, log: log}
}

// ListByAgent returns every enabled probe assigned to the agent, across all
// owners, with the content digest of the set.
func (a *AgentProbes) ListByAgent(ctx context.Context, agent string) (*AgentProbeSet, error) {
	if cached, ok := a.reg.Get(cache.ScopeAgentProbes, agent); ok {
		return cached.(*AgentProbeSet), nil
	}
	entries, err := a.gw.Search(ctx, userBase, SearchOpts{
		Filter: fmt.Sprintf("(&(objectclass=%s)(agent=%s))", probeClass, agent),
	})
	if err != nil {
		return nil, err
	}
	probes := make([]*models.Probe, 0, len(entries))
	for _, e := range entries {
		p := probeFromEntry(e)
		if p.Disabled {
			continue
		}
		probes = append(probes, p)
	}
	// Stable order so the digest is a function of the set, not of
	// directory result ordering.
	sort.Slice(probes, func(i, j int) bool { return probes[i].UUID < probes[j].UUID })
	digest, err := digestProbes(probes)
	if err != nil {
		return nil, err
	}
	set := &AgentProbeSet{Probes: probes, Digest: digest}
	a.reg.Set(cache.ScopeAgentProbes, agent, set)
	return set, nil
}

func digestProbes(probes []*models.Probe) (string, error) {
	raw, err := json.Marshal(probes)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(raw)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
