package cache

import (
	"log/slog"
	"time"
)

// Scope names one cache namespace. Directory-backed resource kinds get a
// "<Kind>Get" and "<Kind>List" scope pair; the remaining scopes back
// specific lookups.
type Scope string

const (
	ScopeUserGet        Scope = "UserGet"
	ScopeIsOperator     Scope = "IsOperator"
	ScopeServers        Scope = "Servers"
	ScopeProbeGet       Scope = "ProbeGet"
	ScopeProbeList      Scope = "ProbeList"
	ScopeProbeGroupGet  Scope = "ProbeGroupGet"
	ScopeProbeGroupList Scope = "ProbeGroupList"
	// ScopeAgentProbes is the probes-by-agent projection. It is keyed by
	// agent id and sized to the fleet's design maximum rather than
	// time-bounded: every agent polls its own key regularly, so TTL expiry
	// would only force pointless re-reads.
	ScopeAgentProbes Scope = "AgentProbes"
)

// Resource kinds whose writes drive invalidation.
const (
	KindProbe      = "Probe"
	KindProbeGroup = "ProbeGroup"
)

// Options bounds the registry's scopes.
type Options struct {
	// Enabled turns directory read caching on. When false every Get
	// misses and writes are dropped, which degrades to hitting the
	// directory on every read.
	Enabled bool
	// Size and Expiry bound the per-kind scopes and the user scopes.
	Size   int
	Expiry time.Duration
	// AgentProbesSize bounds the probes-by-agent projection (no TTL).
	AgentProbesSize int
}

// DefaultOptions mirror the production deployment shape.
func DefaultOptions() Options {
	return Options{
		Enabled:         true,
		Size:            100,
		Expiry:          5 * time.Minute,
		AgentProbesSize: 1000000,
	}
}

// Registry owns every cache scope for one service instance. It is built
// once at startup and shared by reference with all request handlers;
// centralizing the scopes here keeps the interdependent invalidation in
// one place.
type Registry struct {
	enabled bool
	scopes  map[Scope]*ScopedCache
	log     *slog.Logger
}

// NewRegistry builds all scopes up front.
func NewRegistry(opts Options, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	mk := func(s Scope) *ScopedCache {
		return NewScoped(string(s), opts.Size, opts.Expiry)
	}
	return &Registry{
		enabled: opts.Enabled,
		log:     log,
		scopes: map[Scope]*ScopedCache{
			ScopeUserGet:        mk(ScopeUserGet),
			ScopeIsOperator:     mk(ScopeIsOperator),
			ScopeServers:        mk(ScopeServers),
			ScopeProbeGet:       mk(ScopeProbeGet),
			ScopeProbeList:      mk(ScopeProbeList),
			ScopeProbeGroupGet:  mk(ScopeProbeGroupGet),
			ScopeProbeGroupList: mk(ScopeProbeGroupList),
			ScopeAgentProbes:    NewScoped(string(ScopeAgentProbes), opts.AgentProbesSize, 0),
		},
	}
}

// Get returns the cached value under scope/key, or a miss when caching is
// disabled or the scope is unknown.
func (r *Registry) Get(scope Scope, key string) (any, bool) {
	if !r.enabled {
		return nil, false
	}
	c, ok := r.scopes[scope]
	if !ok {
		return nil, false
	}
	return c.Get(key)
}

// Set stores value under scope/key.
func (r *Registry) Set(scope Scope, key string, value any) {
	if !r.enabled {
		return
	}
	if c, ok := r.scopes[scope]; ok {
		c.Set(key, value)
	}
}

// Del removes scope/key.
func (r *Registry) Del(scope Scope, key string) {
	if !r.enabled {
		return
	}
	if c, ok := r.scopes[scope]; ok {
		c.Del(key)
	}
}

// Reset empties a single scope.
func (r *Registry) Reset(scope Scope) {
	if c, ok := r.scopes[scope]; ok {
		c.Reset()
	}
}

// ResetAll empties every scope. Operational escape hatch behind the admin
// endpoint, not used by normal request handling.
func (r *Registry) ResetAll() {
	for _, c := range r.scopes {
		c.Reset()
	}
}

// InvalidateWrite applies the invalidation rules after a successful create
// or update of the given kind:
//
//  1. reset the "<Kind>List" scope entirely (full-scope reset instead of
//     per-owner invalidation lists, a documented simplification),
//  2. delete the "<Kind>Get" entry for id (this also covers a previously
//     cached failed lookup),
//  3. for probes, delete the owning agent's entry in the probes-by-agent
//     projection, which is keyed by agent rather than probe id.
//
// agent is ignored for kinds other than Probe.
func (r *Registry) InvalidateWrite(kind, id, agent string) {
	if !r.enabled {
		return
	}
	r.log.Debug("cache invalidate write", "kind", kind, "id", id, "agent", agent)
	r.Reset(Scope(kind + "List"))
	r.Del(Scope(kind+"Get"), id)
	if kind == KindProbe && agent != "" {
		r.Del(ScopeAgentProbes, agent)
	}
}

// InvalidateDelete applies the same rules for a successful delete, keyed by
// the deleted entity's identifier.
func (r *Registry) InvalidateDelete(kind, id, agent string) {
	if !r.enabled {
		return
	}
	r.log.Debug("cache invalidate delete", "kind", kind, "id", id, "agent", agent)
	r.Reset(Scope(kind + "List"))
	r.Del(Scope(kind+"Get"), id)
	if kind == KindProbe && agent != "" {
		r.Del(ScopeAgentProbes, agent)
	}
}

// Snapshot dumps every scope for the admin state endpoint.
func (r *Registry) Snapshot() map[string]Dump {
	out := make(map[string]Dump, len(r.scopes))
	for name, c := range r.scopes {
		out[string(name)] = c.Dump()
	}
	return out
}
