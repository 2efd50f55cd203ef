package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/cache"
	"github.com/vigilhq/vigil-master/pkg/models"
)

const (
	probeClass = "vigilprobe"
	groupClass = "vigilprobegroup"
)

// ProbeDN is the directory location of one probe, nested under its owner.
func ProbeDN(user, probeUUID string) string {
	return fmt.Sprintf("%s=%s, uuid=%s, %s", probeClass, probeUUID, user, userBase)
}

// ProbeGroupDN is the directory location of one probe group.
func ProbeGroupDN(user, groupUUID string) string {
	return fmt.Sprintf("%s=%s, uuid=%s, %s", groupClass, groupUUID, user, userBase)
}

func userDN(user string) string {
	return fmt.Sprintf("uuid=%s, %s", user, userBase)
}

// probeCacheEntry caches error responses alongside hits, matching the user
// cache shape.
type probeCacheEntry struct {
	probe *models.Probe
	err   error
}

type groupCacheEntry struct {
	group *models.ProbeGroup
	err   error
}

// ProbeStore reads and writes probes through the gateway with read-through
// caching on the ProbeGet/ProbeList scopes. Every successful write
// invalidates through the registry before returning, so no read can observe
// a cache entry older than the write.
type ProbeStore struct {
	gw  API
	reg *cache.Registry
	log *slog.Logger
}

// NewProbeStore builds a probe store over the gateway and cache registry.
func NewProbeStore(gw API, reg *cache.Registry, log *slog.Logger) *ProbeStore {
	if log == nil {
		log = slog.Default()
	}
	return &ProbeStore{gw: gw, reg: reg, log: log}
}

// Get loads one probe by owner and uuid.
func (s *ProbeStore) Get(ctx context.Context, user, probeUUID string) (*models.Probe, error) {
	dn := ProbeDN(user, probeUUID)
	if cached, ok := s.reg.Get(cache.ScopeProbeGet, dn); ok {
		ent := cached.(probeCacheEntry)
		return ent.probe, ent.err
	}
	entry, err := s.gw.Get(ctx, dn)
	if err != nil {
		if !apperr.IsKind(err, apperr.Unavailable) {
			s.reg.Set(cache.ScopeProbeGet, dn, probeCacheEntry{err: err})
		}
		return nil, err
	}
	probe := probeFromEntry(entry)
	s.reg.Set(cache.ScopeProbeGet, dn, probeCacheEntry{probe: probe})
	return probe, nil
}

// List returns every probe owned by user.
func (s *ProbeStore) List(ctx context.Context, user string) ([]*models.Probe, error) {
	if cached, ok := s.reg.Get(cache.ScopeProbeList, user); ok {
		return cached.([]*models.Probe), nil
	}
	entries, err := s.gw.Search(ctx, userDN(user), SearchOpts{
		Filter: fmt.Sprintf("(objectclass=%s)", probeClass),
	})
	if err != nil {
		return nil, err
	}
	probes := make([]*models.Probe, 0, len(entries))
	for _, e := range entries {
		probes = append(probes, probeFromEntry(e))
	}
	s.reg.Set(cache.ScopeProbeList, user, probes)
	return probes, nil
}

// Put creates or replaces a probe, then invalidates the caches.
func (s *ProbeStore) Put(ctx context.Context, p *models.Probe) error {
	if p.UUID == "" || p.User == "" {
		return apperr.New(apperr.InvalidArgument, "probe uuid and user are required")
	}
	dn := ProbeDN(p.User, p.UUID)
	attrs := probeAttrs(p)
	err := s.gw.Add(ctx, dn, attrs)
	if apperr.IsKind(err, apperr.Conflict) {
		err = s.gw.Modify(ctx, dn, attrs)
	}
	if err != nil {
		return err
	}
	s.reg.InvalidateWrite(cache.KindProbe, dn, p.Agent)
	return nil
}

// Delete removes a probe. The record is loaded first so invalidation can
// target the owning agent's projection entry.
func (s *ProbeStore) Delete(ctx context.Context, user, probeUUID string) error {
	probe, err := s.Get(ctx, user, probeUUID)
	if err != nil {
		return err
	}
	dn := ProbeDN(user, probeUUID)
	if err := s.gw.Delete(ctx, dn); err != nil {
		return err
	}
	s.reg.InvalidateDelete(cache.KindProbe, dn, probe.Agent)
	return nil
}

// ProbeGroupStore reads and writes probe groups, cached on the
// ProbeGroupGet/ProbeGroupList scopes.
type ProbeGroupStore struct {
	gw  API
	reg *cache.Registry
	log *slog.Logger
}

// NewProbeGroupStore builds a group store over the gateway and registry.
func NewProbeGroupStore(gw API, reg *cache.Registry, log *slog.Logger) *ProbeGroupStore {
	if log == nil {
		log = slog.Default()
	}
	return &ProbeGroupStore{gw: gw, reg: reg, log: log}
}

// Get loads one probe group by owner and uuid.
func (s *ProbeGroupStore) Get(ctx context.Context, user, groupUUID string) (*models.ProbeGroup, error) {
	dn := ProbeGroupDN(user, groupUUID)
	if cached, ok := s.reg.Get(cache.ScopeProbeGroupGet, dn); ok {
		ent := cached.(groupCacheEntry)
		return ent.group, ent.err
	}
	entry, err := s.gw.Get(ctx, dn)
	if err != nil {
		if !apperr.IsKind(err, apperr.Unavailable) {
			s.reg.Set(cache.ScopeProbeGroupGet, dn, groupCacheEntry{err: err})
		}
		return nil, err
	}
	group := groupFromEntry(entry)
	s.reg.Set(cache.ScopeProbeGroupGet, dn, groupCacheEntry{group: group})
	return group, nil
}

// List returns every probe group owned by user.
func (s *ProbeGroupStore) List(ctx context.Context, user string) ([]*models.ProbeGroup, error) {
	if cached, ok := s.reg.Get(cache.ScopeProbeGroupList, user); ok {
		return cached.([]*models.ProbeGroup), nil
	}
	entries, err := s.gw.Search(ctx, userDN(user), SearchOpts{
		Filter: fmt.Sprintf("(objectclass=%s)", groupClass),
	})
	if err != nil {
		return nil, err
	}
	groups := make([]*models.ProbeGroup, 0, len(entries))
	for _, e := range entries {
		groups = append(groups, groupFromEntry(e))
	}
	s.reg.Set(cache.ScopeProbeGroupList, user, groups)
	return groups, nil
}

// Put creates or replaces a probe group, then invalidates the caches.
func (s *ProbeGroupStore) Put(ctx context.Context, g *models.ProbeGroup) error {
	if g.UUID == "" || g.User == "" {
		return apperr.New(apperr.InvalidArgument, "group uuid and user are required")
	}
	dn := ProbeGroupDN(g.User, g.UUID)
	attrs := groupAttrs(g)
	err := s.gw.Add(ctx, dn, attrs)
	if apperr.IsKind(err, apperr.Conflict) {
		err = s.gw.Modify(ctx, dn, attrs)
	}
	if err != nil {
		return err
	}
	s.reg.InvalidateWrite(cache.KindProbeGroup, dn, "")
	return nil
}

// Delete removes a probe group. Probes referencing it are left alone; the
// correlation engine tolerates the resulting stale references.
func (s *ProbeGroupStore) Delete(ctx context.Context, user, groupUUID string) error {
	dn := ProbeGroupDN(user, groupUUID)
	if err := s.gw.Delete(ctx, dn); err != nil {
		return err
	}
	s.reg.InvalidateDelete(cache.KindProbeGroup, dn, "")
	return nil
}

func probeFromEntry(e *Entry) *models.Probe {
	groupEvents := true
	if v := e.First("groupevents"); v != "" {
		groupEvents, _ = strconv.ParseBool(v)
	}
	return &models.Probe{
		UUID:        e.First("uuid"),
		User:        e.First("owner"),
		Name:        e.First("name"),
		Type:        e.First("type"),
		Agent:       e.First("agent"),
		Machine:     e.First("machine"),
		Group:       e.First("group"),
		GroupEvents: groupEvents,
		Contacts:    e.Attrs["contact"],
		Disabled:    e.First("disabled") == "true",
	}
}

func probeAttrs(p *models.Probe) map[string][]string {
	attrs := map[string][]string{
		"objectclass": {probeClass},
		"uuid":        {p.UUID},
		"owner":       {p.User},
		"name":        {p.Name},
		"type":        {p.Type},
		"agent":       {p.Agent},
		"groupevents": {strconv.FormatBool(p.GroupEvents)},
	}
	if p.Machine != "" {
		attrs["machine"] = []string{p.Machine}
	}
	if p.Group != "" {
		attrs["group"] = []string{p.Group}
	}
	if len(p.Contacts) > 0 {
		attrs["contact"] = p.Contacts
	}
	if p.Disabled {
		attrs["disabled"] = []string{"true"}
	}
	return attrs
}

func groupFromEntry(e *Entry) *models.ProbeGroup {
	return &models.ProbeGroup{
		UUID:     e.First("uuid"),
		User:     e.First("owner"),
		Name:     e.First("name"),
		Contacts: e.Attrs["contact"],
		Disabled: e.First("disabled") == "true",
	}
}

func groupAttrs(g *models.ProbeGroup) map[string][]string {
	attrs := map[string][]string{
		"objectclass": {groupClass},
		"uuid":        {g.UUID},
		"owner":       {g.User},
		"name":        {g.Name},
	}
	if len(g.Contacts) > 0 {
		attrs["contact"] = g.Contacts
	}
	if g.Disabled {
		attrs["disabled"] = []string{"true"}
	}
	return attrs
}
