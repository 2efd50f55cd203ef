package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(Options{
		Enabled:         true,
		Size:            10,
		Expiry:          time.Minute,
		AgentProbesSize: 10,
	}, nil)
}

func TestRegistry_ResetIsScopeLocal(t *testing.T) {
	r := testRegistry(t)
	r.Set(ScopeProbeGet, "p1", "probe")
	r.Set(ScopeProbeGroupGet, "g1", "group")

	r.Reset(ScopeProbeGet)

	_, ok := r.Get(ScopeProbeGet, "p1")
	assert.False(t, ok)
	_, ok = r.Get(ScopeProbeGroupGet, "g1")
	assert.True(t, ok, "other scopes are unaffected by a reset")
}

func TestRegistry_InvalidateWrite(t *testing.T) {
	r := testRegistry(t)
	r.Set(ScopeProbeGet, "p1", "probe")
	r.Set(ScopeProbeList, "user1", []string{"p1"})
	r.Set(ScopeProbeList, "user2", []string{"p9"})
	r.Set(ScopeAgentProbes, "agent1", "projection")
	r.Set(ScopeProbeGroupGet, "g1", "group")

	r.InvalidateWrite(KindProbe, "p1", "agent1")

	_, ok := r.Get(ScopeProbeGet, "p1")
	assert.False(t, ok, "ProbeGet entry for the written id must miss")
	_, ok = r.Get(ScopeProbeList, "user1")
	assert.False(t, ok, "whole ProbeList scope is reset")
	_, ok = r.Get(ScopeProbeList, "user2")
	assert.False(t, ok, "whole ProbeList scope is reset")
	_, ok = r.Get(ScopeAgentProbes, "agent1")
	assert.False(t, ok, "agent projection for the probe's agent is dropped")
	_, ok = r.Get(ScopeProbeGroupGet, "g1")
	assert.True(t, ok, "unrelated kinds keep their entries")
}

func TestRegistry_InvalidateDelete_ProbeGroup(t *testing.T) {
	r := testRegistry(t)
	r.Set(ScopeProbeGroupGet, "g1", "group")
	r.Set(ScopeProbeGroupList, "user1", []string{"g1"})
	r.Set(ScopeAgentProbes, "agent1", "projection")

	r.InvalidateDelete(KindProbeGroup, "g1", "")

	_, ok := r.Get(ScopeProbeGroupGet, "g1")
	assert.False(t, ok)
	_, ok = r.Get(ScopeProbeGroupList, "user1")
	assert.False(t, ok)
	_, ok = r.Get(ScopeAgentProbes, "agent1")
	assert.True(t, ok, "non-probe kinds leave the agent projection alone")
}

func TestRegistry_ResetAll(t *testing.T) {
	r := testRegistry(t)
	r.Set(ScopeUserGet, "u", 1)
	r.Set(ScopeProbeGet, "p", 2)
	r.Set(ScopeAgentProbes, "a", 3)

	r.ResetAll()

	for _, s := range []Scope{ScopeUserGet, ScopeProbeGet, ScopeAgentProbes} {
		_, ok := r.Get(s, "u")
		assert.False(t, ok, "scope %s should be empty", s)
	}
}

func TestRegistry_Disabled(t *testing.T) {
	r := NewRegistry(Options{Enabled: false, Size: 10, Expiry: time.Minute, AgentProbesSize: 10}, nil)
	r.Set(ScopeUserGet, "u", 1)
	_, ok := r.Get(ScopeUserGet, "u")
	assert.False(t, ok, "disabled registry never serves hits")
}

func TestRegistry_Snapshot(t *testing.T) {
	r := testRegistry(t)
	r.Set(ScopeUserGet, "u", 1)

	snap := r.Snapshot()
	require.Contains(t, snap, string(ScopeUserGet))
	assert.Equal(t, 1, snap[string(ScopeUserGet)].Len)
	require.Contains(t, snap, string(ScopeAgentProbes))
}
