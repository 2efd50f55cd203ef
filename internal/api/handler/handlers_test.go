package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil-master/internal/api/handler"
	"github.com/vigilhq/vigil-master/internal/apperr"
	"github.com/vigilhq/vigil-master/internal/cache"
	"github.com/vigilhq/vigil-master/internal/directory"
	"github.com/vigilhq/vigil-master/internal/respcache"
	"github.com/vigilhq/vigil-master/internal/store"
	"github.com/vigilhq/vigil-master/pkg/models"
)

const (
	ownerUUID = "11111111-2222-3333-4444-555555555555"
	agentUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

// --- fakes ---

type fakePinger struct{ err error }

func (p *fakePinger) Ping(_ context.Context) error { return p.err }

type fakeEngine struct {
	err    error
	events []*models.Event
}

func (e *fakeEngine) ProcessEvent(_ context.Context, event *models.Event) error {
	e.events = append(e.events, event)
	return e.err
}

type fakeLister struct {
	set   *directory.AgentProbeSet
	err   error
	calls int
}

func (l *fakeLister) ListByAgent(_ context.Context, _ string) (*directory.AgentProbeSet, error) {
	l.calls++
	return l.set, l.err
}

type fakeRespCache struct {
	data map[string][]byte
}

func newFakeRespCache() *fakeRespCache {
	return &fakeRespCache{data: make(map[string][]byte)}
}

func (c *fakeRespCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *fakeRespCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeRespCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeRespCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (c *fakeRespCache) Ping(_ context.Context) error { return nil }

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) Resolve(_ context.Context, userID string) (*models.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.NotFound, "no such user: %q", userID)
}

type fakeAlarms struct {
	alarms map[int64]*models.Alarm

	lastFilter     store.AlarmFilter
	closedCalls    []bool
	suppressCalls  []bool
	deleted        []int64
	listErr        error
	notFoundOnMods bool
}

func (f *fakeAlarms) Ping(_ context.Context) error { return nil }

func (f *fakeAlarms) Create(_ context.Context, alarm *models.Alarm) error {
	alarm.ID = int64(len(f.alarms) + 1)
	f.alarms[alarm.ID] = alarm
	return nil
}

func (f *fakeAlarms) Get(_ context.Context, _ string, id int64) (*models.Alarm, error) {
	a, ok := f.alarms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeAlarms) List(_ context.Context, filter store.AlarmFilter) ([]*models.Alarm, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Alarm
	for _, a := range f.alarms {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAlarms) ListOpen(_ context.Context, _ string) ([]*models.Alarm, error) {
	return nil, nil
}

func (f *fakeAlarms) Update(_ context.Context, _ *models.Alarm) error { return nil }

func (f *fakeAlarms) SetClosed(_ context.Context, _ string, _ int64, closed bool) error {
	if f.notFoundOnMods {
		return store.ErrNotFound
	}
	f.closedCalls = append(f.closedCalls, closed)
	return nil
}

func (f *fakeAlarms) SetSuppressed(_ context.Context, _ string, _ int64, suppressed bool) error {
	if f.notFoundOnMods {
		return store.ErrNotFound
	}
	f.suppressCalls = append(f.suppressCalls, suppressed)
	return nil
}

func (f *fakeAlarms) Delete(_ context.Context, _ string, id int64) error {
	if _, ok := f.alarms[id]; !ok {
		return store.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// --- helpers ---

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody(t, w)["error"].(map[string]any)["code"].(string)
}

// alarmRequest routes a request through chi so URL params resolve.
func alarmRequest(h http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, "/pub/{user}/alarms", h)
	r.MethodFunc(method, "/pub/{user}/alarms/{id}", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func testUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.User{
		ownerUUID: {UUID: ownerUUID, Login: "alice"},
		"alice":   {UUID: ownerUUID, Login: "alice"},
	}}
}

// ========================================
// Ping
// ========================================

func TestPing_AllUp(t *testing.T) {
	h := handler.NewPingHandler(&fakePinger{}, &fakePinger{}, "1.4.0")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "pong", data["ping"])
	assert.Equal(t, "1.4.0", data["version"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "up", services["db"])
	assert.Equal(t, "up", services["cache"])
}

func TestPing_CacheDown(t *testing.T) {
	h := handler.NewPingHandler(&fakePinger{}, &fakePinger{err: respcache.ErrUnavailable}, "dev")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	// A dead dependency is reported, not turned into a failing health check.
	require.Equal(t, http.StatusOK, w.Code)
	services := decodeBody(t, w)["data"].(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "up", services["db"])
	assert.Equal(t, "down", services["cache"])
}

// ========================================
// Events
// ========================================

func postEvent(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/events", strings.NewReader(body))
	h.ServeHTTP(w, req)
	return w
}

func TestEvents_Accepted(t *testing.T) {
	engine := &fakeEngine{}
	h := handler.NewEventsHandler(engine, nil)

	w := postEvent(h, `{
		"type": "probe",
		"user": "`+ownerUUID+`",
		"probeUuid": "`+agentUUID+`",
		"machine": "mach-1",
		"clear": false,
		"time": "2026-09-01T10:00:00Z",
		"data": {"message": "disk full"}
	}`)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, engine.events, 1)
	ev := engine.events[0]
	assert.Equal(t, models.EventTypeProbe, ev.Type)
	assert.Equal(t, ownerUUID, ev.User)
	assert.Equal(t, agentUUID, ev.ProbeUUID)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), ev.Time)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", ev.ID.String(),
		"an unstamped event gets a generated id")
}

func TestEvents_InvalidJSON(t *testing.T) {
	h := handler.NewEventsHandler(&fakeEngine{}, nil)
	w := postEvent(h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRequest", errCode(t, w))
}

func TestEvents_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing type", `{"user": "u"}`},
		{"unknown type", `{"type": "smoke-signal", "user": "u"}`},
		{"missing user", `{"type": "probe"}`},
		{"bad time", `{"type": "probe", "user": "u", "time": "yesterday"}`},
		{"bad uuid", `{"type": "probe", "user": "u", "uuid": "nope"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{}
			w := postEvent(handler.NewEventsHandler(engine, nil), tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, engine.events, "invalid events must not reach the engine")
		})
	}
}

func TestEvents_EngineErrorMapped(t *testing.T) {
	engine := &fakeEngine{err: apperr.New(apperr.Unavailable, "directory down")}
	w := postEvent(handler.NewEventsHandler(engine, nil), `{"type": "probe", "user": "u"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ServiceUnavailable", errCode(t, w))
}

type fakeMachines struct {
	known map[string]bool
	calls int
}

func (m *fakeMachines) ServerExists(_ context.Context, id string) (bool, error) {
	m.calls++
	return m.known[id], nil
}

func TestEvents_UnknownMachineStillProcessed(t *testing.T) {
	engine := &fakeEngine{}
	machines := &fakeMachines{known: map[string]bool{}}
	h := handler.NewEventsHandler(engine, machines)

	w := postEvent(h, `{"type": "probe", "user": "u", "machine": "mach-9"}`)

	// Inventory is advisory; an unknown machine is logged, not rejected.
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, machines.calls)
	assert.Len(t, engine.events, 1)
}

// ========================================
// State
// ========================================

func TestState_Snapshot(t *testing.T) {
	reg := cache.NewRegistry(cache.DefaultOptions(), nil)
	reg.Set(cache.ScopeUserGet, "k", "v")
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	h := handler.NewStateHandler(reg, level)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/state", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "WARN", data["log_level"])
	assert.Contains(t, data["caches"], "UserGet")
}

func TestState_DropCaches(t *testing.T) {
	reg := cache.NewRegistry(cache.DefaultOptions(), nil)
	reg.Set(cache.ScopeUserGet, "k", "v")

	h := handler.NewStateActionHandler(reg)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/state?action=dropcaches", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := reg.Get(cache.ScopeUserGet, "k")
	assert.False(t, ok, "dropcaches must empty every scope")
}

func TestState_UnknownAction(t *testing.T) {
	h := handler.NewStateActionHandler(cache.NewRegistry(cache.DefaultOptions(), nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/state?action=explode", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRequest", errCode(t, w))
}

// ========================================
// Agent probes
// ========================================

func testProbeSet() *directory.AgentProbeSet {
	return &directory.AgentProbeSet{
		Probes: []*models.Probe{{UUID: "p1", User: ownerUUID, Agent: agentUUID, GroupEvents: true}},
		Digest: "q1w2e3r4t5y6u7i8o9p0==",
	}
}

func TestAgentProbes_MissingAgent(t *testing.T) {
	h := handler.NewAgentProbesHandler(&fakeLister{}, newFakeRespCache())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/agentprobes", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentProbes_InvalidAgent(t *testing.T) {
	h := handler.NewAgentProbesHandler(&fakeLister{}, newFakeRespCache())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/agentprobes?agent=not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentProbes_ServesSetWithDigest(t *testing.T) {
	set := testProbeSet()
	rc := newFakeRespCache()
	h := handler.NewAgentProbesHandler(&fakeLister{set: set}, rc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/agentprobes?agent="+agentUUID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, set.Digest, w.Header().Get("Content-MD5"))
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, set.Digest, data["digest"])
	assert.Len(t, data["probes"], 1)

	_, filled := rc.data[respcache.AgentProbesKey(agentUUID)]
	assert.True(t, filled, "successful responses are written through to the cache service")
}

func TestAgentProbes_HeadReturnsDigestOnly(t *testing.T) {
	set := testProbeSet()
	h := handler.NewAgentProbesHandler(&fakeLister{set: set}, newFakeRespCache())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("HEAD", "/agentprobes?agent="+agentUUID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, set.Digest, w.Header().Get("Content-MD5"))
	assert.Empty(t, w.Body.Bytes())
}

func TestAgentProbes_DirectoryDownServesFallback(t *testing.T) {
	set := testProbeSet()
	rc := newFakeRespCache()
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	require.NoError(t, rc.Set(context.Background(), respcache.AgentProbesKey(agentUUID), raw, 0))

	lister := &fakeLister{err: apperr.New(apperr.Unavailable, "directory down")}
	h := handler.NewAgentProbesHandler(lister, rc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/agentprobes?agent="+agentUUID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, set.Digest, w.Header().Get("Content-MD5"))
}

func TestAgentProbes_DirectoryDownNoFallback(t *testing.T) {
	lister := &fakeLister{err: apperr.New(apperr.Unavailable, "directory down")}
	h := handler.NewAgentProbesHandler(lister, newFakeRespCache())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/agentprobes?agent="+agentUUID, nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ========================================
// Alarms
// ========================================

func TestListAlarms_DefaultState(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{
		1: {ID: 1, User: ownerUUID},
	}}
	h := handler.NewListAlarmsHandler(testUsers(), alarms)

	w := alarmRequest(h, "GET", "/pub/alice/alarms")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.StateOpen, alarms.lastFilter.State)
	assert.Equal(t, ownerUUID, alarms.lastFilter.Owner, "login resolves to the canonical uuid")
}

func TestListAlarms_FilterPassthrough(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{}}
	h := handler.NewListAlarmsHandler(testUsers(), alarms)

	w := alarmRequest(h, "GET", "/pub/"+ownerUUID+"/alarms?state=closed&probe=p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.StateClosed, alarms.lastFilter.State)
	assert.Equal(t, "p1", alarms.lastFilter.Probe)
}

func TestListAlarms_InvalidState(t *testing.T) {
	h := handler.NewListAlarmsHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "GET", "/pub/alice/alarms?state=bogus")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAlarms_UnknownUser(t *testing.T) {
	h := handler.NewListAlarmsHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "GET", "/pub/nobody/alarms")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", errCode(t, w))
}

func TestGetAlarm(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{
		7: {ID: 7, User: ownerUUID, NumEvents: 3},
	}}
	h := handler.NewGetAlarmHandler(testUsers(), alarms)

	w := alarmRequest(h, "GET", "/pub/alice/alarms/7")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(7), data["id"])
	assert.Equal(t, float64(3), data["numEvents"])
}

func TestGetAlarm_NotFound(t *testing.T) {
	h := handler.NewGetAlarmHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "GET", "/pub/alice/alarms/99")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", errCode(t, w))
}

func TestGetAlarm_BadID(t *testing.T) {
	h := handler.NewGetAlarmHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "GET", "/pub/alice/alarms/seven")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlarmAction_CloseAndReopen(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{1: {ID: 1}}}
	h := handler.NewAlarmActionHandler(testUsers(), alarms)

	w := alarmRequest(h, "POST", "/pub/alice/alarms/1?action=close")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = alarmRequest(h, "POST", "/pub/alice/alarms/1?action=reopen")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []bool{true, false}, alarms.closedCalls)
}

func TestAlarmAction_SuppressAndUnsuppress(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{1: {ID: 1}}}
	h := handler.NewAlarmActionHandler(testUsers(), alarms)

	w := alarmRequest(h, "POST", "/pub/alice/alarms/1?action=suppress")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = alarmRequest(h, "POST", "/pub/alice/alarms/1?action=unsuppress")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []bool{true, false}, alarms.suppressCalls)
}

func TestAlarmAction_Unknown(t *testing.T) {
	h := handler.NewAlarmActionHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "POST", "/pub/alice/alarms/1?action=detonate")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlarmAction_NotFound(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{}, notFoundOnMods: true}
	h := handler.NewAlarmActionHandler(testUsers(), alarms)

	w := alarmRequest(h, "POST", "/pub/alice/alarms/1?action=close")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAlarm(t *testing.T) {
	alarms := &fakeAlarms{alarms: map[int64]*models.Alarm{4: {ID: 4}}}
	h := handler.NewDeleteAlarmHandler(testUsers(), alarms)

	w := alarmRequest(h, "DELETE", "/pub/alice/alarms/4")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{4}, alarms.deleted)
}

func TestDeleteAlarm_NotFound(t *testing.T) {
	h := handler.NewDeleteAlarmHandler(testUsers(), &fakeAlarms{alarms: map[int64]*models.Alarm{}})
	w := alarmRequest(h, "DELETE", "/pub/alice/alarms/4")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ store.AlarmStore = (*fakeAlarms)(nil)
