// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/eviction"
	"grimm.is/airwall/internal/linking"
	"grimm.is/airwall/internal/macrand"
	"grimm.is/airwall/internal/manager"
	"grimm.is/airwall/internal/merge"
	"grimm.is/airwall/internal/metrics"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/persist"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/selection"
	"grimm.is/airwall/internal/store"
)

type fakeSaver struct{}

func (fakeSaver) Schedule() {}

type testServer struct {
	srv *Server
	ts  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.New(0, nil)
	scans := store.NewScanCache()
	dir := permission.NewStaticDirectory(
		[]string{"settings"}, []string{"setupwizard"}, []string{"netservice"}, nil, nil)
	gate := permission.NewGate(dir)
	bus := events.NewBus()

	durable, err := persist.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { durable.Close() })

	deriver, err := macrand.NewHKDFDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	links := linking.New(linking.Config{Enabled: true}, scans)
	engine := merge.NewEngine(st, scans, gate, links,
		eviction.New(eviction.Config{}, nil), bus, fakeSaver{})

	mgr := manager.New(manager.Deps{
		Store:    st,
		Scans:    scans,
		Engine:   engine,
		Gate:     gate,
		Machine:  selection.NewMachine(bus, nil),
		Macs:     macrand.New(macrand.Config{Supported: true}, deriver, durable),
		Linker:   links,
		Bus:      bus,
		Durable:  durable,
		MacStore: durable,
		Saver:    fakeSaver{},
		Metrics:  metrics.NewMetrics(),
	})

	runner := manager.NewRunner(mgr)
	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)
	t.Cleanup(cancel)

	srv := NewServer(runner, dir)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{srv: srv, ts: ts}
}

func (s *testServer) do(t *testing.T, c permission.Caller, method, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Caller-UID", strconv.Itoa(c.UID))
	req.Header.Set("X-Caller-Name", c.Name)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var fields map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&fields)
	return resp, fields
}

var (
	settings = permission.Caller{UID: 1000, Name: "settings"}
	appA     = permission.Caller{UID: 7001, Name: "appa"}
)

func pskProfile(ssid string) *profile.Profile {
	return &profile.Profile{
		ID:           profile.InvalidID,
		SSID:         ssid,
		Security:     []profile.SecurityParams{{Type: profile.SecurityPSK, Enabled: true}},
		PreSharedKey: "hunter2hunter2",
	}
}

func addProfile(t *testing.T, s *testServer, c permission.Caller, ssid string) profile.ID {
	t.Helper()
	resp, fields := s.do(t, c, "POST", "/api/v1/profiles", pskProfile(ssid))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var id profile.ID
	require.NoError(t, json.Unmarshal(fields["id"], &id))
	return id
}

func TestAddListGet(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")

	resp, fields := s.do(t, appA, "GET", "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profiles []*profile.Profile
	require.NoError(t, json.Unmarshal(fields["profiles"], &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "HomeNet", profiles[0].SSID)
	assert.Equal(t, profile.PasswordMask, profiles[0].PreSharedKey,
		"unprivileged callers get redacted credentials")

	resp, _ = s.do(t, appA, "GET", fmt.Sprintf("/api/v1/profiles/%d", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, appA, "GET", "/api/v1/profiles/99", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, appA, "GET", "/api/v1/profiles/junk", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPrivilegedView(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")

	resp, _ := s.do(t, settings, "GET", fmt.Sprintf("/api/v1/profiles/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := s.do(t, settings, "GET", "/api/v1/profiles", nil)
	var profiles []*profile.Profile
	require.NoError(t, json.Unmarshal(fields["profiles"], &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "hunter2hunter2", profiles[0].PreSharedKey)
}

func TestUpdatePermissionDenied(t *testing.T) {
	s := newTestServer(t)
	addProfile(t, s, appA, "HomeNet")

	other := pskProfile("HomeNet")
	other.PreSharedKey = "stolenpassword"
	resp, _ := s.do(t, permission.Caller{UID: 9999, Name: "thief"}, "POST", "/api/v1/profiles", other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInvalidProfileRejected(t *testing.T) {
	s := newTestServer(t)
	bad := pskProfile("HomeNet")
	bad.PreSharedKey = "short"
	resp, _ := s.do(t, appA, "POST", "/api/v1/profiles", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemove(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")

	resp, _ := s.do(t, permission.Caller{UID: 9999, Name: "other"}, "DELETE", fmt.Sprintf("/api/v1/profiles/%d", id), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, appA, "DELETE", fmt.Sprintf("/api/v1/profiles/%d", id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, appA, "GET", fmt.Sprintf("/api/v1/profiles/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDisableEnableCycle(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")
	base := fmt.Sprintf("/api/v1/profiles/%d", id)

	resp, _ := s.do(t, appA, "POST", base+"/disable", map[string]bool{"by_service": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := s.do(t, appA, "GET", base, nil)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(mustMarshalFields(t, fields), &p))
	assert.Equal(t, profile.StatusPermanentlyDisabled, p.Selection.State)

	resp, _ = s.do(t, settings, "POST", base+"/enable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// mustMarshalFields re-assembles a decoded JSON object so it can be
// unmarshaled into a struct.
func mustMarshalFields(t *testing.T, fields map[string]json.RawMessage) []byte {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}

func TestFailureReporting(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")
	base := fmt.Sprintf("/api/v1/profiles/%d", id)

	resp, _ := s.do(t, appA, "POST", base+"/failure", map[string]string{"reason": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 5; i++ {
		resp, _ = s.do(t, appA, "POST", base+"/failure", map[string]string{"reason": "dhcp_failure"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	_, fields := s.do(t, appA, "GET", base, nil)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(mustMarshalFields(t, fields), &p))
	assert.Equal(t, profile.StatusTemporarilyDisabled, p.Selection.State)
}

func TestConnectionLifecycleAndGateway(t *testing.T) {
	s := newTestServer(t)
	a := addProfile(t, s, appA, "Home-2G")
	b := addProfile(t, s, appA, "Home-5G")

	resp, _ := s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/connected", a), map[string]bool{"captive_portal": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/disconnected", a), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/gateway", a), map[string]string{"mac": "aa:bb:cc:dd:ee:01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/gateway", b), map[string]string{"mac": "aa:bb:cc:dd:ee:01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := s.do(t, appA, "GET", fmt.Sprintf("/api/v1/profiles/%d/linked", a), nil)
	var linked []*profile.Profile
	require.NoError(t, json.Unmarshal(fields["linked"], &linked))
	require.Len(t, linked, 1)
	assert.Equal(t, "Home-5G", linked[0].SSID)

	resp, _ = s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/gateway", a), map[string]string{"mac": "junk"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshMAC(t *testing.T) {
	s := newTestServer(t)
	id := addProfile(t, s, appA, "HomeNet")

	resp, fields := s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/mac/refresh", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mac string
	require.NoError(t, json.Unmarshal(fields["mac"], &mac))
	assert.NotEmpty(t, mac)
}

func TestScanAndChoice(t *testing.T) {
	s := newTestServer(t)
	a := addProfile(t, s, appA, "NetA")
	b := addProfile(t, s, appA, "NetB")

	resp, _ := s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/scan", a),
		map[string]any{"bssid": "AA:BB:CC:DD:EE:FF", "rssi": -61, "frequency": 5180})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, appA, "POST", fmt.Sprintf("/api/v1/profiles/%d/choice", a), map[string]int{"rssi": -58})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := s.do(t, appA, "GET", fmt.Sprintf("/api/v1/profiles/%d", b), nil)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(mustMarshalFields(t, fields), &p))
	assert.Equal(t, "NetA-psk", p.Selection.ConnectChoice)
}

func TestFlushAndHealth(t *testing.T) {
	s := newTestServer(t)
	addProfile(t, s, appA, "HomeNet")

	resp, _ := s.do(t, appA, "POST", "/api/v1/flush", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, appA, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSwitchUser(t *testing.T) {
	s := newTestServer(t)
	addProfile(t, s, appA, "UserZero")

	resp, _ := s.do(t, settings, "POST", "/api/v1/users/switch", map[string]int{"user": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, fields := s.do(t, settings, "GET", "/api/v1/profiles", nil)
	var profiles []*profile.Profile
	require.NoError(t, json.Unmarshal(fields["profiles"], &profiles))
	assert.Empty(t, profiles, "user zero's private profiles are gone")
}
