// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/driver"
	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/eviction"
	"grimm.is/airwall/internal/linking"
	"grimm.is/airwall/internal/macrand"
	"grimm.is/airwall/internal/merge"
	"grimm.is/airwall/internal/metrics"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/persist"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/selection"
	"grimm.is/airwall/internal/store"
)

var (
	settings = permission.Caller{UID: 1000, Name: "settings"}
	appA     = permission.Caller{UID: 7001, Name: "appa"}
	userTwo  = permission.Caller{UID: 100000 + 7001, Name: "appa"}
)

type fakeSaver struct{ scheduled int }

func (f *fakeSaver) Schedule() { f.scheduled++ }

type harness struct {
	mgr     *Manager
	store   *store.Store
	scans   *store.ScanCache
	saver   *fakeSaver
	durable *persist.SQLiteStore
	events  *[]events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, filepath.Join(t.TempDir(), "registry.db"))
}

func newHarnessAt(t *testing.T, dbPath string) *harness {
	t.Helper()
	st := store.New(0, nil)
	scans := store.NewScanCache()
	gate := permission.NewGate(permission.NewStaticDirectory(
		[]string{"settings"}, []string{"setupwizard"}, []string{"netservice"}, nil, nil))
	bus := events.NewBus()
	var got []events.Event
	bus.AddListener("test", func(ev events.Event) { got = append(got, ev) })

	durable, err := persist.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { durable.Close() })

	deriver, err := macrand.NewHKDFDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	saver := &fakeSaver{}
	links := linking.New(linking.Config{Enabled: true}, scans)
	engine := merge.NewEngine(st, scans, gate, links,
		eviction.New(eviction.Config{}, nil), bus, saver)

	mgr := New(Deps{
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
		Saver:    saver,
		Metrics:  metrics.NewMetrics(),
	})
	return &harness{mgr: mgr, store: st, scans: scans, saver: saver, durable: durable, events: &got}
}

func pskProfile(ssid string) *profile.Profile {
	return &profile.Profile{
		ID:           profile.InvalidID,
		SSID:         ssid,
		Security:     []profile.SecurityParams{{Type: profile.SecurityPSK, Enabled: true}},
		PreSharedKey: "hunter2hunter2",
	}
}

func mustAdd(t *testing.T, h *harness, c permission.Caller, p *profile.Profile) profile.ID {
	t.Helper()
	res := h.mgr.AddOrUpdate(c, p)
	require.Equal(t, merge.StatusSuccess, res.Status)
	return res.ID
}

func TestProfilesMaskedAndPrivileged(t *testing.T) {
	h := newHarness(t)
	mustAdd(t, h, appA, pskProfile("HomeNet"))

	masked := h.mgr.Profiles(false)
	require.Len(t, masked, 1)
	assert.Equal(t, profile.PasswordMask, masked[0].PreSharedKey)

	priv := h.mgr.Profiles(true)
	assert.Equal(t, "hunter2hunter2", priv[0].PreSharedKey)

	// Returned copies never alias internal state.
	priv[0].SSID = "tampered"
	again, err := h.mgr.Profile(priv[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, "HomeNet", again.SSID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	h := newHarnessAt(t, dbPath)

	shared := pskProfile("Shared")
	shared.Shared = true
	sharedID := mustAdd(t, h, settings, shared)
	privateID := mustAdd(t, h, appA, pskProfile("Private"))

	eph := pskProfile("Ephemeral")
	eph.Ephemeral = true
	mustAdd(t, h, appA, eph)

	ctx := context.Background()
	require.NoError(t, h.mgr.SaveToStore(ctx))

	h2 := newHarnessAt(t, dbPath)
	require.NoError(t, h2.mgr.LoadFromStore(ctx))
	assert.Equal(t, 2, h2.store.Count(), "ephemeral profiles never persist")

	p, err := h2.mgr.ProfileByKey("Shared-psk", true)
	require.NoError(t, err)
	assert.True(t, p.Shared)
	_, err = h2.mgr.ProfileByKey("Private-psk", true)
	assert.NoError(t, err)

	_ = sharedID
	_ = privateID
}

func TestReconcileKeepsLiveIDs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	h := newHarnessAt(t, dbPath)

	id := mustAdd(t, h, appA, pskProfile("HomeNet"))
	ctx := context.Background()
	require.NoError(t, h.mgr.SaveToStore(ctx))

	// Reload into the same live registry: the key matches, the ID holds.
	require.NoError(t, h.mgr.LoadFromStore(ctx))
	p, err := h.mgr.ProfileByKey("HomeNet-psk", false)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
}

func TestLoadFailurePolicy(t *testing.T) {
	h := newHarness(t)
	h.mgr.deps.Durable = failingStore{}

	require.NoError(t, h.mgr.LoadFromStore(context.Background()), "production swallows load errors")
	assert.Zero(t, h.store.Count())

	h.mgr.deps.Debug = true
	err := h.mgr.LoadFromStore(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
}

type failingStore struct{}

func (failingStore) SavePartition(context.Context, string, []*profile.Profile) error {
	return errors.New(errors.KindUnavailable, "disk gone")
}
func (failingStore) LoadPartition(context.Context, string) ([]*profile.Profile, error) {
	return nil, errors.New(errors.KindUnavailable, "disk gone")
}
func (failingStore) Close() error { return nil }

func TestSwitchUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	h := newHarnessAt(t, dbPath)
	ctx := context.Background()

	shared := pskProfile("Shared")
	shared.Shared = true
	mustAdd(t, h, settings, shared)
	mustAdd(t, h, appA, pskProfile("UserZero"))

	require.NoError(t, h.mgr.SwitchUser(ctx, 1))
	assert.Equal(t, 1, h.store.CurrentUser())
	assert.Equal(t, 1, h.store.Count(), "user zero's private profile left memory")

	mustAdd(t, h, userTwo, pskProfile("UserOne"))
	require.NoError(t, h.mgr.SwitchUser(ctx, 0))
	assert.Equal(t, 2, h.store.Count(), "shared plus user zero's private")
	_, err := h.mgr.ProfileByKey("UserZero-psk", false)
	assert.NoError(t, err)
	_, err = h.mgr.ProfileByKey("UserOne-psk", false)
	assert.Error(t, err)
}

func TestStopUserFlushesAndDrops(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	h := newHarnessAt(t, dbPath)
	ctx := context.Background()

	mustAdd(t, h, appA, pskProfile("Private"))
	require.NoError(t, h.mgr.StopUser(ctx, 0))
	assert.Zero(t, h.store.Count())

	require.NoError(t, h.mgr.UnlockUser(ctx, 0))
	assert.Equal(t, 1, h.store.Count())

	assert.Error(t, h.mgr.UnlockUser(ctx, 5), "only the current user unlocks")
}

func TestFailureDisableAndRecovery(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	restore := clock.SetSource(func() time.Time { return start })
	t.Cleanup(restore)

	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))

	for i := 0; i < 5; i++ {
		require.NoError(t, h.mgr.ReportFailure(id, profile.DisableDHCPFailure))
	}
	p, err := h.mgr.Profile(id, false)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusTemporarilyDisabled, p.Selection.State)

	assert.Zero(t, h.mgr.TryEnableAll(), "timeout not elapsed")

	clock.SetSource(func() time.Time { return start.Add(6 * time.Minute) })
	assert.Equal(t, 1, h.mgr.TryEnableAll())
	p, _ = h.mgr.Profile(id, false)
	assert.True(t, p.Selection.Enabled())
}

func TestDisablePermissionAndEnable(t *testing.T) {
	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))

	other := permission.Caller{UID: 9999, Name: "other"}
	assert.Error(t, h.mgr.Disable(other, id, false))

	require.NoError(t, h.mgr.Disable(appA, id, false))
	p, _ := h.mgr.Profile(id, false)
	assert.Equal(t, profile.StatusPermanentlyDisabled, p.Selection.State)
	assert.Equal(t, profile.DisableByUser, p.Selection.DisableReason)

	require.NoError(t, h.mgr.Enable(settings, id))
	p, _ = h.mgr.Profile(id, false)
	assert.True(t, p.Selection.Enabled())
}

func TestConnectChoice(t *testing.T) {
	h := newHarness(t)
	a := mustAdd(t, h, appA, pskProfile("NetA"))
	b := mustAdd(t, h, appA, pskProfile("NetB"))
	c := mustAdd(t, h, appA, pskProfile("NetC"))
	require.NoError(t, h.mgr.Disable(appA, c, false))

	require.NoError(t, h.mgr.SetConnectChoice(a, -58))
	pb, _ := h.mgr.Profile(b, false)
	assert.Equal(t, "NetA-psk", pb.Selection.ConnectChoice)
	assert.Equal(t, -58, pb.Selection.ConnectChoiceRSSI)
	pc, _ := h.mgr.Profile(c, false)
	assert.Empty(t, pc.Selection.ConnectChoice, "disabled profiles take no choice")
	pa, _ := h.mgr.Profile(a, false)
	assert.Empty(t, pa.Selection.ConnectChoice)

	h.mgr.ClearConnectChoice("NetA-psk")
	pb, _ = h.mgr.Profile(b, false)
	assert.Empty(t, pb.Selection.ConnectChoice)
}

func TestConnectLifecycle(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	restore := clock.SetSource(func() time.Time { return now })
	t.Cleanup(restore)

	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))
	require.NoError(t, h.mgr.ReportFailure(id, profile.DisableNoInternetTemporary))

	require.NoError(t, h.mgr.UpdateAfterConnect(id, true))
	p, _ := h.mgr.Profile(id, false)
	assert.True(t, p.Selection.Enabled(), "successful connect re-enables")
	assert.True(t, p.Selection.EverConnected)
	assert.True(t, p.Selection.SeenCaptivePortal)
	assert.True(t, p.CurrentlyConnected)
	assert.Equal(t, now, p.LastConnected)
	assert.Equal(t, 1, p.AssocCount)

	require.NoError(t, h.mgr.UpdateAfterDisconnect(id))
	p, _ = h.mgr.Profile(id, false)
	assert.False(t, p.CurrentlyConnected)
}

func TestGatewayMACTriggersLinking(t *testing.T) {
	h := newHarness(t)
	a := mustAdd(t, h, appA, pskProfile("Home-2G"))
	b := mustAdd(t, h, appA, pskProfile("Home-5G"))

	require.NoError(t, h.mgr.SetDefaultGatewayMAC(a, "AA:BB:CC:DD:EE:01"))
	require.NoError(t, h.mgr.SetDefaultGatewayMAC(b, "aa:bb:cc:dd:ee:01"))

	linked, err := h.mgr.LinkedProfiles(a)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "Home-5G", linked[0].SSID)

	assert.Error(t, h.mgr.SetDefaultGatewayMAC(a, "junk"))
}

func TestRefreshMACStablePersists(t *testing.T) {
	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))
	p := h.store.ByID(id)
	p.MacSetting = profile.MacPersistent

	mac, err := h.mgr.RefreshMAC(id)
	require.NoError(t, err)
	require.NotEmpty(t, mac)

	stored, ok := h.durable.LookupMAC("HomeNet-psk")
	require.True(t, ok)
	assert.Equal(t, mac, stored)

	again, err := h.mgr.RefreshMAC(id)
	require.NoError(t, err)
	assert.Equal(t, mac, again)
}

func TestRecordScanAndCandidates(t *testing.T) {
	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))

	require.NoError(t, h.mgr.RecordScan(id, store.Observation{BSSID: "AA:BB:CC:DD:EE:FF", RSSI: -61, Frequency: 5180}))
	p, _ := h.mgr.Profile(id, false)
	require.NotNil(t, p.Selection.Candidate)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", p.Selection.Candidate.BSSID)
	assert.Equal(t, -61, p.Selection.Candidate.RSSI)
	assert.Equal(t, 1, h.scans.Size(id))

	h.mgr.ClearCandidates()
	p, _ = h.mgr.Profile(id, false)
	assert.Nil(t, p.Selection.Candidate)
	assert.Equal(t, 1, h.scans.Size(id), "scan cache outlives candidate annotations")
}

func TestIncrementRebootsSinceUse(t *testing.T) {
	h := newHarness(t)
	a := mustAdd(t, h, appA, pskProfile("NetA"))
	b := mustAdd(t, h, appA, pskProfile("NetB"))
	require.NoError(t, h.mgr.UpdateAfterConnect(b, false))

	h.mgr.IncrementRebootsSinceUse()
	pa, _ := h.mgr.Profile(a, false)
	pb, _ := h.mgr.Profile(b, false)
	assert.Equal(t, 1, pa.RebootsSinceUse)
	assert.Zero(t, pb.RebootsSinceUse, "the connected profile is in use")
}

func TestDHCPOptions(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.mgr.DHCPOptions("HomeNet", "aa:bb:cc"))

	h.mgr.SetDHCPOptions("HomeNet", "AA:BB:CC", []DHCPOption{{Code: dhcpv4.OptionHostName, Value: []byte("airwall")}})
	opts := h.mgr.DHCPOptions("HomeNet", "aa:bb:cc")
	require.Len(t, opts, 1)
	assert.Equal(t, []byte("airwall"), opts[0].Value)

	assert.Empty(t, h.mgr.DHCPOptions("HomeNet", "dd:ee:ff"),
		"overrides are scoped to the gateway vendor")

	h.mgr.SetDHCPOptions("HomeNet", "aa:bb:cc", nil)
	assert.Empty(t, h.mgr.DHCPOptions("HomeNet", "aa:bb:cc"))
}

func TestHiddenProfiles(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	restore := clock.SetSource(func() time.Time { return now })
	t.Cleanup(restore)

	h := newHarness(t)
	older := pskProfile("Older")
	older.Hidden = true
	a := mustAdd(t, h, appA, older)

	clock.SetSource(func() time.Time { return now.Add(time.Hour) })
	newer := pskProfile("Newer")
	newer.Hidden = true
	mustAdd(t, h, appA, newer)
	mustAdd(t, h, appA, pskProfile("Broadcast"))

	hidden := h.mgr.HiddenProfiles()
	require.Len(t, hidden, 2)
	assert.Equal(t, "Newer", hidden[0].SSID)
	assert.Equal(t, "Older", hidden[1].SSID)
	assert.Equal(t, profile.PasswordMask, hidden[0].PreSharedKey)

	require.NoError(t, h.mgr.Disable(appA, a, false))
	assert.Len(t, h.mgr.HiddenProfiles(), 1, "disabled profiles are not probed for")
}

func TestLastSelectedLifecycle(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	restore := clock.SetSource(func() time.Time { return now })
	t.Cleanup(restore)

	h := newHarness(t)
	a := mustAdd(t, h, appA, pskProfile("NetA"))
	mustAdd(t, h, appA, pskProfile("NetB"))

	id, _ := h.mgr.LastSelected()
	assert.Equal(t, profile.InvalidID, id)

	require.NoError(t, h.mgr.SetConnectChoice(a, -58))
	id, at := h.mgr.LastSelected()
	assert.Equal(t, a, id)
	assert.Equal(t, now, at)

	require.NoError(t, h.mgr.Remove(appA, a))
	id, _ = h.mgr.LastSelected()
	assert.Equal(t, profile.InvalidID, id)
}

type recordingBridge struct {
	driver.Noop
	disconnected []string
}

func (b *recordingBridge) Disconnect(key string) error {
	b.disconnected = append(b.disconnected, key)
	return nil
}

func TestRemoveDisconnectsConnectedProfile(t *testing.T) {
	h := newHarness(t)
	bridge := &recordingBridge{}
	h.mgr.deps.Bridge = bridge

	a := mustAdd(t, h, appA, pskProfile("NetA"))
	b := mustAdd(t, h, appA, pskProfile("NetB"))
	require.NoError(t, h.mgr.UpdateAfterConnect(a, false))
	require.NoError(t, h.mgr.SetConnectChoice(a, -50))

	require.NoError(t, h.mgr.Remove(appA, a))
	assert.Equal(t, []string{"NetA-psk"}, bridge.disconnected)

	pb, _ := h.mgr.Profile(b, false)
	assert.Empty(t, pb.Selection.ConnectChoice, "removal clears the choice everywhere")

	require.NoError(t, h.mgr.Remove(appA, b))
	assert.Len(t, bridge.disconnected, 1, "disconnect only fires for connected profiles")
}

func TestOnDHCPAckExtendsRotation(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	restore := clock.SetSource(func() time.Time { return now })
	t.Cleanup(restore)

	h := newHarness(t)
	id := mustAdd(t, h, appA, pskProfile("HomeNet"))

	ack, err := dhcpv4.New(
		dhcpv4.WithMessageType(dhcpv4.MessageTypeAck),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(25*time.Minute)))
	require.NoError(t, err)

	require.NoError(t, h.mgr.OnDHCPAck(id, ack))
	assert.Equal(t, now.Add(25*time.Minute), h.store.ByID(id).MacExpiry)

	// A non-ack packet is ignored.
	offer, err := dhcpv4.New(dhcpv4.WithMessageType(dhcpv4.MessageTypeOffer))
	require.NoError(t, err)
	before := h.store.ByID(id).MacExpiry
	require.NoError(t, h.mgr.OnDHCPAck(id, offer))
	assert.Equal(t, before, h.store.ByID(id).MacExpiry)
}

func TestRunnerSerializesAndShutsDown(t *testing.T) {
	h := newHarness(t)
	r := NewRunner(h.mgr)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	var id profile.ID
	err := r.Do(context.Background(), func(m *Manager) {
		res := m.AddOrUpdate(appA, pskProfile("HomeNet"))
		id = res.ID
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, r.Do(context.Background(), func(m *Manager) { count = len(m.Profiles(false)) }))
	assert.Equal(t, 1, count)
	assert.NotEqual(t, profile.InvalidID, id)

	cancel()
	assert.Eventually(t, func() bool {
		return r.Do(context.Background(), func(*Manager) {}) != nil
	}, time.Second, 5*time.Millisecond)
}
