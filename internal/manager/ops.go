// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package manager

import (
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/netutil"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/store"
)

// DHCPOption is one per-network DHCP option override.
type DHCPOption struct {
	Code  dhcpv4.OptionCode
	Value []byte
}

// dhcpOptionKey scopes option overrides to an SSID plus the gateway
// vendor's OUI prefix, so two networks with the same name but different
// router hardware keep separate overrides.
type dhcpOptionKey struct {
	SSID string
	OUI  string
}

func (m *Manager) internalByID(id profile.ID) (*profile.Profile, error) {
	p := m.deps.Store.ByID(id)
	if p == nil {
		return nil, errors.Errorf(errors.KindNotFound, "profile %d not found", id)
	}
	return p, nil
}

// ReportFailure counts a connection failure against a profile and
// disables it when its threshold is hit.
func (m *Manager) ReportFailure(id profile.ID, reason profile.DisableReason) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	if m.deps.Machine.RecordFailure(p, reason) {
		m.deps.Metrics.Disables.WithLabelValues(reason.String()).Inc()
		m.deps.Saver.Schedule()
	}
	return nil
}

// Enable re-enables a profile on behalf of a caller.
func (m *Manager) Enable(c permission.Caller, id profile.ID) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	if !m.deps.Gate.CanModify(c, p) {
		return errors.Errorf(errors.KindPermission, "caller %q may not enable profile %d", c.Name, id)
	}
	if m.deps.Machine.Enable(p) {
		m.deps.Metrics.Enables.Inc()
		m.deps.Saver.Schedule()
	}
	return nil
}

// Disable takes a profile out of selection on behalf of a caller. User
// and service disables are permanent until explicitly re-enabled.
func (m *Manager) Disable(c permission.Caller, id profile.ID, byService bool) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	if !m.deps.Gate.CanModify(c, p) {
		return errors.Errorf(errors.KindPermission, "caller %q may not disable profile %d", c.Name, id)
	}
	reason := profile.DisableByUser
	if byService {
		reason = profile.DisableByService
	}
	if m.deps.Machine.RecordFailure(p, reason) {
		m.deps.Metrics.Disables.WithLabelValues(reason.String()).Inc()
		m.deps.Saver.Schedule()
	}
	return nil
}

// TryEnableAll re-enables every temporarily disabled profile whose
// timeout has elapsed and returns how many came back.
func (m *Manager) TryEnableAll() int {
	n := 0
	for _, p := range m.deps.Store.All() {
		if m.deps.Machine.TryEnable(p) {
			n++
		}
	}
	if n > 0 {
		m.deps.Metrics.Enables.Add(float64(n))
		m.deps.Saver.Schedule()
	}
	return n
}

// SetAutojoin flips whether a profile may be joined automatically.
func (m *Manager) SetAutojoin(c permission.Caller, id profile.ID, allowed bool) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	if !m.deps.Gate.CanModify(c, p) {
		return errors.Errorf(errors.KindPermission, "caller %q may not change autojoin on profile %d", c.Name, id)
	}
	if p.AutojoinAllowed == allowed {
		return nil
	}
	p.AutojoinAllowed = allowed
	p.LastUpdated = clock.Now()
	m.deps.Bus.Publish(events.Event{Type: events.ProfileUpdated, Profile: p.Redacted()})
	m.deps.Saver.Schedule()
	return nil
}

// RecordScan caches a sighting of a profile's network and annotates the
// profile as a selection candidate.
func (m *Manager) RecordScan(id profile.ID, obs store.Observation) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	if obs.LastSeen.IsZero() {
		obs.LastSeen = clock.Now()
	}
	m.deps.Scans.Put(id, obs)
	p.Selection.Candidate = &profile.Candidate{
		BSSID:     strings.ToLower(obs.BSSID),
		RSSI:      obs.RSSI,
		Frequency: obs.Frequency,
		SeenAt:    obs.LastSeen,
	}
	return nil
}

// ClearCandidates drops all transient candidate annotations, at the end
// of a selection cycle.
func (m *Manager) ClearCandidates() {
	for _, p := range m.deps.Store.All() {
		p.Selection.Candidate = nil
	}
}

// SetConnectChoice records that the user picked one profile while
// others were available: every other enabled visible profile remembers
// the chosen key so automatic selection respects the preference.
func (m *Manager) SetConnectChoice(chosen profile.ID, rssi int) error {
	p, err := m.internalByID(chosen)
	if err != nil {
		return err
	}
	key := p.Key()
	for _, other := range m.deps.Store.Visible() {
		if other.ID == chosen || !other.Selection.Enabled() {
			continue
		}
		other.Selection.ConnectChoice = key
		other.Selection.ConnectChoiceRSSI = rssi
	}
	p.Selection.ConnectChoice = ""
	p.Selection.ConnectChoiceRSSI = 0
	m.lastSelected = chosen
	m.lastSelectedAt = clock.Now()
	m.deps.Bus.Publish(events.Event{Type: events.ConnectChoiceSet, Profile: p.Redacted()})
	m.deps.Saver.Schedule()
	return nil
}

// ClearConnectChoice removes a profile key from everyone's connect
// choice, when that profile is removed or proves unusable.
func (m *Manager) ClearConnectChoice(key string) {
	cleared := false
	for _, p := range m.deps.Store.All() {
		if p.Selection.ConnectChoice == key {
			p.Selection.ConnectChoice = ""
			p.Selection.ConnectChoiceRSSI = 0
			cleared = true
		}
	}
	if cleared {
		m.deps.Bus.Publish(events.Event{Type: events.ConnectChoiceCleared})
		m.deps.Saver.Schedule()
	}
}

// UpdateAfterConnect records a successful connection: usage stats reset,
// the profile is re-enabled, and captive portal sightings are noted for
// the randomization heuristic.
func (m *Manager) UpdateAfterConnect(id profile.ID, captivePortal bool) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	now := clock.Now()
	p.Selection.EverConnected = true
	if captivePortal {
		p.Selection.SeenCaptivePortal = true
	}
	p.CurrentlyConnected = true
	p.LastConnected = now
	p.AssocCount++
	p.RebootsSinceUse = 0
	if m.deps.Machine.Enable(p) {
		m.deps.Metrics.Enables.Inc()
	}
	m.deps.Saver.Schedule()
	return nil
}

// UpdateAfterDisconnect records the end of a connection.
func (m *Manager) UpdateAfterDisconnect(id profile.ID) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	p.CurrentlyConnected = false
	m.deps.Saver.Schedule()
	return nil
}

// SetDefaultGatewayMAC stores the gateway seen behind a profile's
// network and re-evaluates links with the new evidence.
func (m *Manager) SetDefaultGatewayMAC(id profile.ID, mac string) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	hw, err := netutil.ParseMAC(mac)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "gateway mac")
	}
	formatted := netutil.FormatMAC(hw)
	if p.DefaultGatewayMAC == formatted {
		return nil
	}
	p.DefaultGatewayMAC = formatted
	if m.deps.Linker.Relink(p, m.deps.Store.All()) {
		m.deps.Bus.Publish(events.Event{Type: events.ProfileLinksChanged, Profile: p.Redacted()})
	}
	m.deps.Saver.Schedule()
	return nil
}

// RefreshMAC brings a profile's randomized address up to date and
// returns it. Stable addresses are written through to storage so the
// profile keeps its identity across forget/re-add.
func (m *Manager) RefreshMAC(id profile.ID) (string, error) {
	p, err := m.internalByID(id)
	if err != nil {
		return "", err
	}
	if m.deps.Macs.Refresh(p) {
		m.deps.Metrics.MacRotations.Inc()
		if !m.deps.Macs.ShouldRotate(p) && m.deps.MacStore != nil {
			if err := m.deps.MacStore.SaveMAC(p.Key(), p.RandomizedMAC); err != nil {
				m.logger.Warn("stable mac not persisted", "key", p.Key(), "error", err)
			}
		}
		m.deps.Saver.Schedule()
	}
	return p.RandomizedMAC, nil
}

// OnDHCPAck extends the rotation window of a profile's randomized
// address from the lease the network handed out.
func (m *Manager) OnDHCPAck(id profile.ID, ack *dhcpv4.DHCPv4) error {
	p, err := m.internalByID(id)
	if err != nil {
		return err
	}
	lease := netutil.LeaseSecondsFromAck(ack)
	if lease == 0 {
		return nil
	}
	m.deps.Macs.ExtendFromLease(p, lease)
	return nil
}

// SetDHCPOptions replaces the DHCP option overrides for an SSID and
// gateway OUI prefix (first three MAC octets, "aa:bb:cc"). Empty opts
// clears the entry.
func (m *Manager) SetDHCPOptions(ssid, oui string, opts []DHCPOption) {
	key := dhcpOptionKey{SSID: ssid, OUI: strings.ToLower(oui)}
	if len(opts) == 0 {
		delete(m.dhcpOptions, key)
		return
	}
	m.dhcpOptions[key] = append([]DHCPOption(nil), opts...)
}

// DHCPOptions returns the DHCP option overrides for an SSID and gateway
// OUI prefix.
func (m *Manager) DHCPOptions(ssid, oui string) []DHCPOption {
	return append([]DHCPOption(nil), m.dhcpOptions[dhcpOptionKey{SSID: ssid, OUI: strings.ToLower(oui)}]...)
}
