// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package manager is the root of the registry: it owns the in-memory
// store and coordinates merging, selection, linking, randomization and
// persistence. All mutating methods must run on the Runner's goroutine;
// the Runner serializes access so the Manager itself holds no locks.
package manager

import (
	"context"
	"sort"
	"time"

	"grimm.is/airwall/internal/driver"
	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/events"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/macrand"
	"grimm.is/airwall/internal/merge"
	"grimm.is/airwall/internal/metrics"
	"grimm.is/airwall/internal/permission"
	"grimm.is/airwall/internal/persist"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/selection"
	"grimm.is/airwall/internal/store"
)

// Deps carries the collaborators the Manager coordinates.
type Deps struct {
	Store    *store.Store
	Scans    *store.ScanCache
	Engine   *merge.Engine
	Gate     *permission.Gate
	Machine  *selection.Machine
	Macs     *macrand.Policy
	Linker   Relinker
	Bus      *events.Bus
	Durable  persist.Store
	MacStore persist.MacStore
	Saver    merge.Saver
	Metrics  *metrics.Metrics

	// Bridge is the platform wireless driver, nil when the host has no
	// managed radio.
	Bridge driver.Bridge

	// Debug makes store read failures fatal instead of starting empty.
	Debug bool
}

// Relinker is the linking engine surface the manager needs.
type Relinker interface {
	Relink(p *profile.Profile, candidates []*profile.Profile) bool
	UnlinkAll(p *profile.Profile, candidates []*profile.Profile) bool
}

// Manager is the authoritative profile registry.
type Manager struct {
	deps   Deps
	logger *logging.Logger

	// dhcpOptions holds per-network DHCP option overrides. Volatile:
	// provisioning pushes them again after restart.
	dhcpOptions map[dhcpOptionKey][]DHCPOption

	// lastSelected remembers the profile the user most recently picked
	// by hand, so selection can favor it for a grace period.
	lastSelected   profile.ID
	lastSelectedAt time.Time
}

// New creates a manager. Call LoadFromStore before serving requests.
func New(deps Deps) *Manager {
	return &Manager{
		deps:         deps,
		logger:       logging.WithComponent("manager"),
		dhcpOptions:  make(map[dhcpOptionKey][]DHCPOption),
		lastSelected: profile.InvalidID,
	}
}

// view returns the caller-facing shape of an internal profile.
func view(p *profile.Profile, privileged bool) *profile.Profile {
	if privileged {
		return p.Clone()
	}
	return p.Redacted()
}

// Profiles returns the profiles visible to the current user. Privileged
// callers see credentials; everyone else gets redacted copies.
func (m *Manager) Profiles(privileged bool) []*profile.Profile {
	visible := m.deps.Store.Visible()
	out := make([]*profile.Profile, 0, len(visible))
	for _, p := range visible {
		out = append(out, view(p, privileged))
	}
	return out
}

// Profile returns one profile by ID.
func (m *Manager) Profile(id profile.ID, privileged bool) (*profile.Profile, error) {
	p := m.deps.Store.ByID(id)
	if p == nil || !m.deps.Store.VisibleToCurrentUser(p) {
		return nil, errors.Errorf(errors.KindNotFound, "profile %d not found", id)
	}
	return view(p, privileged), nil
}

// ProfileByKey returns one profile by profile key.
func (m *Manager) ProfileByKey(key string, privileged bool) (*profile.Profile, error) {
	p := m.deps.Store.ByKey(key)
	if p == nil || !m.deps.Store.VisibleToCurrentUser(p) {
		return nil, errors.Errorf(errors.KindNotFound, "profile %q not found", key)
	}
	return view(p, privileged), nil
}

// LinkedProfiles returns the profiles linked to the given one.
func (m *Manager) LinkedProfiles(id profile.ID) ([]*profile.Profile, error) {
	p := m.deps.Store.ByID(id)
	if p == nil {
		return nil, errors.Errorf(errors.KindNotFound, "profile %d not found", id)
	}
	var out []*profile.Profile
	for key := range p.Linked {
		if linked := m.deps.Store.ByKey(key); linked != nil {
			out = append(out, linked.Redacted())
		}
	}
	return out, nil
}

// HiddenProfiles returns the visible profiles whose networks do not
// broadcast their SSID, most recently used first. Scanning needs the
// list to probe for them explicitly.
func (m *Manager) HiddenProfiles() []*profile.Profile {
	var out []*profile.Profile
	for _, p := range m.deps.Store.Visible() {
		if p.Hidden && p.Selection.Enabled() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lastUsed(out[i]).After(lastUsed(out[j]))
	})
	for i, p := range out {
		out[i] = p.Redacted()
	}
	return out
}

func lastUsed(p *profile.Profile) time.Time {
	if p.LastConnected.After(p.LastUpdated) {
		return p.LastConnected
	}
	return p.LastUpdated
}

// LastSelected returns the profile the user most recently picked by
// hand, with the time of the pick. InvalidID when none.
func (m *Manager) LastSelected() (profile.ID, time.Time) {
	return m.lastSelected, m.lastSelectedAt
}

// AddOrUpdate runs the merge pipeline and records the outcome.
func (m *Manager) AddOrUpdate(c permission.Caller, external *profile.Profile) merge.Result {
	res := m.deps.Engine.AddOrUpdate(c, external)
	m.deps.Metrics.Updates.WithLabelValues(res.Status.String()).Inc()
	if res.Status == merge.StatusSuccess {
		if res.IsNew {
			m.deps.Metrics.ProfilesAdded.Inc()
		}
		m.deps.Metrics.ProfilesEvicted.Add(float64(len(res.Evicted)))
		m.deps.Metrics.ProfileCount.Set(float64(m.deps.Store.Count()))
	}
	return res
}

// Remove deletes a profile on behalf of a caller. A currently connected
// profile is torn down at the driver before it leaves the registry.
func (m *Manager) Remove(c permission.Caller, id profile.ID) error {
	p := m.deps.Store.ByID(id)
	switch st := m.deps.Engine.Remove(c, id); st {
	case merge.StatusSuccess:
		if p != nil {
			if p.CurrentlyConnected && m.deps.Bridge != nil {
				if err := m.deps.Bridge.Disconnect(p.Key()); err != nil {
					m.logger.Warn("driver disconnect failed", "key", p.Key(), "error", err)
				}
			}
			m.ClearConnectChoice(p.Key())
		}
		if id == m.lastSelected {
			m.lastSelected = profile.InvalidID
			m.lastSelectedAt = time.Time{}
		}
		m.deps.Metrics.ProfileCount.Set(float64(m.deps.Store.Count()))
		return nil
	case merge.StatusNoPermission:
		return errors.Errorf(errors.KindPermission, "caller %q may not remove profile %d", c.Name, id)
	default:
		return errors.Errorf(errors.KindNotFound, "profile %d not found", id)
	}
}

// LoadFromStore replaces in-memory state with the durable copy: the
// shared partition plus the current user's private partition. Profiles
// already in memory are matched by key and updated in place so live IDs
// survive a reload; everything else gets a fresh ID.
func (m *Manager) LoadFromStore(ctx context.Context) error {
	shared, err := m.deps.Durable.LoadPartition(ctx, persist.PartitionShared)
	if err == nil {
		var user []*profile.Profile
		user, err = m.deps.Durable.LoadPartition(ctx, persist.UserPartition(m.deps.Store.CurrentUser()))
		shared = append(shared, user...)
	}
	if err != nil {
		if m.deps.Debug {
			return errors.Wrap(err, errors.KindUnavailable, "load registry")
		}
		m.logger.Error("load failed, starting with empty registry", "error", err)
		m.deps.Store.Clear()
		return nil
	}

	m.reconcile(shared)
	m.deps.Metrics.ProfileCount.Set(float64(m.deps.Store.Count()))
	m.deps.Bus.Publish(events.Event{Type: events.StoreLoaded})
	m.logger.Info("registry loaded", "profiles", m.deps.Store.Count())
	return nil
}

func (m *Manager) reconcile(loaded []*profile.Profile) {
	for _, lp := range loaded {
		if existing := m.deps.Store.ByKey(lp.Key()); existing != nil {
			lp.ID = existing.ID
			if err := m.deps.Store.Replace(lp); err != nil {
				m.logger.Warn("reconcile replace failed", "key", lp.Key(), "error", err)
			}
			continue
		}
		lp.ID = profile.InvalidID
		if _, err := m.deps.Store.Add(lp); err != nil {
			m.logger.Warn("dropping duplicate stored profile", "key", lp.Key(), "error", err)
		}
	}
}

// SaveToStore writes the registry out: device-wide profiles into the
// shared partition, the current user's private ones into theirs.
// Ephemeral profiles never touch storage.
func (m *Manager) SaveToStore(ctx context.Context) error {
	var shared, private []*profile.Profile
	currentUser := m.deps.Store.CurrentUser()
	for _, p := range m.deps.Store.All() {
		if p.Ephemeral {
			continue
		}
		if p.Shared || !m.deps.Store.OwnedBy(p, currentUser) {
			shared = append(shared, p)
		} else {
			private = append(private, p)
		}
	}

	if err := m.deps.Durable.SavePartition(ctx, persist.PartitionShared, shared); err != nil {
		m.deps.Metrics.StoreWriteErrors.Inc()
		return err
	}
	if err := m.deps.Durable.SavePartition(ctx, persist.UserPartition(currentUser), private); err != nil {
		m.deps.Metrics.StoreWriteErrors.Inc()
		return err
	}
	m.deps.Metrics.StoreWrites.Inc()
	m.logger.Debug("registry saved", "shared", len(shared), "private", len(private))
	return nil
}

// SwitchUser moves the registry to a new user partition: the old user's
// state is flushed, their private profiles leave memory, and the new
// user's partition is loaded.
func (m *Manager) SwitchUser(ctx context.Context, user int) error {
	old := m.deps.Store.CurrentUser()
	if user == old {
		return nil
	}
	if err := m.SaveToStore(ctx); err != nil {
		m.logger.Error("flush before user switch failed", "error", err)
	}
	m.dropPrivateProfiles(old)
	m.deps.Store.SetCurrentUser(user)
	return m.UnlockUser(ctx, user)
}

// UnlockUser loads a user's private partition into memory. Only the
// current user can be unlocked.
func (m *Manager) UnlockUser(ctx context.Context, user int) error {
	if user != m.deps.Store.CurrentUser() {
		return errors.Errorf(errors.KindValidation, "user %d is not current", user)
	}
	private, err := m.deps.Durable.LoadPartition(ctx, persist.UserPartition(user))
	if err != nil {
		if m.deps.Debug {
			return errors.Wrapf(err, errors.KindUnavailable, "load user %d partition", user)
		}
		m.logger.Error("user partition load failed", "user", user, "error", err)
		return nil
	}
	m.reconcile(private)
	m.deps.Metrics.ProfileCount.Set(float64(m.deps.Store.Count()))
	m.logger.Info("user partition loaded", "user", user, "profiles", len(private))
	return nil
}

// StopUser flushes and evicts a user's private profiles from memory.
func (m *Manager) StopUser(ctx context.Context, user int) error {
	if user == m.deps.Store.CurrentUser() {
		if err := m.SaveToStore(ctx); err != nil {
			return err
		}
	}
	m.dropPrivateProfiles(user)
	m.deps.Metrics.ProfileCount.Set(float64(m.deps.Store.Count()))
	return nil
}

func (m *Manager) dropPrivateProfiles(user int) {
	for _, p := range m.deps.Store.AllForUser(user) {
		if p.Shared {
			continue
		}
		m.deps.Linker.UnlinkAll(p, m.deps.Store.All())
		m.deps.Store.Remove(p.ID)
		m.deps.Scans.Remove(p.ID)
	}
}

// IncrementRebootsSinceUse bumps the reboot counter of every profile
// that was not in use, called once per boot. Feeds the eviction ranking.
func (m *Manager) IncrementRebootsSinceUse() {
	for _, p := range m.deps.Store.All() {
		if !p.CurrentlyConnected {
			p.RebootsSinceUse++
		}
	}
	m.deps.Saver.Schedule()
}
