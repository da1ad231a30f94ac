// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package permission decides whether a caller may modify a profile.
// The gate is pure policy: identity questions are answered by a
// Directory, so tests and deployments can swap the identity source
// without touching the rules.
package permission

import (
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// Caller identifies the requesting component.
type Caller struct {
	UID  int
	Name string
}

// Directory answers identity questions about callers and UIDs.
type Directory interface {
	// IsSettings reports whether the caller is the trusted settings UI.
	IsSettings(Caller) bool
	// IsSetupWizard reports whether the caller is the first-run wizard.
	IsSetupWizard(Caller) bool
	// IsNetworkService reports whether the caller is the network service
	// identity that owns provisioned (passpoint, carrier) profiles.
	IsNetworkService(Caller) bool
	// IsOrgAdmin reports whether the caller is an organization device
	// administrator.
	IsOrgAdmin(Caller) bool
	// ManagedByOrg reports whether a UID belongs to an organization
	// administrator, for creator checks on stored profiles.
	ManagedByOrg(uid int) bool
	// HasLockdownOverride reports whether the caller may bypass admin
	// lockdown.
	HasLockdownOverride(Caller) bool
	// InDemoMode reports whether the device is in retail demo mode.
	InDemoMode() bool
}

// Gate evaluates modification permissions.
type Gate struct {
	dir    Directory
	logger *logging.Logger

	// Lockdown freezes admin-created profiles against everyone but the
	// settings surfaces and explicit overrides.
	Lockdown bool
}

// NewGate creates a gate backed by the given directory.
func NewGate(dir Directory) *Gate {
	return &Gate{dir: dir, logger: logging.WithComponent("permission")}
}

// IsPrivileged reports whether the caller is one of the trusted system
// surfaces, as opposed to an ordinary app. Profiles added by ordinary
// apps fall under the separate app-added capacity quota.
func (g *Gate) IsPrivileged(c Caller) bool {
	return g.dir.IsSettings(c) ||
		g.dir.IsSetupWizard(c) ||
		g.dir.IsNetworkService(c) ||
		g.dir.IsOrgAdmin(c)
}

// CanModify reports whether the caller may update or remove the profile.
//
// Order matters: service ownership is checked before anything else so a
// privileged UI cannot edit provisioned profiles out from under the
// owning service, and lockdown is checked before the general
// creator-or-privileged rule.
func (g *Gate) CanModify(c Caller, p *profile.Profile) bool {
	if p.ServiceOwned() {
		return g.dir.IsNetworkService(c)
	}
	if g.dir.IsOrgAdmin(c) {
		return true
	}
	if g.Lockdown && g.dir.ManagedByOrg(p.CreatorUID) {
		return g.dir.IsSettings(c) || g.dir.IsSetupWizard(c) || g.dir.HasLockdownOverride(c)
	}
	return c.UID == p.CreatorUID ||
		g.dir.IsSettings(c) ||
		g.dir.IsSetupWizard(c) ||
		g.dir.IsNetworkService(c)
}

// CanModifyProxy gates proxy configuration changes. Narrower than
// CanModify: a proxy rewrites every connection on the network, so only
// the settings surface and org admins qualify.
func (g *Gate) CanModifyProxy(c Caller, p *profile.Profile) bool {
	if !g.CanModify(c, p) {
		return false
	}
	return g.dir.IsSettings(c) || g.dir.IsOrgAdmin(c)
}

// CanSetMacRandomization gates changes to the MAC randomization setting.
// Restricted to the settings surfaces, with narrow exemptions: the
// owning service on provisioned profiles, admins editing their own
// profiles, suggestion-sourced updates, and retail demo mode.
func (g *Gate) CanSetMacRandomization(c Caller, p *profile.Profile, fromSuggestion bool) bool {
	if g.dir.IsSettings(c) || g.dir.IsSetupWizard(c) {
		return true
	}
	if p.FromPasspoint && g.dir.IsNetworkService(c) {
		return true
	}
	if g.dir.IsOrgAdmin(c) && c.UID == p.CreatorUID {
		return true
	}
	if fromSuggestion {
		return true
	}
	return g.dir.InDemoMode()
}
