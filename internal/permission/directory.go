// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package permission

// StaticDirectory is a Directory populated from configuration. Identity
// membership is matched by caller name, org admins by UID.
type StaticDirectory struct {
	SettingsNames         map[string]bool
	SetupWizardNames      map[string]bool
	NetworkServiceNames   map[string]bool
	LockdownOverrideNames map[string]bool
	OrgAdminUIDs          map[int]bool
	DemoMode              bool
}

// NewStaticDirectory builds a StaticDirectory from name and UID lists.
func NewStaticDirectory(settings, wizard, netService, override []string, adminUIDs []int) *StaticDirectory {
	toSet := func(names []string) map[string]bool {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		return m
	}
	admins := make(map[int]bool, len(adminUIDs))
	for _, uid := range adminUIDs {
		admins[uid] = true
	}
	return &StaticDirectory{
		SettingsNames:         toSet(settings),
		SetupWizardNames:      toSet(wizard),
		NetworkServiceNames:   toSet(netService),
		LockdownOverrideNames: toSet(override),
		OrgAdminUIDs:          admins,
	}
}

func (d *StaticDirectory) IsSettings(c Caller) bool         { return d.SettingsNames[c.Name] }
func (d *StaticDirectory) IsSetupWizard(c Caller) bool      { return d.SetupWizardNames[c.Name] }
func (d *StaticDirectory) IsNetworkService(c Caller) bool   { return d.NetworkServiceNames[c.Name] }
func (d *StaticDirectory) IsOrgAdmin(c Caller) bool         { return d.OrgAdminUIDs[c.UID] }
func (d *StaticDirectory) ManagedByOrg(uid int) bool        { return d.OrgAdminUIDs[uid] }
func (d *StaticDirectory) HasLockdownOverride(c Caller) bool { return d.LockdownOverrideNames[c.Name] }
func (d *StaticDirectory) InDemoMode() bool                 { return d.DemoMode }
