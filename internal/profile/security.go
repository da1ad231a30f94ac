// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

// SecurityType enumerates the supported security families.
type SecurityType int

const (
	SecurityOpen SecurityType = iota
	SecurityOWE
	SecurityWEP
	SecurityPSK
	SecuritySAE
	SecurityEAP
)

func (t SecurityType) String() string {
	switch t {
	case SecurityOpen:
		return "open"
	case SecurityOWE:
		return "owe"
	case SecurityWEP:
		return "wep"
	case SecurityPSK:
		return "psk"
	case SecuritySAE:
		return "sae"
	case SecurityEAP:
		return "eap"
	default:
		return "invalid"
	}
}

// SecurityParams is one entry of a profile's security parameter set. A
// profile may hold both a legacy type and its auto-upgraded counterpart;
// the flag records which entries the registry added on its own.
type SecurityParams struct {
	Type               SecurityType `json:"type"`
	Enabled            bool         `json:"enabled"`
	AddedByAutoUpgrade bool         `json:"added_by_auto_upgrade"`
}

// SecuritySetChanged reports whether two profiles carry different
// security parameter sets.
func SecuritySetChanged(a, b *Profile) bool {
	if len(a.Security) != len(b.Security) {
		return true
	}
	for i := range a.Security {
		if a.Security[i] != b.Security[i] {
			return true
		}
	}
	return false
}

// UpgradeOf returns the auto-upgrade counterpart of a legacy type.
func UpgradeOf(t SecurityType) (SecurityType, bool) {
	switch t {
	case SecurityOpen:
		return SecurityOWE, true
	case SecurityPSK:
		return SecuritySAE, true
	}
	return 0, false
}

// DowngradeOf returns the legacy counterpart of an upgraded type.
func DowngradeOf(t SecurityType) (SecurityType, bool) {
	switch t {
	case SecurityOWE:
		return SecurityOpen, true
	case SecuritySAE:
		return SecurityPSK, true
	}
	return 0, false
}

// AddUpgradableSecurity appends the auto-upgraded counterpart for any
// legacy type the profile carries, marked AddedByAutoUpgrade. Idempotent.
func AddUpgradableSecurity(p *Profile) {
	for _, s := range p.Security {
		up, ok := UpgradeOf(s.Type)
		if !ok || p.HasSecurity(up) {
			continue
		}
		p.Security = append(p.Security, SecurityParams{
			Type:               up,
			Enabled:            true,
			AddedByAutoUpgrade: true,
		})
	}
}

// SetSecurity replaces the whole security set.
func (p *Profile) SetSecurity(params ...SecurityParams) {
	p.Security = append(p.Security[:0:0], params...)
}

// mergeSecurity folds the external profile's security set into the
// internal one following the upgrade/downgrade compatibility matrix:
//   - internal already carries the external default type: keep the set,
//     adopt the external auto-upgrade flag for that type; if the external
//     credential only works for the upgraded type (SAE-only passphrase on
//     a PSK/SAE profile), narrow to the external set.
//   - external carries the internal default type: external default
//     becomes the new default, internal default kept as secondary.
//   - incompatible: external set replaces the internal one.
func mergeSecurity(internal, external *Profile) {
	if len(internal.Security) == 0 {
		internal.SetSecurity(external.Security...)
		return
	}
	AddUpgradableSecurity(external)

	oldType := internal.DefaultSecurity().Type
	newType := external.DefaultSecurity().Type
	if oldType == newType {
		return
	}
	switch {
	case internal.HasSecurity(newType):
		for i := range internal.Security {
			if internal.Security[i].Type == newType {
				internal.Security[i].AddedByAutoUpgrade = external.DefaultSecurity().AddedByAutoUpgrade
			}
		}
		if oldType == SecurityPSK && newType == SecuritySAE &&
			!validPassphrase(external.PreSharedKey, SecurityPSK) {
			// SAE-only passphrase: the legacy leg can no longer
			// authenticate, narrow to the external set.
			internal.SetSecurity(external.Security...)
		}
	case external.HasSecurity(oldType):
		newDefault, _ := external.SecurityFor(newType)
		oldParams, _ := internal.SecurityFor(oldType)
		internal.SetSecurity(newDefault, oldParams)
	default:
		internal.SetSecurity(external.Security...)
	}
}
