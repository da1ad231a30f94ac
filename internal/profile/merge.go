// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package profile

import "strings"

// MergeExternal folds the externally supplied profile into a copy of the
// internal one and returns the merged value. The receiver profiles are
// not mutated: callers swap the result into the store atomically.
//
// Rules: text and credential fields overwrite only when non-empty and
// not the redaction mask; WEP keys merge slot-wise; IP and proxy
// configuration overwrite only when explicitly assigned; the security
// set follows the upgrade/downgrade matrix in mergeSecurity. ID,
// selection state and server-owned bookkeeping are never copied from
// outside.
func MergeExternal(internal, external *Profile) *Profile {
	merged := internal.Clone()

	if external.SSID != "" {
		merged.SSID = external.SSID
	}
	merged.BSSID = strings.ToLower(external.BSSID)
	if external.Hidden {
		merged.Hidden = true
	} else if merged.HasSecurity(external.DefaultSecurity().Type) {
		// Only clear the hidden flag when the update addresses the same
		// security leg, so re-adding a same-named visible network does
		// not silently unhide an existing hidden profile.
		merged.Hidden = false
	}

	if external.PreSharedKey != "" && external.PreSharedKey != PasswordMask {
		merged.PreSharedKey = external.PreSharedKey
	}
	hasWepKey := false
	for i, k := range external.WEPKeys {
		if k != "" && k != PasswordMask {
			merged.WEPKeys[i] = k
			hasWepKey = true
		}
	}
	if hasWepKey {
		merged.WEPTxKeyIdx = external.WEPTxKeyIdx
	}
	if external.FQDN != "" {
		merged.FQDN = external.FQDN
	}

	mergeSecurity(merged, external)

	if external.IPAssignment != IPUnassigned {
		merged.IPAssignment = external.IPAssignment
		if external.IPAssignment == IPStatic {
			merged.StaticIP = external.StaticIP
		}
	}
	if external.Proxy != ProxyUnassigned {
		merged.Proxy = external.Proxy
		if external.Proxy == ProxyStatic || external.Proxy == ProxyPAC {
			merged.ProxySpec = external.ProxySpec
		}
	}

	if external.Enterprise != nil {
		approved := false
		if merged.Enterprise != nil {
			approved = merged.Enterprise.UserApprovedNoCA
		}
		merged.Enterprise = external.Enterprise.clone()
		if merged.Enterprise.Password == PasswordMask && internal.Enterprise != nil {
			merged.Enterprise.Password = internal.Enterprise.Password
		}
		merged.Enterprise.UserApprovedNoCA = approved
	}

	merged.AutojoinAllowed = external.AutojoinAllowed
	merged.Metered = external.Metered
	merged.MacSetting = external.MacSetting
	merged.CarrierID = external.CarrierID
	merged.DeletionPriority = external.DeletionPriority
	merged.Selection.ConnectChoice = external.Selection.ConnectChoice
	merged.Selection.ConnectChoiceRSSI = external.Selection.ConnectChoiceRSSI
	return merged
}

// HasProxyChanged reports whether an update would alter the proxy
// configuration. Used by the narrower proxy permission gate; a nil old
// profile (creation) counts as changed only when a proxy is set.
func HasProxyChanged(old, updated *Profile) bool {
	if old == nil {
		return updated.Proxy == ProxyStatic || updated.Proxy == ProxyPAC
	}
	return old.Proxy != updated.Proxy || old.ProxySpec != updated.ProxySpec
}

// HasMacSettingChanged reports whether an update would alter the MAC
// randomization setting.
func HasMacSettingChanged(old, updated *Profile) bool {
	if old == nil {
		return updated.MacSetting != MacAuto
	}
	return old.MacSetting != updated.MacSetting
}

// HasIPChanged reports whether the layer-3 configuration differs.
func HasIPChanged(old, updated *Profile) bool {
	if old == nil {
		return true
	}
	return old.IPAssignment != updated.IPAssignment || old.StaticIP != updated.StaticIP
}
