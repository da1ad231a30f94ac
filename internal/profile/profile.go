// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package profile defines the saved wireless network profile, the
// canonical data model of the registry. Values handed out to callers are
// always deep copies; the internal instances are owned by the store and
// mutated only on the registry's single writer context.
package profile

import (
	"fmt"
	"time"

	"grimm.is/airwall/internal/netutil"
)

// ID is the immutable numeric identity of a profile. IDs are assigned on
// creation, increase monotonically and are never reused.
type ID int

// InvalidID marks "no profile".
const InvalidID ID = -1

// PasswordMask replaces credential material in redacted profile views.
// An incoming field equal to the mask is ignored on merge.
const PasswordMask = "*"

// MacSetting selects the MAC randomization behavior for a profile.
type MacSetting int

const (
	// MacAuto lets the registry decide per heuristic.
	MacAuto MacSetting = iota
	// MacNone disables randomization (factory address).
	MacNone
	// MacPersistent uses a stable derived address.
	MacPersistent
	// MacNonPersistent rotates the address periodically.
	MacNonPersistent
	// MacAlways re-randomizes on every refresh check.
	MacAlways
)

func (m MacSetting) String() string {
	switch m {
	case MacNone:
		return "none"
	case MacPersistent:
		return "persistent"
	case MacNonPersistent:
		return "non_persistent"
	case MacAlways:
		return "always"
	default:
		return "auto"
	}
}

// IPAssignment mirrors the profile's layer-3 configuration mode.
type IPAssignment int

const (
	IPUnassigned IPAssignment = iota
	IPDHCP
	IPStatic
)

// ProxySetting mirrors the profile's proxy configuration mode.
type ProxySetting int

const (
	ProxyUnassigned ProxySetting = iota
	ProxyNone
	ProxyStatic
	ProxyPAC
)

// EnterpriseConfig holds 802.1X credential material for EAP profiles.
type EnterpriseConfig struct {
	Method          string
	Identity        string
	Password        string
	CACert          string
	Domain          string
	TrustOnFirstUse bool
	SIMBased        bool
	// UserApprovedNoCA is server-owned: set when an insecure enterprise
	// profile was explicitly allowed by a privileged installer.
	UserApprovedNoCA bool
}

// UsesServerCert reports whether the EAP method validates a server
// certificate, requiring trust material.
func (e *EnterpriseConfig) UsesServerCert() bool {
	switch e.Method {
	case "tls", "ttls", "peap":
		return true
	}
	return false
}

func (e *EnterpriseConfig) clone() *EnterpriseConfig {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Profile is a saved network definition.
type Profile struct {
	ID ID

	SSID   string
	FQDN   string // passpoint only
	BSSID  string // optional pinned AP
	Hidden bool

	// Security holds the profile's security parameter set. Never empty
	// for a live profile; index 0 is the default type.
	Security []SecurityParams

	PreSharedKey string
	WEPKeys      [4]string
	WEPTxKeyIdx  int
	Enterprise   *EnterpriseConfig

	CreatorUID     int
	CreatorName    string
	LastUpdateUID  int
	LastUpdateName string
	Shared         bool
	Ephemeral      bool

	FromSuggestion     bool
	FromPasspoint      bool
	AutojoinAllowed    bool
	ValidatedInternet  bool
	NoInternetExpected bool
	Metered            bool

	CarrierID        int // 0 means no carrier
	DeletionPriority int

	MacSetting      MacSetting
	RandomizedMAC   string
	MacLastModified time.Time
	MacExpiry       time.Time

	IPAssignment IPAssignment
	StaticIP     string
	Proxy        ProxySetting
	ProxySpec    string

	DefaultGatewayMAC string

	// Linked holds profile keys believed to share a deployment with this
	// one. Maintained symmetrically by the linking engine.
	Linked map[string]bool

	Selection SelectionStatus

	LastConnected      time.Time
	LastUpdated        time.Time
	AssocCount         int
	RebootsSinceUse    int
	CurrentlyConnected bool
}

// Key returns the profile key: identity derived from the network name and
// the default security family, independent of the numeric ID.
func (p *Profile) Key() string {
	name := p.SSID
	if p.FromPasspoint && p.FQDN != "" {
		name = p.FQDN
	}
	return fmt.Sprintf("%s-%s", name, p.DefaultSecurity().Type)
}

// AlternateKeys returns the keys this profile would carry under the
// upgraded or legacy counterpart of its default security type. Used for
// identity lookups across the auto-upgrade boundary.
func (p *Profile) AlternateKeys() []string {
	name := p.SSID
	if p.FromPasspoint && p.FQDN != "" {
		name = p.FQDN
	}
	var keys []string
	def := p.DefaultSecurity().Type
	if up, ok := UpgradeOf(def); ok {
		keys = append(keys, fmt.Sprintf("%s-%s", name, up))
	}
	if down, ok := DowngradeOf(def); ok {
		keys = append(keys, fmt.Sprintf("%s-%s", name, down))
	}
	return keys
}

// DefaultSecurity returns the profile's default security parameters.
func (p *Profile) DefaultSecurity() SecurityParams {
	if len(p.Security) == 0 {
		return SecurityParams{Type: SecurityOpen}
	}
	return p.Security[0]
}

// HasSecurity reports whether the profile carries the given type.
func (p *Profile) HasSecurity(t SecurityType) bool {
	for _, s := range p.Security {
		if s.Type == t {
			return true
		}
	}
	return false
}

// SecurityFor returns the parameters for the given type.
func (p *Profile) SecurityFor(t SecurityType) (SecurityParams, bool) {
	for _, s := range p.Security {
		if s.Type == t {
			return s, true
		}
	}
	return SecurityParams{}, false
}

// IsOpen reports whether the default security is plain open (no OWE).
func (p *Profile) IsOpen() bool {
	return p.DefaultSecurity().Type == SecurityOpen
}

// IsEnterprise reports whether the profile uses 802.1X.
func (p *Profile) IsEnterprise() bool {
	return p.Enterprise != nil && p.HasSecurity(SecurityEAP)
}

// IsLinkable reports whether the profile participates in cross-profile
// linking. Only the PSK/SAE family is eligible: the selector may roam
// between linked profiles, so both sides must share a credential model.
func (p *Profile) IsLinkable() bool {
	return p.HasSecurity(SecurityPSK) || p.HasSecurity(SecuritySAE)
}

// ServiceOwned reports whether the profile belongs to the service itself
// rather than a user or app: passpoint-internal and SIM-based enterprise
// profiles are managed by the stack.
func (p *Profile) ServiceOwned() bool {
	if p.FromPasspoint {
		return true
	}
	return p.Enterprise != nil && p.Enterprise.SIMBased
}

// Clone returns a deep copy. Every profile that leaves the registry goes
// through here first; mutating the copy never affects internal state.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Security = append([]SecurityParams(nil), p.Security...)
	c.Enterprise = p.Enterprise.clone()
	if p.Linked != nil {
		c.Linked = make(map[string]bool, len(p.Linked))
		for k, v := range p.Linked {
			c.Linked[k] = v
		}
	}
	c.Selection = p.Selection.clone()
	return &c
}

// Redacted returns a defensive copy with credential material replaced by
// PasswordMask and the randomized MAC zeroed. This is the only shape that
// crosses the listener and query boundaries for unprivileged callers.
func (p *Profile) Redacted() *Profile {
	c := p.Clone()
	if c.PreSharedKey != "" {
		c.PreSharedKey = PasswordMask
	}
	for i, k := range c.WEPKeys {
		if k != "" {
			c.WEPKeys[i] = PasswordMask
		}
	}
	if c.Enterprise != nil && c.Enterprise.Password != "" {
		c.Enterprise.Password = PasswordMask
	}
	c.RandomizedMAC = netutil.ZeroMAC
	return c
}

// CredentialsEqual reports whether two profiles carry the same secret
// material. A change here resets the ever-connected flag on merge.
func (p *Profile) CredentialsEqual(o *Profile) bool {
	if p.PreSharedKey != o.PreSharedKey {
		return false
	}
	if p.WEPKeys != o.WEPKeys || p.WEPTxKeyIdx != o.WEPTxKeyIdx {
		return false
	}
	if p.DefaultSecurity().Type != o.DefaultSecurity().Type {
		return false
	}
	pe, oe := p.Enterprise, o.Enterprise
	if (pe == nil) != (oe == nil) {
		return false
	}
	if pe != nil {
		if pe.Method != oe.Method || pe.Identity != oe.Identity || pe.Password != oe.Password || pe.CACert != oe.CACert {
			return false
		}
	}
	return true
}
