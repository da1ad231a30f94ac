// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package macrand decides which layer-2 address a profile presents:
// the factory address, a stable per-profile derived address, or a
// periodically rotated one.
package macrand

import (
	"time"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/netutil"
	"grimm.is/airwall/internal/profile"
)

// Rotated addresses live between these bounds. A DHCP lease shorter than
// the minimum must not force churn mid-lease, and a very long lease must
// not pin the address forever.
const (
	MinRotationInterval = 20 * time.Minute
	MaxRotationInterval = 30 * time.Minute
)

// Deriver produces the stable randomized address for a profile key.
type Deriver interface {
	Derive(key string) (string, error)
}

// Mapping supplies explicitly stored key-to-address assignments, which
// take precedence over derivation.
type Mapping interface {
	LookupMAC(key string) (string, bool)
}

// Config carries the deployment knobs for the policy.
type Config struct {
	// Supported mirrors the driver capability bit. Without it every
	// profile uses the factory address.
	Supported bool
	// ForceNonPersistent is a development override that rotates on every
	// network regardless of per-profile settings.
	ForceNonPersistent bool
	// OpenNetworkRotation enables the rotation heuristic for open
	// networks under MacAuto.
	OpenNetworkRotation bool
	// Allowlist and Blocklist hold SSIDs opted in or out of rotation
	// under MacAuto. Blocklist wins.
	Allowlist map[string]bool
	Blocklist map[string]bool
}

// Policy evaluates randomization decisions for profiles.
type Policy struct {
	cfg     Config
	deriver Deriver
	mapping Mapping
	logger  *logging.Logger
}

// New creates a policy. mapping may be nil.
func New(cfg Config, deriver Deriver, mapping Mapping) *Policy {
	return &Policy{
		cfg:     cfg,
		deriver: deriver,
		mapping: mapping,
		logger:  logging.WithComponent("macrand"),
	}
}

// ShouldRotate reports whether the profile uses a rotating address
// rather than a stable one. Precedence: capability and MacNone disable,
// the development override forces on, explicit per-profile settings
// apply next, and MacAuto falls through to the heuristic.
func (p *Policy) ShouldRotate(pr *profile.Profile) bool {
	if !p.cfg.Supported || pr.MacSetting == profile.MacNone {
		return false
	}
	if pr.MacSetting == profile.MacAlways {
		return true
	}
	if p.cfg.ForceNonPersistent {
		return true
	}
	switch pr.MacSetting {
	case profile.MacNonPersistent:
		return true
	case profile.MacPersistent:
		return false
	}
	return p.autoHeuristic(pr)
}

// autoHeuristic decides rotation for MacAuto profiles. Static-IP setups
// depend on a stable address; a known-good open network with no captive
// portal history is safe to rotate on; otherwise the allow/block lists
// decide.
func (p *Policy) autoHeuristic(pr *profile.Profile) bool {
	if pr.IPAssignment == profile.IPStatic {
		return false
	}
	if p.cfg.OpenNetworkRotation && pr.IsOpen() &&
		pr.Selection.EverConnected && !pr.Selection.SeenCaptivePortal {
		return true
	}
	if p.cfg.Blocklist[pr.SSID] {
		return false
	}
	return p.cfg.Allowlist[pr.SSID]
}

// StableAddress returns the persistent randomized address for a profile:
// a stored mapping first, then the derived address, then whatever the
// profile already carries, and finally a fresh random address.
func (p *Policy) StableAddress(pr *profile.Profile) string {
	if p.mapping != nil {
		if mac, ok := p.mapping.LookupMAC(pr.Key()); ok && validMAC(mac) {
			return mac
		}
	}
	if p.deriver != nil {
		mac, err := p.deriver.Derive(pr.Key())
		if err == nil {
			return mac
		}
		p.logger.Warn("address derivation failed, falling back", "key", pr.Key(), "error", err)
	}
	if validMAC(pr.RandomizedMAC) {
		return pr.RandomizedMAC
	}
	return netutil.FormatMAC(netutil.RandomUnicastMAC())
}

func validMAC(s string) bool {
	hw, err := netutil.ParseMAC(s)
	return err == nil && netutil.ValidUnicastMAC(hw)
}

// Refresh brings the profile's randomized address up to date and reports
// whether it changed. Stable profiles converge on StableAddress; rotating
// profiles get a fresh address when the current one expired, exceeded
// the maximum rotation window, or the profile demands rotation on every
// check.
func (p *Policy) Refresh(pr *profile.Profile) bool {
	if !p.cfg.Supported || pr.MacSetting == profile.MacNone {
		return false
	}
	now := clock.Now()

	if !p.ShouldRotate(pr) {
		mac := p.StableAddress(pr)
		if mac == pr.RandomizedMAC {
			return false
		}
		pr.RandomizedMAC = mac
		pr.MacLastModified = now
		pr.MacExpiry = time.Time{}
		return true
	}

	stale := !pr.MacLastModified.IsZero() && now.Sub(pr.MacLastModified) >= MaxRotationInterval
	expired := !pr.MacExpiry.IsZero() && now.After(pr.MacExpiry)
	if validMAC(pr.RandomizedMAC) &&
		pr.MacSetting != profile.MacAlways && !expired && !stale {
		return false
	}

	pr.RandomizedMAC = netutil.FormatMAC(netutil.RandomUnicastMAC())
	pr.MacLastModified = now
	pr.MacExpiry = now.Add(MaxRotationInterval)
	return true
}

// ExtendFromLease re-arms the rotation expiry from a DHCP lease length,
// clamped to the rotation bounds so the address holds for the lease but
// never past the maximum window.
func (p *Policy) ExtendFromLease(pr *profile.Profile, leaseSeconds uint32) {
	d := time.Duration(leaseSeconds) * time.Second
	if d < MinRotationInterval {
		d = MinRotationInterval
	}
	if d > MaxRotationInterval {
		d = MaxRotationInterval
	}
	pr.MacExpiry = clock.Now().Add(d)
}

// SecondaryAddress returns the address for a profile's secondary
// interface: the primary address plus one, keeping the local-admin and
// unicast bits.
func SecondaryAddress(mac string) (string, error) {
	hw, err := netutil.ParseMAC(mac)
	if err != nil {
		return "", err
	}
	return netutil.FormatMAC(netutil.NextMAC(hw)), nil
}
