// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package linking maintains the symmetric "same deployment" relation
// between profiles. Two linked profiles are believed to front the same
// physical network, so the selector may roam between them.
package linking

import (
	"strings"

	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/store"
)

const (
	// VRRPPrefix marks virtual-router gateway addresses. A VRRP gateway
	// is shared by unrelated networks, so it never proves co-location.
	VRRPPrefix = "00:00:5e:00:01"

	// BSSIDMatchLen is the shared prefix length, in characters of the
	// colon-separated form, that links two access points to one radio
	// deployment.
	BSSIDMatchLen = 16

	// MaxScanCacheForMatch excludes profiles seen from many access
	// points: a BSSID prefix collision is too likely to mean anything
	// once the deployment is that large.
	MaxScanCacheForMatch = 6
)

// Config carries the linking knobs.
type Config struct {
	// Enabled turns the engine off entirely when false.
	Enabled bool
	// RequireSameCredential additionally demands an identical passphrase
	// before two profiles may link.
	RequireSameCredential bool
	// BSSIDMatch allows linking on BSSID prefix equality when neither
	// profile has observed its gateway yet.
	BSSIDMatch bool
}

// Engine evaluates and maintains links.
type Engine struct {
	cfg    Config
	scans  *store.ScanCache
	logger *logging.Logger
}

// New creates a linking engine over the shared scan cache.
func New(cfg Config, scans *store.ScanCache) *Engine {
	return &Engine{cfg: cfg, scans: scans, logger: logging.WithComponent("linking")}
}

// Relink re-evaluates p against every candidate and updates both sides'
// link sets. Returns true when any link was added or removed.
func (e *Engine) Relink(p *profile.Profile, candidates []*profile.Profile) bool {
	if !e.cfg.Enabled {
		return false
	}
	changed := false
	for _, other := range candidates {
		if other.ID == p.ID {
			continue
		}
		if e.ShouldLink(p, other) {
			changed = link(p, other) || changed
		} else {
			changed = unlink(p, other) || changed
		}
	}
	return changed
}

// UnlinkAll removes p from every candidate's link set, for profile
// removal. Returns true when anything changed.
func (e *Engine) UnlinkAll(p *profile.Profile, candidates []*profile.Profile) bool {
	changed := false
	for _, other := range candidates {
		if other.ID == p.ID {
			continue
		}
		changed = unlink(p, other) || changed
	}
	return changed
}

// ShouldLink decides whether two profiles belong to one deployment.
//
// Evidence order: a VRRP gateway on either side vetoes; two known
// gateways decide by equality; two unknown gateways may fall back to
// BSSID prefix matching; a known/unknown mix proves nothing.
func (e *Engine) ShouldLink(a, b *profile.Profile) bool {
	if !a.IsLinkable() || !b.IsLinkable() {
		return false
	}
	if a.Ephemeral || b.Ephemeral {
		return false
	}
	if e.cfg.RequireSameCredential && a.PreSharedKey != b.PreSharedKey {
		return false
	}
	gwA, gwB := strings.ToLower(a.DefaultGatewayMAC), strings.ToLower(b.DefaultGatewayMAC)
	if strings.HasPrefix(gwA, VRRPPrefix) || strings.HasPrefix(gwB, VRRPPrefix) {
		return false
	}
	if gwA != "" && gwB != "" {
		return gwA == gwB
	}
	if gwA == "" && gwB == "" && e.cfg.BSSIDMatch {
		return e.bssidPrefixMatch(a, b)
	}
	return false
}

func (e *Engine) bssidPrefixMatch(a, b *profile.Profile) bool {
	if e.scans.Size(a.ID) > MaxScanCacheForMatch || e.scans.Size(b.ID) > MaxScanCacheForMatch {
		return false
	}
	for _, ba := range e.scans.BSSIDs(a.ID) {
		if len(ba) < BSSIDMatchLen {
			continue
		}
		for _, bb := range e.scans.BSSIDs(b.ID) {
			if len(bb) < BSSIDMatchLen {
				continue
			}
			if ba[:BSSIDMatchLen] == bb[:BSSIDMatchLen] {
				return true
			}
		}
	}
	return false
}

// link ties both sides together. Returns true when the link was new.
func link(a, b *profile.Profile) bool {
	if a.Linked[b.Key()] && b.Linked[a.Key()] {
		return false
	}
	if a.Linked == nil {
		a.Linked = make(map[string]bool)
	}
	if b.Linked == nil {
		b.Linked = make(map[string]bool)
	}
	a.Linked[b.Key()] = true
	b.Linked[a.Key()] = true
	return true
}

// unlink severs both sides. Returns true when a link existed.
func unlink(a, b *profile.Profile) bool {
	existed := a.Linked[b.Key()] || b.Linked[a.Key()]
	delete(a.Linked, b.Key())
	delete(b.Linked, a.Key())
	return existed
}
