// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eviction bounds the registry. When a quota is exceeded the
// least valuable profiles are removed, ranked by an explicit sort key
// computed up front for every profile.
package eviction

import (
	"sort"
	"time"

	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// Config carries the capacity quotas. Zero means unlimited.
type Config struct {
	// MaxProfiles bounds the whole registry.
	MaxProfiles int
	// MaxAppAdded bounds the profiles created by unprivileged apps
	// separately, so a chatty app cannot crowd out user-created profiles.
	MaxAppAdded int
}

// CarrierPresence answers whether a carrier ID currently has service.
type CarrierPresence func(carrierID int) bool

// Policy selects eviction victims.
type Policy struct {
	cfg     Config
	carrier CarrierPresence
	logger  *logging.Logger
}

// New creates a policy. carrier may be nil when no carrier integration
// exists; every carrier-bound profile then counts as present and keeps
// its protection from eviction.
func New(cfg Config, carrier CarrierPresence) *Policy {
	if carrier == nil {
		carrier = func(int) bool { return true }
	}
	return &Policy{cfg: cfg, carrier: carrier, logger: logging.WithComponent("eviction")}
}

// sortKey is the full ranking tuple for one profile, computed before
// sorting so every comparison reads plain fields.
type sortKey struct {
	p *profile.Profile

	carrierPresent bool // present-carrier profiles go last
	connected      bool // the active profile goes last
	deletionPrio   int  // lower is removed first
	reboots        int  // more reboots since use is removed first
	lastUsed       time.Time
	insecure       bool // open and owe are removed before protected
	assocCount     int
}

func (p *Policy) keyFor(pr *profile.Profile) sortKey {
	lastUsed := pr.LastConnected
	if pr.LastUpdated.After(lastUsed) {
		lastUsed = pr.LastUpdated
	}
	def := pr.DefaultSecurity().Type
	return sortKey{
		p:              pr,
		carrierPresent: pr.CarrierID != 0 && p.carrier(pr.CarrierID),
		connected:      pr.CurrentlyConnected,
		deletionPrio:   pr.DeletionPriority,
		reboots:        pr.RebootsSinceUse,
		lastUsed:       lastUsed,
		insecure:       def == profile.SecurityOpen || def == profile.SecurityOWE,
		assocCount:     pr.AssocCount,
	}
}

// less orders a before b when a is the better eviction victim.
func less(a, b sortKey) bool {
	if a.carrierPresent != b.carrierPresent {
		return !a.carrierPresent
	}
	if a.connected != b.connected {
		return !a.connected
	}
	if a.deletionPrio != b.deletionPrio {
		return a.deletionPrio < b.deletionPrio
	}
	if a.reboots != b.reboots {
		return a.reboots > b.reboots
	}
	if !a.lastUsed.Equal(b.lastUsed) {
		return a.lastUsed.Before(b.lastUsed)
	}
	if a.insecure != b.insecure {
		return a.insecure
	}
	if a.assocCount != b.assocCount {
		return a.assocCount < b.assocCount
	}
	// Stable fallback so victim selection is deterministic.
	return a.p.ID < b.p.ID
}

// SelectVictims returns the profiles to remove so the quotas hold
// again, worst ranked first. Only saved profiles are ranked; ephemeral
// ones neither count against a quota nor get evicted. The global quota
// always applies. The app-added quota applies only when appAdded is
// non-nil: privileged callers pass nil and are exempt, and its
// candidates are the profiles the predicate classifies as app-added.
// The input is not modified.
func (p *Policy) SelectVictims(all []*profile.Profile, appAdded func(*profile.Profile) bool) []*profile.Profile {
	saved := make([]*profile.Profile, 0, len(all))
	for _, pr := range all {
		if !pr.Ephemeral {
			saved = append(saved, pr)
		}
	}

	victims := p.overflow(saved, p.cfg.MaxProfiles)

	if p.cfg.MaxAppAdded > 0 && appAdded != nil {
		taken := make(map[profile.ID]bool, len(victims))
		for _, v := range victims {
			taken[v.ID] = true
		}
		var apps []*profile.Profile
		for _, pr := range saved {
			if appAdded(pr) && !taken[pr.ID] {
				apps = append(apps, pr)
			}
		}
		victims = append(victims, p.overflow(apps, p.cfg.MaxAppAdded)...)
	}

	for _, v := range victims {
		p.logger.Info("evicting profile over quota", "id", int(v.ID), "key", v.Key())
	}
	return victims
}

func (p *Policy) overflow(profiles []*profile.Profile, quota int) []*profile.Profile {
	if quota <= 0 || len(profiles) <= quota {
		return nil
	}
	keys := make([]sortKey, 0, len(profiles))
	for _, pr := range profiles {
		keys = append(keys, p.keyFor(pr))
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	n := len(profiles) - quota
	out := make([]*profile.Profile, 0, n)
	for _, k := range keys[:n] {
		out = append(out, k.p)
	}
	return out
}
