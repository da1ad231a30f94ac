// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"sort"
	"strings"
	"time"

	"grimm.is/airwall/internal/profile"
)

const (
	// ScanCacheMax is the hard cap on cached observations per profile.
	ScanCacheMax = 192
	// ScanCacheTrim is the size the cache shrinks to once the cap is hit,
	// dropping the oldest observations first.
	ScanCacheTrim = 128
)

// Observation is one sighting of a profile's network from a scan.
type Observation struct {
	BSSID     string
	RSSI      int
	Frequency int
	LastSeen  time.Time
}

// ScanCache remembers recent sightings per profile, keyed by BSSID.
// Bounded so a profile seen from hundreds of access points (mesh
// deployments, stadium wifi) cannot grow without limit.
type ScanCache struct {
	caches map[profile.ID]map[string]Observation
}

// NewScanCache creates an empty scan cache.
func NewScanCache() *ScanCache {
	return &ScanCache{caches: make(map[profile.ID]map[string]Observation)}
}

// Put records an observation, updating in place when the BSSID was
// already seen. Trims to ScanCacheTrim when ScanCacheMax is exceeded.
func (c *ScanCache) Put(id profile.ID, obs Observation) {
	cache, ok := c.caches[id]
	if !ok {
		cache = make(map[string]Observation)
		c.caches[id] = cache
	}
	obs.BSSID = strings.ToLower(obs.BSSID)
	cache[obs.BSSID] = obs
	if len(cache) > ScanCacheMax {
		c.trim(id)
	}
}

func (c *ScanCache) trim(id profile.ID) {
	cache := c.caches[id]
	all := make([]Observation, 0, len(cache))
	for _, obs := range cache {
		all = append(all, obs)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastSeen.After(all[j].LastSeen) })
	trimmed := make(map[string]Observation, ScanCacheTrim)
	for _, obs := range all[:ScanCacheTrim] {
		trimmed[obs.BSSID] = obs
	}
	c.caches[id] = trimmed
}

// Size returns the number of cached observations for a profile.
func (c *ScanCache) Size(id profile.ID) int { return len(c.caches[id]) }

// BSSIDs returns the cached BSSIDs for a profile, sorted.
func (c *ScanCache) BSSIDs(id profile.ID) []string {
	cache := c.caches[id]
	out := make([]string, 0, len(cache))
	for b := range cache {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Observations returns a copy of the cached observations for a profile.
func (c *ScanCache) Observations(id profile.ID) []Observation {
	cache := c.caches[id]
	out := make([]Observation, 0, len(cache))
	for _, obs := range cache {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BSSID < out[j].BSSID })
	return out
}

// Remove drops the cache for a profile, for example on profile removal.
func (c *ScanCache) Remove(id profile.ID) { delete(c.caches, id) }

// Clear drops every cache.
func (c *ScanCache) Clear() { c.caches = make(map[profile.ID]map[string]Observation) }
