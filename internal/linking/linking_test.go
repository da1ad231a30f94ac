// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package linking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/airwall/internal/profile"
	"grimm.is/airwall/internal/store"
)

func pskProfile(id profile.ID, ssid, key string) *profile.Profile {
	return &profile.Profile{
		ID:           id,
		SSID:         ssid,
		Security:     []profile.SecurityParams{{Type: profile.SecurityPSK, Enabled: true}},
		PreSharedKey: key,
	}
}

func TestShouldLinkGatewayRules(t *testing.T) {
	e := New(Config{Enabled: true}, store.NewScanCache())

	a := pskProfile(1, "Home-2G", "hunter2hunter2")
	b := pskProfile(2, "Home-5G", "hunter2hunter2")

	a.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	assert.True(t, e.ShouldLink(a, b))

	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:02"
	assert.False(t, e.ShouldLink(a, b))

	// One known gateway proves nothing.
	b.DefaultGatewayMAC = ""
	assert.False(t, e.ShouldLink(a, b))
}

func TestShouldLinkVRRPVeto(t *testing.T) {
	e := New(Config{Enabled: true}, store.NewScanCache())
	a := pskProfile(1, "SiteA", "k")
	b := pskProfile(2, "SiteB", "k")
	a.DefaultGatewayMAC = "00:00:5e:00:01:01"
	b.DefaultGatewayMAC = "00:00:5e:00:01:01"
	assert.False(t, e.ShouldLink(a, b), "shared virtual router is not co-location")
}

func TestShouldLinkEligibility(t *testing.T) {
	e := New(Config{Enabled: true, RequireSameCredential: true}, store.NewScanCache())
	a := pskProfile(1, "Home-2G", "hunter2hunter2")
	b := pskProfile(2, "Home-5G", "hunter2hunter2")
	a.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	require.True(t, e.ShouldLink(a, b))

	b.PreSharedKey = "different-secret"
	assert.False(t, e.ShouldLink(a, b))
	b.PreSharedKey = "hunter2hunter2"

	open := &profile.Profile{
		ID:                3,
		SSID:              "Cafe",
		Security:          []profile.SecurityParams{{Type: profile.SecurityOpen, Enabled: true}},
		DefaultGatewayMAC: "aa:bb:cc:dd:ee:01",
	}
	assert.False(t, e.ShouldLink(a, open), "only psk/sae profiles link")

	b.Ephemeral = true
	assert.False(t, e.ShouldLink(a, b))
}

func TestShouldLinkBSSIDPrefix(t *testing.T) {
	scans := store.NewScanCache()
	e := New(Config{Enabled: true, BSSIDMatch: true}, scans)

	a := pskProfile(1, "Home-2G", "k")
	b := pskProfile(2, "Home-5G", "k")

	scans.Put(1, store.Observation{BSSID: "aa:bb:cc:dd:ee:01"})
	scans.Put(2, store.Observation{BSSID: "aa:bb:cc:dd:ee:0f"})
	assert.True(t, e.ShouldLink(a, b), "same radio, different last half octet")

	scans.Remove(2)
	scans.Put(2, store.Observation{BSSID: "aa:bb:cc:dd:ef:01"})
	assert.False(t, e.ShouldLink(a, b))

	// Disabled fallback.
	off := New(Config{Enabled: true}, scans)
	scans.Remove(2)
	scans.Put(2, store.Observation{BSSID: "aa:bb:cc:dd:ee:02"})
	assert.False(t, off.ShouldLink(a, b))
}

func TestShouldLinkLargeDeploymentExcluded(t *testing.T) {
	scans := store.NewScanCache()
	e := New(Config{Enabled: true, BSSIDMatch: true}, scans)

	a := pskProfile(1, "Campus", "k")
	b := pskProfile(2, "Campus-Guest", "k")
	for i := 0; i <= MaxScanCacheForMatch; i++ {
		scans.Put(1, store.Observation{BSSID: fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i)})
	}
	scans.Put(2, store.Observation{BSSID: "aa:bb:cc:dd:ee:99"})
	assert.False(t, e.ShouldLink(a, b))
}

func TestRelinkIsSymmetric(t *testing.T) {
	e := New(Config{Enabled: true}, store.NewScanCache())
	a := pskProfile(1, "Home-2G", "k")
	b := pskProfile(2, "Home-5G", "k")
	c := pskProfile(3, "Other", "k")
	a.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	c.DefaultGatewayMAC = "11:22:33:44:55:66"

	all := []*profile.Profile{a, b, c}
	assert.True(t, e.Relink(a, all))
	assert.True(t, a.Linked[b.Key()])
	assert.True(t, b.Linked[a.Key()])
	assert.False(t, a.Linked[c.Key()])

	assert.False(t, e.Relink(a, all), "second pass is a no-op")

	// Gateway moves apart: the link dissolves on both sides.
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:02"
	assert.True(t, e.Relink(a, all))
	assert.Empty(t, a.Linked)
	assert.Empty(t, b.Linked)
}

func TestUnlinkAll(t *testing.T) {
	e := New(Config{Enabled: true}, store.NewScanCache())
	a := pskProfile(1, "Home-2G", "k")
	b := pskProfile(2, "Home-5G", "k")
	a.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	all := []*profile.Profile{a, b}
	require.True(t, e.Relink(a, all))

	assert.True(t, e.UnlinkAll(a, all))
	assert.Empty(t, b.Linked)
	assert.False(t, e.UnlinkAll(a, all))
}

func TestRelinkDisabled(t *testing.T) {
	e := New(Config{}, store.NewScanCache())
	a := pskProfile(1, "Home-2G", "k")
	b := pskProfile(2, "Home-5G", "k")
	a.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	b.DefaultGatewayMAC = "aa:bb:cc:dd:ee:01"
	assert.False(t, e.Relink(a, []*profile.Profile{a, b}))
}
