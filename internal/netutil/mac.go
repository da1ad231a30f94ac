// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"crypto/rand"
	"fmt"
	"net"
)

// ZeroMAC is the sentinel for "no randomized address assigned".
const ZeroMAC = "02:00:00:00:00:00"

func ParseMAC(macStr string) (net.HardwareAddr, error) {
	hw, err := net.ParseMAC(macStr)
	if err != nil {
		return nil, err
	}
	return hw, nil
}

func FormatMAC(mac net.HardwareAddr) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// RandomUnicastMAC generates a random locally-administered unicast MAC
// address. Used when derivation fails and no prior address exists.
func RandomUnicastMAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	if _, err := rand.Read(mac); err != nil {
		// crypto/rand never fails on supported platforms; keep the
		// sentinel-free contract anyway.
		for i := range mac {
			mac[i] = 0
		}
	}
	mac[0] &^= 0x01 // unicast
	mac[0] |= 0x02  // locally administered
	return mac
}

// NextMAC returns mac+1, preserving the locally-administered unicast bits.
// Used for the secondary interface so two concurrent links to the same
// SSID never share an address.
func NextMAC(mac net.HardwareAddr) net.HardwareAddr {
	next := make(net.HardwareAddr, len(mac))
	copy(next, mac)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	if len(next) == 6 {
		next[0] &^= 0x01
		next[0] |= 0x02
	}
	return next
}

// ValidUnicastMAC reports whether mac is a well-formed 6-byte unicast
// address that is not the zero sentinel.
func ValidUnicastMAC(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	if mac[0]&0x01 != 0 {
		return false
	}
	allZero := true
	for _, b := range mac[1:] {
		if b != 0 {
			allZero = false
			break
		}
	}
	return !(allZero && (mac[0] == 0 || mac[0] == 0x02))
}
