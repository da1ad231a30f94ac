// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// LeaseSecondsFromAck extracts the IP address lease time from a DHCP ACK.
// Returns 0 when the packet carries no lease option, which callers treat
// as "lease unknown".
func LeaseSecondsFromAck(ack *dhcpv4.DHCPv4) uint32 {
	if ack == nil || ack.MessageType() != dhcpv4.MessageTypeAck {
		return 0
	}
	lease := ack.IPAddressLeaseTime(0)
	if lease <= 0 {
		return 0
	}
	return uint32(lease / time.Second)
}
