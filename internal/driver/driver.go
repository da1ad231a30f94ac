// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package driver defines the contract between the registry and the
// platform's wireless driver. The registry never talks to a radio
// directly; the daemon is handed a Bridge at startup and only asks it
// for capabilities and connection teardown.
package driver

// Capability is a bitset of driver features the registry adapts to.
type Capability uint32

const (
	CapMacRandomization Capability = 1 << iota
	CapSecondaryInterface
	CapSAE
	CapOWE
)

// Has reports whether all bits in want are present.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Bridge is the driver surface the registry depends on.
type Bridge interface {
	Capabilities() Capability
	// Connect asks the driver to join the network identified by a
	// profile key.
	Connect(key string) error
	// Disconnect tears down the connection to the network identified by
	// a profile key.
	Disconnect(key string) error
}

// Noop is a bridge for hosts without a managed radio. It claims every
// capability so policy decisions stay config-driven.
type Noop struct{}

func (Noop) Capabilities() Capability {
	return CapMacRandomization | CapSecondaryInterface | CapSAE | CapOWE
}
func (Noop) Connect(string) error    { return nil }
func (Noop) Disconnect(string) error { return nil }
