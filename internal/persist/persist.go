// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package persist writes the registry to durable storage and reads it
// back. Profiles are split into partitions: the shared partition holds
// device-wide profiles, per-user partitions hold private ones.
package persist

import (
	"context"
	"fmt"

	"grimm.is/airwall/internal/profile"
)

// PartitionShared holds profiles visible to every user.
const PartitionShared = "shared"

// UserPartition names the private partition of one user.
func UserPartition(user int) string {
	return fmt.Sprintf("user-%d", user)
}

// Store is the durable backend. SavePartition replaces a partition's
// contents atomically; a load of a never-written partition returns an
// empty slice, not an error.
type Store interface {
	SavePartition(ctx context.Context, partition string, profiles []*profile.Profile) error
	LoadPartition(ctx context.Context, partition string) ([]*profile.Profile, error)
	Close() error
}

// MacStore persists the stable randomized address assignments, keyed by
// profile key so a profile keeps its address across forget/re-add.
type MacStore interface {
	LookupMAC(key string) (string, bool)
	SaveMAC(key, mac string) error
}
